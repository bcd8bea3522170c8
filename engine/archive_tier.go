package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// WebArchiveTier is the last cascade tier: the Wayback Machine. It asks the
// availability API for the closest snapshot and fetches it through the
// raw-content path (the "id_" URL modifier suppresses the archive toolbar).
type WebArchiveTier struct{}

// NewWebArchiveTier creates the archive fallback tier.
func NewWebArchiveTier() *WebArchiveTier { return &WebArchiveTier{} }

func (t *WebArchiveTier) Name() string { return TierWebArchive }

type archiveAvailability struct {
	ArchivedSnapshots struct {
		Closest struct {
			Available bool   `json:"available"`
			URL       string `json:"url"`
			Status    string `json:"status"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

// archiveToolbar matches residual toolbar script/link tags the raw path can
// still leave behind.
var archiveToolbar = regexp.MustCompile(`(?is)<(script|link)[^>]*(?:web-static\.archive\.org|wombat)[^>]*>(?:</script>)?`)

func (t *WebArchiveTier) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	snapshotURL, err := lookupSnapshot(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	snapReq := &FetchRequest{
		URL:     snapshotURL,
		Timeout: req.Timeout,
	}
	result, err := fetchWithProfile(ctx, snapReq, tlsProfiles[0])
	if err != nil {
		return nil, err
	}
	if result.StatusCode >= 400 || result.RawHTML == "" {
		return nil, fmt.Errorf("web archive: snapshot status %d", result.StatusCode)
	}

	result.RawHTML = archiveToolbar.ReplaceAllString(result.RawHTML, "")
	result.SourceTier = TierWebArchive
	result.FinalURL = req.URL
	return result, nil
}

// lookupSnapshot queries the availability API and returns the raw-content
// snapshot URL, or an error when no snapshot exists.
func lookupSnapshot(ctx context.Context, target string) (string, error) {
	apiURL := "https://archive.org/wayback/available?url=" + url.QueryEscape(target)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("web archive: availability: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var avail archiveAvailability
	if err := json.Unmarshal(body, &avail); err != nil {
		return "", fmt.Errorf("web archive: decode availability: %w", err)
	}
	closest := avail.ArchivedSnapshots.Closest
	if !closest.Available || closest.URL == "" {
		return "", fmt.Errorf("web archive: no snapshot for %s", target)
	}

	return rawSnapshotURL(closest.URL), nil
}

// rawSnapshotURL inserts the id_ modifier after the timestamp segment so
// the snapshot is served without the archive toolbar.
func rawSnapshotURL(snapshot string) string {
	// Form: https://web.archive.org/web/<timestamp>/<original-url>
	const marker = "/web/"
	idx := strings.Index(snapshot, marker)
	if idx < 0 {
		return snapshot
	}
	rest := snapshot[idx+len(marker):]
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return snapshot
	}
	timestamp := rest[:slash]
	if strings.HasSuffix(timestamp, "id_") {
		return snapshot
	}
	return snapshot[:idx+len(marker)] + timestamp + "id_" + rest[slash:]
}
