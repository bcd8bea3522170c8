package crawler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/use-agent/harvest/store"
)

// frontierTTL bounds how long crawl state outlives its job.
const frontierTTL = 24 * time.Hour

// Frontier is the shared-store BFS frontier for one crawl: a sorted set
// ordered by priority, a visited set, and a per-URL depth hash. Keeping it
// in the store lets a restarted worker resume mid-crawl.
type Frontier struct {
	store store.Store
	jobID string
}

// NewFrontier binds a frontier to a crawl job.
func NewFrontier(s store.Store, jobID string) *Frontier {
	return &Frontier{store: s, jobID: jobID}
}

func (f *Frontier) frontierKey() string { return fmt.Sprintf("crawl:%s:frontier", f.jobID) }
func (f *Frontier) visitedKey() string  { return fmt.Sprintf("crawl:%s:visited", f.jobID) }
func (f *Frontier) depthKey() string    { return fmt.Sprintf("crawl:%s:depth", f.jobID) }

// Add enqueues a URL at the given depth. The stored score is
// score(url) − depth so deeper pages lose priority. Already-visited URLs
// are ignored.
func (f *Frontier) Add(ctx context.Context, rawURL string, depth int) error {
	visited, err := f.store.SIsMember(ctx, f.visitedKey(), rawURL)
	if err != nil {
		return err
	}
	if visited {
		return nil
	}
	if err := f.store.ZAdd(ctx, f.frontierKey(), Score(rawURL)-float64(depth), rawURL); err != nil {
		return err
	}
	if err := f.store.HSet(ctx, f.depthKey(), map[string]string{rawURL: strconv.Itoa(depth)}); err != nil {
		return err
	}
	return f.touch(ctx)
}

// AddSeed enqueues the crawl's start URL at depth 0 with a +100 priority
// boost so it is always fetched first.
func (f *Frontier) AddSeed(ctx context.Context, rawURL string) error {
	if err := f.store.ZAdd(ctx, f.frontierKey(), Score(rawURL)+100, rawURL); err != nil {
		return err
	}
	if err := f.store.HSet(ctx, f.depthKey(), map[string]string{rawURL: "0"}); err != nil {
		return err
	}
	return f.touch(ctx)
}

// touch refreshes the TTL on all three keys.
func (f *Frontier) touch(ctx context.Context) error {
	for _, key := range []string{f.frontierKey(), f.visitedKey(), f.depthKey()} {
		if err := f.store.Expire(ctx, key, frontierTTL); err != nil {
			return err
		}
	}
	return nil
}

// Entry is one popped frontier URL.
type Entry struct {
	URL   string
	Depth int
	Score float64
}

// PopBatch removes up to count URLs in descending priority order,
// skipping and marking visited as it goes. Returned entries are exactly
// the URLs this caller now owns.
func (f *Frontier) PopBatch(ctx context.Context, count int) ([]Entry, error) {
	members, err := f.store.ZPopMax(ctx, f.frontierKey(), count)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		fresh, err := f.store.SAdd(ctx, f.visitedKey(), m.Member)
		if err != nil {
			return entries, err
		}
		if !fresh {
			continue
		}
		entries = append(entries, Entry{
			URL:   m.Member,
			Depth: f.depthOf(ctx, m.Member),
			Score: m.Score,
		})
	}
	return entries, nil
}

func (f *Frontier) depthOf(ctx context.Context, rawURL string) int {
	v, err := f.store.HGet(ctx, f.depthKey(), rawURL)
	if err != nil {
		return 0
	}
	d, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return d
}

// Size returns the number of queued URLs.
func (f *Frontier) Size(ctx context.Context) (int64, error) {
	return f.store.ZCard(ctx, f.frontierKey())
}

// Visited reports whether the URL was already claimed.
func (f *Frontier) Visited(ctx context.Context, rawURL string) (bool, error) {
	return f.store.SIsMember(ctx, f.visitedKey(), rawURL)
}

// Cleanup deletes all three crawl keys.
func (f *Frontier) Cleanup(ctx context.Context) error {
	return f.store.Del(ctx, f.frontierKey(), f.visitedKey(), f.depthKey())
}
