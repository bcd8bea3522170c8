package webhook

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver(t *testing.T) {
	var gotBody []byte
	var gotSig, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Harvest-Signature")
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	event := NewEvent(EventCrawlCompleted, "job-1", map[string]int{"pages": 4})
	require.NoError(t, Deliver(context.Background(), srv.URL, "s3cret", event))

	var decoded Event
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, EventCrawlCompleted, decoded.Type)
	assert.Equal(t, "job-1", decoded.JobID)
	assert.NotZero(t, decoded.Timestamp)
	assert.Equal(t, "Harvest-Webhook/1.0", gotUA)

	// Signature verifies against the exact bytes on the wire.
	assert.Equal(t, "sha256="+Sign(gotBody, "s3cret"), gotSig)
	assert.True(t, hmac.Equal([]byte(Sign(gotBody, "s3cret")), []byte(gotSig[len("sha256="):])))
}

func TestDeliverUnsigned(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Harvest-Signature")
	}))
	defer srv.Close()

	require.NoError(t, Deliver(context.Background(), srv.URL, "", NewEvent(EventScrapeCompleted, "", nil)))
	assert.Empty(t, gotSig)
}

func TestDeliverErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.URL, "", NewEvent(EventCrawlFailed, "job-1", nil))
	assert.ErrorContains(t, err, "502")
}

func TestDeliverUnreachable(t *testing.T) {
	err := Deliver(context.Background(), "http://127.0.0.1:1", "", NewEvent(EventCrawlFailed, "job-1", nil))
	assert.Error(t, err)
}
