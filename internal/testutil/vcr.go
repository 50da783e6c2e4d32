package testutil

import (
	"net/http"
	"path/filepath"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

// JSONInteraction builds a replayable interaction answering a request
// with a JSON body.
func JSONInteraction(method, url string, code int, body string) *cassette.Interaction {
	return &cassette.Interaction{
		Request: cassette.Request{
			Method: method,
			URL:    url,
		},
		Response: cassette.Response{
			Body:    body,
			Code:    code,
			Status:  http.StatusText(code),
			Headers: http.Header{"Content-Type": []string{"application/json"}},
		},
	}
}

// ReplayRecorder writes the given interactions to a cassette in a
// temporary directory and returns a recorder replaying it.
func ReplayRecorder(t *testing.T, interactions ...*cassette.Interaction) (*recorder.Recorder, func()) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cassette")
	c := cassette.New(path)
	for _, i := range interactions {
		c.AddInteraction(i)
	}
	if err := c.Save(); err != nil {
		t.Fatalf("Failed to save cassette: %v", err)
	}

	r, err := recorder.NewAsMode(path, recorder.ModeReplaying, nil)
	if err != nil {
		t.Fatalf("Failed to create VCR recorder: %v", err)
	}

	// Don't match on request body for simplicity
	r.SetMatcher(func(r *http.Request, i cassette.Request) bool {
		return r.Method == i.Method && r.URL.String() == i.URL
	})

	cleanup := func() {
		if err := r.Stop(); err != nil {
			t.Errorf("Failed to stop VCR recorder: %v", err)
		}
	}

	return r, cleanup
}

// VCRHTTPClient returns an HTTP client configured to use the VCR recorder
func VCRHTTPClient(r *recorder.Recorder) *http.Client {
	return &http.Client{
		Transport: r,
	}
}
