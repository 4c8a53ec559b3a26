package ingest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/plextuner/plex-tuner/internal/httpclient"
	"github.com/plextuner/plex-tuner/internal/streamtree"
)

// HTTPSource pulls a long-lived MPEG-TS byte stream over HTTP (a typical
// IPTV provider playout URL) instead of receiving it pushed over UDP or
// read from a local file. It reuses the teacher's httpclient.ForStreaming,
// which has no overall request timeout but a ResponseHeaderTimeout so a
// dead upstream is detected quickly instead of hanging forever.
type HTTPSource struct {
	URL    string
	Client *http.Client
	root   *streamtree.Node

	// OnIdle, if set, is called once per packet processed — see
	// UDPSource.OnIdle for why a caller wants this hook.
	OnIdle func()
}

// NewHTTPSource constructs a source for url. If client is nil,
// httpclient.ForStreaming() is used.
func NewHTTPSource(url string, client *http.Client, root *streamtree.Node) *HTTPSource {
	if client == nil {
		client = httpclient.ForStreaming()
	}
	return &HTTPSource{URL: url, Client: client, root: root}
}

// Run issues the GET request and hands the response body to a FileSource,
// which does the actual TS-framing and resynchronization work; an HTTP
// playout stream is, once the headers are consumed, exactly the same raw TS
// byte stream a file or pipe would produce.
func (s *HTTPSource) Run(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return fmt.Errorf("ingest: http: build request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("ingest: http: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ingest: http: unexpected status %s", resp.Status)
	}

	fs := NewFileSource(resp.Body, s.root)
	fs.OnIdle = s.OnIdle
	return fs.Run(ctx)
}
