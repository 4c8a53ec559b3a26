package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/plextuner/plex-tuner/internal/streamtree"
	"github.com/plextuner/plex-tuner/internal/tspacket"
)

func TestHTTPSourceForwardsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(packet(0x100, 1))
		w.Write(packet(0x101, 2))
	}))
	defer srv.Close()

	var got [][]byte
	sink := streamtree.NewNode("sink", func(pkt []byte) {
		got = append(got, append([]byte(nil), pkt...))
	})
	root := streamtree.NewNode("root", func([]byte) {})
	streamtree.Attach(root, sink)

	src := NewHTTPSource(srv.URL, srv.Client(), root)
	if err := src.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d packets, want 2", len(got))
	}
	if tspacket.PID(got[0]) != 0x100 || tspacket.PID(got[1]) != 0x101 {
		t.Fatalf("unexpected PIDs: %x %x", tspacket.PID(got[0]), tspacket.PID(got[1]))
	}
}

func TestHTTPSourceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	root := streamtree.NewNode("root", func([]byte) {})
	src := NewHTTPSource(srv.URL, srv.Client(), root)
	if err := src.Run(context.Background()); err == nil {
		t.Fatal("expected error for 503 status")
	}
}
