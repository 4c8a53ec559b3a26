package ingest

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/plextuner/plex-tuner/internal/streamtree"
	"github.com/plextuner/plex-tuner/internal/tspacket"
)

func TestUDPSourceSplitsMultiPacketDatagram(t *testing.T) {
	root := streamtree.NewNode("root", func([]byte) {})
	var mu sync.Mutex
	var got [][]byte
	sink := streamtree.NewNode("sink", func(pkt []byte) {
		mu.Lock()
		got = append(got, append([]byte(nil), pkt...))
		mu.Unlock()
	})
	streamtree.Attach(root, sink)

	src, err := NewUDPSource(UDPSourceConfig{ListenAddr: "127.0.0.1:0"}, root)
	if err != nil {
		t.Fatalf("NewUDPSource: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	sender, err := net.DialUDP("udp", nil, src.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer sender.Close()

	datagram := append(append([]byte{}, packet(0x100, 1)...), packet(0x101, 2)...)
	if _, err := sender.Write(datagram); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for packets")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("got %d packets, want 2", len(got))
	}
	if tspacket.PID(got[0]) != 0x100 || tspacket.PID(got[1]) != 0x101 {
		t.Fatalf("unexpected PIDs: %x %x", tspacket.PID(got[0]), tspacket.PID(got[1]))
	}
}
