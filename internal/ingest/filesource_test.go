package ingest

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/plextuner/plex-tuner/internal/streamtree"
	"github.com/plextuner/plex-tuner/internal/tspacket"
)

func packet(pid uint16, fill byte) []byte {
	pkt := make([]byte, tspacket.PacketSize)
	pkt[0] = tspacket.SyncByte
	tspacket.SetPID(pkt, pid)
	for i := 4; i < len(pkt); i++ {
		pkt[i] = fill
	}
	return pkt
}

func TestFileSourceForwardsCleanStream(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(packet(0x100, 1))
	buf.Write(packet(0x200, 2))
	buf.Write(packet(0x100, 3))

	var got [][]byte
	sink := streamtree.NewNode("sink", func(pkt []byte) {
		got = append(got, append([]byte(nil), pkt...))
	})
	root := streamtree.NewNode("root", func([]byte) {})
	streamtree.Attach(root, sink)

	src := NewFileSource(&buf, root)
	if err := src.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d packets, want 3", len(got))
	}
	if tspacket.PID(got[0]) != 0x100 || tspacket.PID(got[1]) != 0x200 || tspacket.PID(got[2]) != 0x100 {
		t.Fatalf("unexpected PID sequence: %x %x %x", tspacket.PID(got[0]), tspacket.PID(got[1]), tspacket.PID(got[2]))
	}
}

func TestFileSourceResynchronizesAfterGarbage(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x01, 0x02}) // garbage before the first sync byte
	buf.Write(packet(0x100, 9))

	var got [][]byte
	sink := streamtree.NewNode("sink", func(pkt []byte) {
		got = append(got, append([]byte(nil), pkt...))
	})
	root := streamtree.NewNode("root", func([]byte) {})
	streamtree.Attach(root, sink)

	src := NewFileSource(&buf, root)
	if err := src.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d packets, want 1", len(got))
	}
	if tspacket.PID(got[0]) != 0x100 {
		t.Fatalf("PID = %x, want 0x100", tspacket.PID(got[0]))
	}
}

func TestFileSourceStopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	root := streamtree.NewNode("root", func([]byte) {})
	src := NewFileSource(r, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := src.Run(ctx); err == nil {
		t.Fatal("expected context.Canceled, got nil")
	}
}
