package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/plextuner/plex-tuner/internal/streamtree"
	"github.com/plextuner/plex-tuner/internal/tspacket"
)

// fileReadBufferPackets sizes the bufio.Reader well above one packet so a
// slow disk or pipe doesn't force a syscall per 188 bytes.
const fileReadBufferPackets = 512

// FileSource reads a raw MPEG-TS byte stream from any io.Reader (an open
// file or, for "-", os.Stdin) and forwards synchronized 188-byte packets to
// the root of a stream tree. Grounded on toshipp-tstools' tssplit.go, which
// wraps the input in a bufio.Reader and pulls fixed-size packets in a loop.
type FileSource struct {
	r    *bufio.Reader
	root *streamtree.Node

	// OnIdle, if set, is called once per packet processed — see
	// UDPSource.OnIdle for why a caller wants this hook.
	OnIdle func()
}

// NewFileSource wraps r. r is not closed by the source; the caller owns its
// lifetime.
func NewFileSource(r io.Reader, root *streamtree.Node) *FileSource {
	return &FileSource{
		r:    bufio.NewReaderSize(r, fileReadBufferPackets*tspacket.PacketSize),
		root: root,
	}
}

// Run reads until ctx is cancelled, r returns io.EOF, or a read error
// occurs. Unlike UDPSource, a file is a continuous byte stream rather than
// datagram-framed, so Run resynchronizes on the sync byte: after reading a
// full packet it checks the next byte is 0x47 before proceeding, and
// otherwise shifts forward one byte at a time until sync is recovered or
// the stream ends — the same recovery a live tuner feed needs after a
// dropped byte corrupts framing.
func (s *FileSource) Run(ctx context.Context) error {
	pkt := make([]byte, tspacket.PacketSize)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		b, err := s.r.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("ingest: file read: %w", err)
		}
		if b[0] != tspacket.SyncByte {
			s.r.Discard(1)
			continue
		}

		if _, err := io.ReadFull(s.r, pkt); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("ingest: file read: %w", err)
		}

		next, err := s.r.Peek(1)
		if err == nil && next[0] != tspacket.SyncByte {
			log.Printf("ingest: file: lost sync after a packet, resynchronizing")
		}

		s.root.Send(pkt)
		if s.OnIdle != nil {
			s.OnIdle()
		}
	}
}
