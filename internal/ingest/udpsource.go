// Package ingest holds the concrete stream-producer nodes: the stream tree
// module describes how packets fan out once they are in the tree, but
// something has to put the first packet in. Each source here is a
// streamtree.Node with no parent whose OnTS is never called — instead it
// calls Send on its own node once it has a clean 188-byte packet.
//
// Grounded on the teacher's internal/tuner/gateway.go
// (tsDiscontinuitySpliceWriter.writePacket 188-byte framing) for the UDP
// source and the toshipp-tstools tssplit.go bufio.Reader loop for the file
// source.
package ingest

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/plextuner/plex-tuner/internal/streamtree"
	"github.com/plextuner/plex-tuner/internal/tspacket"
)

// udpDatagramPackets is how many 188-byte TS packets a single RTP/UDP
// datagram carries in the common MPEG-TS-over-UDP convention (7 packets,
// 1316 bytes), used only to size the receive buffer generously; the source
// does not require senders to hit this exact size.
const udpDatagramPackets = 7

const udpReadBufferSize = udpDatagramPackets * tspacket.PacketSize * 4

// UDPSourceConfig controls UDPSource.
type UDPSourceConfig struct {
	// ListenAddr is the local UDP address to bind, e.g. "0.0.0.0:5000" or a
	// multicast group address such as "239.1.1.1:5000".
	ListenAddr string

	// Interface, if set, is the network interface multicast group
	// membership is requested on. Ignored for unicast ListenAddr.
	Interface *net.Interface

	// RateLimit caps how many packets per second the source hands to the
	// tree, smoothing out bursty upstream senders so the single-threaded
	// cooperative loop downstream never sees a pathological spike in one
	// Recv call. Zero disables limiting.
	RateLimit rate.Limit

	// RateBurst is the limiter's burst allowance. Defaults to 7 (one
	// datagram's worth) when RateLimit is set and RateBurst is zero.
	RateBurst int
}

// UDPSource reads an MPEG-TS-over-UDP stream (RTP or raw UDP, one or more
// 188-byte packets per datagram) and forwards each packet to the root of a
// stream tree.
type UDPSource struct {
	cfg  UDPSourceConfig
	conn *net.UDPConn
	root *streamtree.Node
	lim  *rate.Limiter

	// OnIdle, if set, is called once per read iteration after any packets in
	// that datagram have been forwarded. A caller driving a
	// runtime.Runtime's job queue from this same goroutine (the only
	// goroutine that ever touches the stream tree) hooks in here to drain
	// deferred jobs — e.g. a channel's SI timer re-emission — between reads.
	OnIdle func()
}

// NewUDPSource binds the configured address. Call Run to begin forwarding
// packets into root.
func NewUDPSource(cfg UDPSourceConfig, root *streamtree.Node) (*UDPSource, error) {
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = udpDatagramPackets
	}

	addr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve %q: %w", cfg.ListenAddr, err)
	}

	var conn *net.UDPConn
	if addr.IP != nil && addr.IP.IsMulticast() {
		conn, err = net.ListenMulticastUDP("udp", cfg.Interface, addr)
	} else {
		conn, err = net.ListenUDP("udp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: listen %q: %w", cfg.ListenAddr, err)
	}
	conn.SetReadBuffer(udpReadBufferSize * 8)

	s := &UDPSource{cfg: cfg, conn: conn, root: root}
	if cfg.RateLimit > 0 {
		s.lim = rate.NewLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	return s, nil
}

// Run reads datagrams until ctx is cancelled or the socket errors. Each
// datagram is split into its constituent 188-byte packets (trailing bytes
// that don't fill a whole packet are logged and dropped, since UDP never
// splits a packet across datagrams in practice) and handed to root.Send.
func (s *UDPSource) Run(ctx context.Context) error {
	defer s.conn.Close()

	go func() {
		<-ctx.Done()
		s.conn.SetReadDeadline(time.Now())
	}()

	buf := make([]byte, udpReadBufferSize)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("ingest: udp read: %w", err)
		}
		if rem := n % tspacket.PacketSize; rem != 0 {
			log.Printf("ingest: udp: dropping %d trailing byte(s) of a %d-byte datagram", rem, n)
		}

		for off := 0; off+tspacket.PacketSize <= n; off += tspacket.PacketSize {
			pkt := buf[off : off+tspacket.PacketSize]
			if pkt[0] != tspacket.SyncByte {
				log.Printf("ingest: udp: lost sync, dropping remainder of datagram (head=%x)", pkt[:min(8, len(pkt))])
				break
			}
			if s.lim != nil {
				if err := s.lim.Wait(ctx); err != nil {
					return ctx.Err()
				}
			}
			s.root.Send(pkt)
		}
		if s.OnIdle != nil {
			s.OnIdle()
		}
	}
}
