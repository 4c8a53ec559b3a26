package main

import (
	"fmt"
	"net"
	"net/url"
	"os"

	"github.com/plextuner/plex-tuner/internal/streamtree"
)

// newSink builds a packet-writing leaf node for a channel's output address.
// addr is one of:
//
//	udp://host:port   - unicast or multicast UDP datagram per packet
//	file:///path      - appended raw TS bytes
//	"-" or ""         - os.Stdout
//
// The returned node has no children of its own; it is meant to be the sole
// downstream child attached to a channel's Node.
func newSink(name, addr string) (*streamtree.Node, closeFunc, error) {
	if addr == "" || addr == "-" {
		w := os.Stdout
		return streamtree.NewNode(name+":stdout", func(pkt []byte) { w.Write(pkt) }), func() error { return nil }, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("ts-channel: sink %q: %w", addr, err)
	}

	switch u.Scheme {
	case "udp":
		raddr, err := net.ResolveUDPAddr("udp", u.Host)
		if err != nil {
			return nil, nil, fmt.Errorf("ts-channel: sink %q: %w", addr, err)
		}
		conn, err := net.DialUDP("udp", nil, raddr)
		if err != nil {
			return nil, nil, fmt.Errorf("ts-channel: sink %q: %w", addr, err)
		}
		node := streamtree.NewNode(name+":udp:"+u.Host, func(pkt []byte) {
			if _, err := conn.Write(pkt); err != nil {
				// A single dropped write to a UDP sink is not fatal to the
				// channel; the next packet tries again.
			}
		})
		return node, conn.Close, nil

	case "file":
		f, err := os.OpenFile(u.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("ts-channel: sink %q: %w", addr, err)
		}
		node := streamtree.NewNode(name+":file:"+u.Path, func(pkt []byte) { f.Write(pkt) })
		return node, f.Close, nil

	default:
		return nil, nil, fmt.Errorf("ts-channel: sink %q: unsupported scheme %q", addr, u.Scheme)
	}
}

// closeFunc closes whatever resource backs a sink node.
type closeFunc func() error
