package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/plextuner/plex-tuner/internal/channel"
)

// pidListFlag accumulates comma-separated PID lists across repeated flag
// occurrences, e.g. -filter 256,257 -filter 512.
type pidListFlag []uint16

func (p *pidListFlag) String() string {
	if p == nil {
		return ""
	}
	parts := make([]string, len(*p))
	for i, v := range *p {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, ",")
}

func (p *pidListFlag) Set(s string) error {
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		n, err := strconv.ParseUint(tok, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid pid %q: %w", tok, err)
		}
		*p = append(*p, uint16(n))
	}
	return nil
}

// mapRuleFlag collects repeated -map selector=custom_pid occurrences into
// channel.MapRule values, preserving the order rules are given in (map
// rules are matched and consumed in order).
type mapRuleFlag []channel.MapRule

func (m *mapRuleFlag) String() string {
	if m == nil {
		return ""
	}
	parts := make([]string, len(*m))
	for i, r := range *m {
		parts[i] = fmt.Sprintf("%s=%d", r.Selector, r.CustomPID)
	}
	return strings.Join(parts, ",")
}

func (m *mapRuleFlag) Set(s string) error {
	selector, pidStr, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("map rule %q: want selector=custom_pid", s)
	}
	cp, err := strconv.ParseUint(pidStr, 10, 16)
	if err != nil {
		return fmt.Errorf("map rule %q: invalid custom_pid: %w", s, err)
	}
	*m = append(*m, channel.MapRule{Selector: selector, CustomPID: uint16(cp)})
	return nil
}
