// Command ts-channel wires one or more channel.Channel instances between an
// MPEG-TS source (UDP multicast, a file, or an HTTP playout URL) and an
// output sink per channel (UDP, file, or stdout), exposing Prometheus
// metrics and a health endpoint over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/plextuner/plex-tuner/internal/chanstate"
	"github.com/plextuner/plex-tuner/internal/channel"
	"github.com/plextuner/plex-tuner/internal/ingest"
	"github.com/plextuner/plex-tuner/internal/metrics"
	"github.com/plextuner/plex-tuner/internal/runtime"
	"github.com/plextuner/plex-tuner/internal/streamtree"
)

func main() {
	var (
		sourceUDP  = flag.String("udp", "", "listen address for a UDP/multicast MPEG-TS source, e.g. 239.1.1.1:5000")
		sourceFile = flag.String("file", "", "path to a file MPEG-TS source, or \"-\" for stdin")
		sourceHTTP = flag.String("http-source", "", "URL of an HTTP MPEG-TS playout source")
		rateLimit  = flag.Float64("udp-rate", 0, "packets/sec cap on the UDP source (0 disables)")

		configPath  = flag.String("config", "", "path to a JSON channel config file (overrides the single-channel flags below)")
		outputsPath = flag.String("outputs", "", "path to a JSON {channel: sink} document (optional; unset channels fall back to -output)")
		output      = flag.String("output", "-", "default output sink for channels with none configured: udp://host:port, file:///path, or - for stdout")

		name     = flag.String("name", "channel0", "channel name (single-channel mode)")
		pnr      = flag.Int("pnr", -1, "program number to select (single-channel mode; unset means plain PID pass-filter)")
		setPNR   = flag.Int("set-pnr", -1, "rewrite the outgoing PMT's program number to this value")
		cas      = flag.Bool("cas", false, "pass through the CAT")
		noSDT    = flag.Bool("no-sdt", false, "do not forward the SDT")
		noEIT    = flag.Bool("no-eit", false, "do not forward the EIT/TDT")
		noReload = flag.Bool("no-reload", false, "run a periodic SI timer instead of reload-on-change")
		passSDT  = flag.Bool("pass-sdt", false, "forward the SDT unmodified instead of rewriting it")
		passEIT  = flag.Bool("pass-eit", false, "forward the EIT unmodified instead of rewriting it")

		metricsAddr = flag.String("metrics-addr", ":9090", "listen address for /metrics and /healthz")
		statePath   = flag.String("statedb", "", "sqlite path for persisting pid_map bindings across restarts (empty disables)")
	)
	var pids, filter, filterInverse pidListFlag
	var mapRules mapRuleFlag
	flag.Var(&pids, "pid", "PID to pass through (plain filter mode); repeatable, comma-separated")
	flag.Var(&filter, "filter", "PID to drop; repeatable, comma-separated")
	flag.Var(&filterInverse, "filter-inv", "PID to keep, dropping all others; repeatable, comma-separated")
	flag.Var(&mapRules, "map", "selector=custom_pid remap rule; repeatable, order-sensitive")
	flag.Parse()

	single := singleChannelFlags{
		name: *name, pnr: *pnr, setPNR: *setPNR, cas: *cas,
		noSDT: *noSDT, noEIT: *noEIT, noReload: *noReload,
		passSDT: *passSDT, passEIT: *passEIT,
		pids: pids, filter: filter, filterInverse: filterInverse, mapRules: mapRules,
	}

	cfgs, outputs, err := loadChannelConfigs(*configPath, single, *outputsPath, *output)
	if err != nil {
		log.Fatalf("ts-channel: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt := runtime.New()
	reg := prometheus.NewRegistry()

	var store *chanstate.Store
	if *statePath != "" {
		store, err = chanstate.Open(ctx, *statePath)
		if err != nil {
			log.Fatalf("ts-channel: %v", err)
		}
		defer store.Close()
	}

	root := streamtree.NewNode("root", nil)
	chans := make([]*channel.Channel, 0, len(cfgs))
	closers := make([]closeFunc, 0, len(cfgs))

	for _, cfg := range cfgs {
		if store != nil {
			bindings, err := store.Load(ctx, cfg.Name)
			if err != nil {
				log.Fatalf("ts-channel: load bindings for %q: %v", cfg.Name, err)
			}
			cfg.Map = prependPersistedBindings(bindings, cfg.Map)
		}

		m := metrics.NewChannel(cfg.Name)
		m.MustRegister(reg)
		ch := channel.New(rt, m, cfg)
		streamtree.Attach(root, ch.Node())

		sink, closeSink, err := newSink(cfg.Name, outputs[cfg.Name])
		if err != nil {
			log.Fatalf("ts-channel: %v", err)
		}
		streamtree.Attach(ch.Node(), sink)

		chans = append(chans, ch)
		closers = append(closers, closeSink)
	}

	onIdle := func() { rt.Jobs.RunAll() }

	src, err := buildSource(*sourceUDP, *sourceFile, *sourceHTTP, *rateLimit, root)
	if err != nil {
		log.Fatalf("ts-channel: %v", err)
	}
	wireOnIdle(src, onIdle)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", healthHandler(chans))
	go func() {
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("ts-channel: metrics server: %v", err)
		}
	}()
	log.Printf("ts-channel: metrics/health on %s, %d channel(s)", *metricsAddr, len(chans))

	runErr := make(chan error, 1)
	go func() { runErr <- src.Run(ctx) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sig:
		log.Printf("ts-channel: shutdown requested")
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			log.Printf("ts-channel: source stopped: %v", err)
		}
	}

	if store != nil {
		// ctx is already cancelled by now; persistence on the way out uses
		// its own background context so the shutdown save isn't aborted by
		// the same cancellation that stopped the source.
		for _, ch := range chans {
			name := ch.Node().Name
			if err := store.Save(context.Background(), name, bindingsToChanstate(name, ch.Bindings())); err != nil {
				log.Printf("ts-channel: save bindings for %q: %v", name, err)
			}
		}
	}

	for _, ch := range chans {
		ch.Close()
	}
	for _, c := range closers {
		if c != nil {
			c()
		}
	}
}

// source is the common surface buildSource returns; it is satisfied by
// *ingest.UDPSource, *ingest.FileSource, and *ingest.HTTPSource.
type source interface {
	Run(ctx context.Context) error
}

func buildSource(udpAddr, filePath, httpURL string, rateLimit float64, root *streamtree.Node) (source, error) {
	switch {
	case udpAddr != "":
		cfg := ingest.UDPSourceConfig{ListenAddr: udpAddr}
		if rateLimit > 0 {
			cfg.RateLimit = rate.Limit(rateLimit)
		}
		return ingest.NewUDPSource(cfg, root)

	case httpURL != "":
		return ingest.NewHTTPSource(httpURL, nil, root), nil

	case filePath != "":
		f := os.Stdin
		if filePath != "-" {
			var err error
			f, err = os.Open(filePath)
			if err != nil {
				return nil, fmt.Errorf("open %q: %w", filePath, err)
			}
		}
		return ingest.NewFileSource(f, root), nil

	default:
		return nil, fmt.Errorf("one of -udp, -file, or -http-source is required")
	}
}

// wireOnIdle installs fn as the idle hook on whichever concrete source type
// src is — the source interface above only requires Run, since OnIdle isn't
// part of every caller's needs, but this CLI always wants its job-queue
// drain wired in.
func wireOnIdle(src source, fn func()) {
	switch s := src.(type) {
	case *ingest.UDPSource:
		s.OnIdle = fn
	case *ingest.FileSource:
		s.OnIdle = fn
	case *ingest.HTTPSource:
		s.OnIdle = fn
	}
}

func healthHandler(chans []*channel.Channel) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","channels":%d}`, len(chans))
	})
}

// prependPersistedBindings turns stored bindings into literal-PID map rules
// ahead of the channel's own configured rules, so mapCustomPID resolves the
// prior binding first, on the same PID, before falling through to the
// configured rule set.
func prependPersistedBindings(bindings []chanstate.Binding, configured []channel.MapRule) []channel.MapRule {
	if len(bindings) == 0 {
		return configured
	}
	out := make([]channel.MapRule, 0, len(bindings)+len(configured))
	for _, b := range bindings {
		out = append(out, channel.MapRule{Selector: strconv.Itoa(int(b.PID)), CustomPID: b.CustomPID})
	}
	return append(out, configured...)
}

// bindingsToChanstate converts a channel's resolved, consumed map rules into
// persistable bindings. Only rules whose selector is a literal PID (decimal
// text) can round-trip through chanstate.Binding's PID column; role/language
// selectors ("video", "eng", ...) still resolve correctly every run from the
// PMT itself, so they are not persisted.
func bindingsToChanstate(channelName string, rules []channel.MapRule) []chanstate.Binding {
	out := make([]chanstate.Binding, 0, len(rules))
	for _, r := range rules {
		pid, err := strconv.ParseUint(r.Selector, 10, 16)
		if err != nil {
			continue
		}
		out = append(out, chanstate.Binding{Channel: channelName, PID: uint16(pid), Selector: r.Selector, CustomPID: r.CustomPID})
	}
	return out
}
