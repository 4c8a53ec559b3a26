package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/plextuner/plex-tuner/internal/channel"
)

// singleChannelFlags bundles the flags used to build a one-channel
// configuration when -config is not given.
type singleChannelFlags struct {
	name          string
	pnr           int
	setPNR        int
	cas           bool
	noSDT         bool
	noEIT         bool
	noReload      bool
	passSDT       bool
	passEIT       bool
	pids          []uint16
	filter        []uint16
	filterInverse []uint16
	mapRules      []channel.MapRule
}

func (f singleChannelFlags) toConfig() channel.Config {
	cfg := channel.Config{
		Name:          f.name,
		PIDs:          f.pids,
		CAS:           f.cas,
		NoSDT:         f.noSDT,
		NoEIT:         f.noEIT,
		NoReload:      f.noReload,
		PassSDT:       f.passSDT,
		PassEIT:       f.passEIT,
		Map:           f.mapRules,
		Filter:        f.filter,
		FilterInverse: f.filterInverse,
	}
	if f.pnr >= 0 {
		cfg.PNRSet = true
		cfg.PNR = uint16(f.pnr)
	}
	if f.setPNR >= 0 {
		cfg.HasSetPNR = true
		cfg.SetPNR = uint16(f.setPNR)
	}
	return cfg
}

// loadChannelConfigs resolves the set of channels to run: from a JSON
// ConfigFile when configPath is non-empty, otherwise a single channel built
// from the command-line flags. outputsPath, if non-empty, names a second
// JSON document mapping channel name to output sink address — kept
// separate from the channel config document entirely, since
// channel.ConfigFile's DisallowUnknownFields decoding (see
// internal/channel/configfile.go) would reject any key it doesn't know
// about, and output routing is a concern of this CLI alone, not of the
// channel module's own configuration surface.
func loadChannelConfigs(configPath string, single singleChannelFlags, outputsPath, defaultOutput string) ([]channel.Config, map[string]string, error) {
	var cfgs []channel.Config
	if configPath == "" {
		cfg := single.toConfig()
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
		cfgs = []channel.Config{cfg}
	} else {
		cf, err := channel.LoadConfigFile(configPath)
		if err != nil {
			return nil, nil, err
		}
		cfgs = cf.Channels
	}

	outputs := map[string]string{}
	if outputsPath != "" {
		var err error
		outputs, err = loadOutputs(outputsPath)
		if err != nil {
			return nil, nil, err
		}
	}
	for _, cfg := range cfgs {
		if _, ok := outputs[cfg.Name]; !ok {
			outputs[cfg.Name] = defaultOutput
		}
	}
	return cfgs, outputs, nil
}

// loadOutputs reads a flat JSON object of channel name to output sink
// address, e.g. {"news1": "udp://239.1.1.1:6000", "news2": "file:///var/ts/news2.ts"}.
func loadOutputs(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ts-channel: read %q: %w", path, err)
	}
	var outputs map[string]string
	if err := json.Unmarshal(raw, &outputs); err != nil {
		return nil, fmt.Errorf("ts-channel: parse outputs from %q: %w", path, err)
	}
	return outputs, nil
}
