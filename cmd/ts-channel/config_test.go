package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/plextuner/plex-tuner/internal/chanstate"
	"github.com/plextuner/plex-tuner/internal/channel"
)

func TestLoadChannelConfigsSingleMode(t *testing.T) {
	single := singleChannelFlags{name: "news1", pnr: -1, setPNR: -1}
	cfgs, outputs, err := loadChannelConfigs("", single, "", "udp://239.1.1.1:5000")
	if err != nil {
		t.Fatalf("loadChannelConfigs: %v", err)
	}
	if len(cfgs) != 1 || cfgs[0].Name != "news1" {
		t.Fatalf("want one channel named news1, got %+v", cfgs)
	}
	if outputs["news1"] != "udp://239.1.1.1:5000" {
		t.Fatalf("want default output wired, got %q", outputs["news1"])
	}
}

func TestLoadChannelConfigsSingleModeWithPNR(t *testing.T) {
	single := singleChannelFlags{name: "news1", pnr: 7, setPNR: -1}
	cfgs, _, err := loadChannelConfigs("", single, "", "-")
	if err != nil {
		t.Fatalf("loadChannelConfigs: %v", err)
	}
	if !cfgs[0].PNRSet || cfgs[0].PNR != 7 {
		t.Fatalf("want pnr=7 set, got %+v", cfgs[0])
	}
}

func TestLoadChannelConfigsFromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "channels.json")
	outputsPath := filepath.Join(dir, "outputs.json")

	channelsDoc := `{"channels":[
		{"name":"a","pnr":1},
		{"name":"b","pid":[256,257]}
	]}`
	if err := os.WriteFile(configPath, []byte(channelsDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	outputsDoc := `{"a":"file:///tmp/a.ts"}`
	if err := os.WriteFile(outputsPath, []byte(outputsDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfgs, outputs, err := loadChannelConfigs(configPath, singleChannelFlags{}, outputsPath, "-")
	if err != nil {
		t.Fatalf("loadChannelConfigs: %v", err)
	}
	if len(cfgs) != 2 {
		t.Fatalf("want 2 channels, got %d", len(cfgs))
	}
	if outputs["a"] != "file:///tmp/a.ts" {
		t.Fatalf("want channel a's configured output, got %q", outputs["a"])
	}
	if outputs["b"] != "-" {
		t.Fatalf("want channel b to fall back to the default output, got %q", outputs["b"])
	}
}

func TestLoadChannelConfigsWithoutOutputsFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "channels.json")
	if err := os.WriteFile(configPath, []byte(`{"channels":[{"name":"a"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, outputs, err := loadChannelConfigs(configPath, singleChannelFlags{}, "", "udp://10.0.0.1:5000")
	if err != nil {
		t.Fatalf("loadChannelConfigs: %v", err)
	}
	if outputs["a"] != "udp://10.0.0.1:5000" {
		t.Fatalf("want default output applied when no -outputs file is given, got %q", outputs["a"])
	}
}

func TestLoadOutputs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "outputs.json")
	if err := os.WriteFile(path, []byte(`{"b":"udp://10.0.0.1:5000"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	outputs, err := loadOutputs(path)
	if err != nil {
		t.Fatalf("loadOutputs: %v", err)
	}
	if _, ok := outputs["a"]; ok {
		t.Fatalf("unconfigured channel a should not appear")
	}
	if outputs["b"] != "udp://10.0.0.1:5000" {
		t.Fatalf("want channel b's output, got %q", outputs["b"])
	}
}

func TestPrependPersistedBindings(t *testing.T) {
	configured := []channel.MapRule{{Selector: "video", CustomPID: 100}}
	bindings := []chanstate.Binding{{PID: 256, CustomPID: 600}}

	got := prependPersistedBindings(bindings, configured)
	if len(got) != 2 {
		t.Fatalf("want 2 rules, got %d", len(got))
	}
	if got[0].Selector != "256" || got[0].CustomPID != 600 {
		t.Fatalf("want persisted binding first, got %+v", got[0])
	}
	if got[1] != configured[0] {
		t.Fatalf("want configured rule preserved after persisted bindings, got %+v", got[1])
	}
}

func TestPrependPersistedBindingsNoneStored(t *testing.T) {
	configured := []channel.MapRule{{Selector: "audio", CustomPID: 101}}
	got := prependPersistedBindings(nil, configured)
	if len(got) != 1 || got[0] != configured[0] {
		t.Fatalf("want configured rules returned unchanged, got %+v", got)
	}
}

func TestBindingsToChanstateSkipsNonNumericSelectors(t *testing.T) {
	rules := []channel.MapRule{
		{Selector: "256", CustomPID: 600, Consumed: true},
		{Selector: "video", CustomPID: 100, Consumed: true},
	}
	out := bindingsToChanstate("news1", rules)
	if len(out) != 1 {
		t.Fatalf("want only the literal-PID rule persisted, got %+v", out)
	}
	if out[0].PID != 256 || out[0].CustomPID != 600 || out[0].Channel != "news1" {
		t.Fatalf("unexpected binding: %+v", out[0])
	}
}
