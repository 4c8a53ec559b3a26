package channel

import (
	"strings"
	"testing"
)

func TestConfigFileRoundTripsPNRAndMapRules(t *testing.T) {
	doc := `{
		"channels": [
			{
				"name": "bbc1",
				"pnr": 0,
				"set_pnr": 100,
				"map": [{"selector":"video","custom_pid":512},{"selector":"audio","custom_pid":513}],
				"cas": true
			},
			{
				"name": "passthrough",
				"pid": [256, 257]
			}
		]
	}`

	cf, err := decodeConfigFile(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decodeConfigFile: %v", err)
	}
	if len(cf.Channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(cf.Channels))
	}

	bbc := cf.Channels[0]
	if !bbc.PNRSet || bbc.PNR != 0 {
		t.Fatalf("bbc1 PNRSet/PNR = %v/%d, want true/0 (auto-select)", bbc.PNRSet, bbc.PNR)
	}
	if !bbc.HasSetPNR || bbc.SetPNR != 100 {
		t.Fatalf("bbc1 HasSetPNR/SetPNR = %v/%d, want true/100", bbc.HasSetPNR, bbc.SetPNR)
	}
	if len(bbc.Map) != 2 || bbc.Map[0].Selector != "video" || bbc.Map[0].CustomPID != 512 {
		t.Fatalf("bbc1 map = %+v", bbc.Map)
	}
	if !bbc.CAS {
		t.Fatal("bbc1 CAS = false, want true")
	}

	pass := cf.Channels[1]
	if pass.PNRSet {
		t.Fatal("passthrough PNRSet = true, want false (no pnr key present)")
	}
	if len(pass.PIDs) != 2 || pass.PIDs[0] != 256 || pass.PIDs[1] != 257 {
		t.Fatalf("passthrough pids = %v", pass.PIDs)
	}
}

func TestConfigFileRejectsUnknownField(t *testing.T) {
	doc := `{"channels": [{"name": "x", "bogus_field": 1}]}`
	if _, err := decodeConfigFile(strings.NewReader(doc)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestConfigFileRejectsDuplicateNames(t *testing.T) {
	doc := `{"channels": [{"name": "x", "pid": [256]}, {"name": "x", "pid": [257]}]}`
	if _, err := decodeConfigFile(strings.NewReader(doc)); err == nil {
		t.Fatal("expected error for duplicate channel name")
	}
}

func TestConfigFileRejectsEmpty(t *testing.T) {
	doc := `{"channels": []}`
	if _, err := decodeConfigFile(strings.NewReader(doc)); err == nil {
		t.Fatal("expected error for empty channel list")
	}
}

func TestConfigFileRejectsInvalidChannel(t *testing.T) {
	doc := `{"channels": [{"name": "x", "pid": [1]}]}`
	if _, err := decodeConfigFile(strings.NewReader(doc)); err == nil {
		t.Fatal("expected error for pid out of range")
	}
}
