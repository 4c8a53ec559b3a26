package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MapRule is one ordered rewrite rule from the `map` configuration option
// (spec §3, §6). Selector is either a literal PID (decimal text), a role tag
// ("video", "audio", "sub", "pmt"), a three-letter ISO-639 language code, or
// "" (catch-all). Consumed is set the first time the rule matches and the
// rule is never matched again afterward, until a reload re-arms it.
type MapRule struct {
	Selector  string
	CustomPID uint16
	Consumed  bool
}

// Config is the channel's configuration surface (spec §6). JSON tags follow
// the spec's own field names so a ConfigFile document reads naturally.
type Config struct {
	// Name identifies the channel instance for logging. Required.
	Name string `json:"name"`

	// PNRSet distinguishes "pnr configured, possibly as 0 meaning auto-select
	// the first program" from "pnr absent entirely", which is the plain
	// PID-pass-filter mode (spec §6: "pid ... in absence of pnr, the channel
	// is a plain PID pass filter"). JSON has no "key present but null" signal
	// cheap enough to hang this on, so the file format uses a pointer and
	// UnmarshalJSON below folds it into PNRSet/PNR.
	PNRSet bool   `json:"-"`
	PNR    uint16 `json:"-"`

	// PIDs is the plain pass-filter PID list, used only when !PNRSet.
	PIDs []uint16 `json:"pid,omitempty"`

	SetPNR    uint16 `json:"-"`
	HasSetPNR bool   `json:"-"`

	CAS      bool `json:"cas,omitempty"`
	NoSDT    bool `json:"no_sdt,omitempty"`
	NoEIT    bool `json:"no_eit,omitempty"`
	NoReload bool `json:"no_reload,omitempty"`
	PassSDT  bool `json:"pass_sdt,omitempty"`
	PassEIT  bool `json:"pass_eit,omitempty"`

	Map []MapRule `json:"map,omitempty"`

	// Filter lists PIDs to drop. FilterInverse, if non-empty, switches to
	// "only listed PIDs pass; all others are dropped" (spec's `filter~`).
	Filter        []uint16 `json:"filter,omitempty"`
	FilterInverse []uint16 `json:"filter_inverse,omitempty"`
}

// configFileShape is Config's on-the-wire JSON representation: pnr/set_pnr
// are optional integers (nil means absent), matching the spec's "in absence
// of pnr" / "in absence of set_pnr" language more directly than Config's own
// two-field PNRSet/PNR pair does.
type configFileShape struct {
	Name          string    `json:"name"`
	PNR           *uint16   `json:"pnr,omitempty"`
	PIDs          []uint16  `json:"pid,omitempty"`
	SetPNR        *uint16   `json:"set_pnr,omitempty"`
	CAS           bool      `json:"cas,omitempty"`
	NoSDT         bool      `json:"no_sdt,omitempty"`
	NoEIT         bool      `json:"no_eit,omitempty"`
	NoReload      bool      `json:"no_reload,omitempty"`
	PassSDT       bool      `json:"pass_sdt,omitempty"`
	PassEIT       bool      `json:"pass_eit,omitempty"`
	Map           []MapRule `json:"map,omitempty"`
	Filter        []uint16  `json:"filter,omitempty"`
	FilterInverse []uint16  `json:"filter_inverse,omitempty"`
}

func (c Config) MarshalJSON() ([]byte, error) {
	s := configFileShape{
		Name: c.Name, PIDs: c.PIDs, CAS: c.CAS, NoSDT: c.NoSDT, NoEIT: c.NoEIT,
		NoReload: c.NoReload, PassSDT: c.PassSDT, PassEIT: c.PassEIT,
		Map: c.Map, Filter: c.Filter, FilterInverse: c.FilterInverse,
	}
	if c.PNRSet {
		s.PNR = &c.PNR
	}
	if c.HasSetPNR {
		s.SetPNR = &c.SetPNR
	}
	return json.Marshal(s)
}

func (c *Config) UnmarshalJSON(b []byte) error {
	var s configFileShape
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return err
	}
	*c = Config{
		Name: s.Name, PIDs: s.PIDs, CAS: s.CAS, NoSDT: s.NoSDT, NoEIT: s.NoEIT,
		NoReload: s.NoReload, PassSDT: s.PassSDT, PassEIT: s.PassEIT,
		Map: s.Map, Filter: s.Filter, FilterInverse: s.FilterInverse,
	}
	if s.PNR != nil {
		c.PNRSet = true
		c.PNR = *s.PNR
	}
	if s.SetPNR != nil {
		c.HasSetPNR = true
		c.SetPNR = *s.SetPNR
	}
	return nil
}

// Validate checks the programmer-error-class constraints from spec §7:
// a missing name, or a PID outside [32,8190] for the plain pass-filter list,
// aborts construction immediately rather than failing later at runtime.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("channel: config: name is required")
	}
	if c.PNRSet && c.PNR > 65535 {
		return fmt.Errorf("channel: config: pnr out of range")
	}
	for _, p := range c.PIDs {
		if p < 32 || p > 8190 {
			return fmt.Errorf("channel: config: pid %d out of range [32,8190]", p)
		}
	}
	for _, r := range c.Map {
		if len(r.Selector) > 5 {
			return fmt.Errorf("channel: config: map selector %q exceeds 5 chars", r.Selector)
		}
		if r.CustomPID < 1 || r.CustomPID > 8190 {
			return fmt.Errorf("channel: config: map custom pid %d out of range [1,8190]", r.CustomPID)
		}
	}
	return nil
}

// pidFilteredStatic reports whether pid is dropped by the static
// filter/filter~ configuration, independent of any PSI-driven mapping.
func (c Config) pidFilteredStatic(pid uint16) bool {
	if len(c.FilterInverse) > 0 {
		for _, p := range c.FilterInverse {
			if p == pid {
				return false
			}
		}
		return true
	}
	for _, p := range c.Filter {
		if p == pid {
			return true
		}
	}
	return false
}
