package channel

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ConfigFile is the on-disk shape for running several channels from one
// JSON document, the multi-instance counterpart to a single channel's flag
// surface. Grounded on internal/supervisor.LoadConfig's
// json.NewDecoder+DisallowUnknownFields pattern, so a typo'd field name
// fails config load instead of being silently ignored.
type ConfigFile struct {
	Channels []Config `json:"channels"`
}

// MapRule's JSON shape mirrors the struct fields directly; Consumed is
// runtime-only state and is never read from or written to a config file.
func (r MapRule) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Selector  string `json:"selector"`
		CustomPID uint16 `json:"custom_pid"`
	}{r.Selector, r.CustomPID})
}

func (r *MapRule) UnmarshalJSON(b []byte) error {
	var v struct {
		Selector  string `json:"selector"`
		CustomPID uint16 `json:"custom_pid"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	r.Selector = v.Selector
	r.CustomPID = v.CustomPID
	r.Consumed = false
	return nil
}

// LoadConfigFile reads and validates a multi-channel JSON config from path.
// Every channel's Validate is run immediately so a bad config fails at load
// time rather than at the first packet.
func LoadConfigFile(path string) (ConfigFile, error) {
	var cf ConfigFile
	f, err := os.Open(path)
	if err != nil {
		return cf, err
	}
	defer f.Close()
	return decodeConfigFile(f)
}

func decodeConfigFile(r io.Reader) (ConfigFile, error) {
	var cf ConfigFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cf); err != nil {
		return cf, fmt.Errorf("channel: decode config: %w", err)
	}
	if len(cf.Channels) == 0 {
		return cf, fmt.Errorf("channel: config has no channels")
	}
	seen := make(map[string]struct{}, len(cf.Channels))
	for i := range cf.Channels {
		c := &cf.Channels[i]
		if _, ok := seen[c.Name]; ok {
			return cf, fmt.Errorf("channel: duplicate channel name %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if err := c.Validate(); err != nil {
			return cf, fmt.Errorf("channel %q: %w", c.Name, err)
		}
	}
	return cf, nil
}
