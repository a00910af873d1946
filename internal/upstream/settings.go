package upstream

import "encoding/json"

// Settings is the persisted shape of an upstream entry: its six property
// values. It is also the snapshot a reset deep-copies before tearing the
// entry down and recreating it.
type Settings struct {
	Name       string `json:"name"`
	BrokerName string `json:"brokerName"`
	URL        string `json:"url"`
	Token      string `json:"token"`
	Group      string `json:"group"`
	Enabled    bool   `json:"enabled"`
}

// Clone returns a deep copy, so a reset's re-creation never aliases the
// entry it is replacing.
func (s Settings) Clone() Settings {
	return s
}

func (s Settings) validate() error {
	if s.Name == "" || s.BrokerName == "" || s.URL == "" {
		return ErrInvalidParameter
	}
	return nil
}

// UnmarshalJSON implements the "enabled defaults to true when absent or
// non-boolean" rule: only an explicit JSON `false` disables the entry.
// Unknown keys are ignored.
func (s *Settings) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name       string          `json:"name"`
		BrokerName string          `json:"brokerName"`
		URL        string          `json:"url"`
		Token      string          `json:"token"`
		Group      string          `json:"group"`
		Enabled    json.RawMessage `json:"enabled"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Name = raw.Name
	s.BrokerName = raw.BrokerName
	s.URL = raw.URL
	s.Token = raw.Token
	s.Group = raw.Group

	enabled := true
	if len(raw.Enabled) > 0 {
		var b bool
		if err := json.Unmarshal(raw.Enabled, &b); err == nil {
			enabled = b
		}
	}
	s.Enabled = enabled
	return nil
}

// MarshalJSON always emits all six properties.
func (s Settings) MarshalJSON() ([]byte, error) {
	out := struct {
		Name       string `json:"name"`
		BrokerName string `json:"brokerName"`
		URL        string `json:"url"`
		Token      string `json:"token"`
		Group      string `json:"group"`
		Enabled    bool   `json:"enabled"`
	}{s.Name, s.BrokerName, s.URL, s.Token, s.Group, s.Enabled}
	return json.Marshal(out)
}
