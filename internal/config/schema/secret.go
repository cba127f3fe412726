package schema

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Secret holds a credential (Redis password, API token).
// It prints and serializes masked; Value returns the real string.
type Secret string

// NewSecret creates a new Secret from a string
func NewSecret(value string) Secret {
	return Secret(value)
}

// String returns a masked representation safe for logs
func (s Secret) String() string {
	switch {
	case len(s) == 0:
		return ""
	case len(s) <= 4:
		return "****"
	default:
		return string(s[:2]) + "****" + string(s[len(s)-2:])
	}
}

// Value returns the unmasked secret
func (s Secret) Value() string {
	return string(s)
}

// IsEmpty returns true if the secret is empty
func (s Secret) IsEmpty() bool {
	return len(s) == 0
}

// MarshalJSON implements json.Marshaler with masking
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (s *Secret) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = Secret(str)
	return nil
}

// MarshalYAML implements yaml.Marshaler with masking
func (s Secret) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (s *Secret) UnmarshalYAML(node *yaml.Node) error {
	var str string
	if err := node.Decode(&str); err != nil {
		return err
	}
	*s = Secret(str)
	return nil
}
