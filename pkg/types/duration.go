package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Duration is a time.Duration that travels through JSON as a Go duration
// string ("5s"). Integer nanoseconds are still accepted on decode so stored
// definitions written before the string form keep loading.
type Duration time.Duration

// MarshalJSON writes the duration string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "5s", 5000000000 or null
func (d *Duration) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
	default:
		n, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid duration %s: want a string like \"5s\" or integer nanoseconds", b)
		}
		*d = Duration(n)
	}
	return nil
}

// healthCheckPolicyJSON is the wire form of HealthCheckPolicy
type healthCheckPolicyJSON struct {
	Interval Duration `json:"interval"`
	Timeout  Duration `json:"timeout"`
	Retries  int      `json:"retries"`
	Probe    *Probe   `json:"probe,omitempty"`
}

// MarshalJSON encodes the policy durations as strings
func (p HealthCheckPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(healthCheckPolicyJSON{
		Interval: Duration(p.Interval),
		Timeout:  Duration(p.Timeout),
		Retries:  p.Retries,
		Probe:    p.Probe,
	})
}

// UnmarshalJSON decodes a policy with string or nanosecond durations
func (p *HealthCheckPolicy) UnmarshalJSON(b []byte) error {
	var w healthCheckPolicyJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*p = HealthCheckPolicy{
		Interval: time.Duration(w.Interval),
		Timeout:  time.Duration(w.Timeout),
		Retries:  w.Retries,
		Probe:    w.Probe,
	}
	return nil
}
