package server

import (
	"fmt"
	"strings"

	"github.com/Iyzyman/facilitybook/internal/booking"
)

// Semantics selects the remote-invocation policy for the whole process
// lifetime (§4.4: "set at process start and never changes").
type Semantics string

const (
	AtLeastOnce Semantics = "at-least-once"
	AtMostOnce  Semantics = "at-most-once"
)

// ParseSemantics validates a semantics string from a flag, config file or
// environment variable.
func ParseSemantics(s string) (Semantics, error) {
	switch Semantics(strings.ToLower(s)) {
	case AtLeastOnce:
		return AtLeastOnce, nil
	case AtMostOnce:
		return AtMostOnce, nil
	default:
		return "", fmt.Errorf("unknown semantics %q: choose %q or %q", s, AtLeastOnce, AtMostOnce)
	}
}

// Config is the fully-resolved server configuration, built by layering CLI
// flags over environment variables over an optional YAML file over the
// defaults below (the dittofs-style precedence order, see SPEC_FULL.md).
type Config struct {
	Port              int       `mapstructure:"port"`
	Semantics         Semantics `mapstructure:"semantics"`
	RequestLoss       float64   `mapstructure:"request_loss"`
	ReplyLoss         float64   `mapstructure:"reply_loss"`
	Facilities        []string  `mapstructure:"facilities"`
	MetricsAddr       string    `mapstructure:"metrics_addr"`
}

// Defaults returns the baseline config applied before any flag, env or file
// override.
func Defaults() Config {
	return Config{
		Port:        2222,
		Semantics:   AtLeastOnce,
		RequestLoss: 0,
		ReplyLoss:   0,
		Facilities:  append([]string(nil), booking.DefaultFacilities...),
		MetricsAddr: "",
	}
}

// Validate checks field ranges and required invariants. Missing loss
// probabilities already default to 0 by construction (§6); this only
// rejects out-of-range values and an unset facility list.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := ParseSemantics(string(c.Semantics)); err != nil {
		return err
	}
	if c.RequestLoss < 0 || c.RequestLoss > 1 {
		return fmt.Errorf("request loss probability %f out of [0,1]", c.RequestLoss)
	}
	if c.ReplyLoss < 0 || c.ReplyLoss > 1 {
		return fmt.Errorf("reply loss probability %f out of [0,1]", c.ReplyLoss)
	}
	if len(c.Facilities) == 0 {
		return fmt.Errorf("at least one facility must be configured")
	}
	return nil
}

// ApplyLossArgs implements §6/§9's "one or two loss probabilities" ambiguity:
// a single value in args applies to both directions; two apply
// independently.
func (c *Config) ApplyLossArgs(args []float64) error {
	switch len(args) {
	case 0:
		// both keep their current values (0 unless the file or env set them)
	case 1:
		c.RequestLoss = args[0]
		c.ReplyLoss = args[0]
	case 2:
		c.RequestLoss = args[0]
		c.ReplyLoss = args[1]
	default:
		return fmt.Errorf("expected at most 2 loss probabilities, got %d", len(args))
	}
	return nil
}
