package policy

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRecordFile is the record filename used when none is configured.
const DefaultRecordFile = "seatbelt.tsv"

// DefaultLockTimeout bounds how long a threadsafe run waits for the record lock.
const DefaultLockTimeout = 5 * time.Second

// Verbosity selects where the per-file log and run summary go.
type Verbosity int

const (
	VerboseOff Verbosity = iota
	VerboseStdout
	VerboseStderr
)

func (v Verbosity) String() string {
	switch v {
	case VerboseStdout:
		return "stdout"
	case VerboseStderr:
		return "stderr"
	default:
		return "off"
	}
}

// ParseVerbosity accepts a boolean spelling or a sink name.
// A true boolean selects stderr.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "no", "off":
		return VerboseOff, nil
	case "1", "true", "yes", "on", "stderr":
		return VerboseStderr, nil
	case "stdout":
		return VerboseStdout, nil
	default:
		return VerboseOff, fmt.Errorf("invalid verbosity %q", s)
	}
}

// UnmarshalYAML accepts a boolean or "stdout"/"stderr".
func (v *Verbosity) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: verbose must be a boolean or sink name", node.Line)
	}
	parsed, err := ParseVerbosity(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*v = parsed
	return nil
}

func (v Verbosity) MarshalYAML() (any, error) {
	if v == VerboseOff {
		return false, nil
	}
	return v.String(), nil
}

// Config is one layer of run options. A nil field is unset and leaves the
// value from lower-precedence layers in place.
type Config struct {
	RecordFile         *string        `yaml:"recordFile,omitempty"`
	KeepRules          *RuleSet       `yaml:"keepRules,omitempty"`
	AllowIncreaseRules *RuleSet       `yaml:"allowIncreaseRules,omitempty"`
	ActiveRules        *RuleSet       `yaml:"activeRules,omitempty"`
	Frozen             *bool          `yaml:"frozen,omitempty"`
	Disable            *bool          `yaml:"disable,omitempty"`
	Threadsafe         *bool          `yaml:"threadsafe,omitempty"`
	Verbose            *Verbosity     `yaml:"verbose,omitempty"`
	HistoryFile        *string        `yaml:"historyFile,omitempty"`
	LockTimeout        *time.Duration `yaml:"lockTimeout,omitempty"`
}

// Merge returns base with every set field of override applied on top.
// Neither argument is modified.
func Merge(base, override Config) Config {
	return Config{
		RecordFile:         pick(base.RecordFile, override.RecordFile),
		KeepRules:          pick(base.KeepRules, override.KeepRules),
		AllowIncreaseRules: pick(base.AllowIncreaseRules, override.AllowIncreaseRules),
		ActiveRules:        pick(base.ActiveRules, override.ActiveRules),
		Frozen:             pick(base.Frozen, override.Frozen),
		Disable:            pick(base.Disable, override.Disable),
		Threadsafe:         pick(base.Threadsafe, override.Threadsafe),
		Verbose:            pick(base.Verbose, override.Verbose),
		HistoryFile:        pick(base.HistoryFile, override.HistoryFile),
		LockTimeout:        pick(base.LockTimeout, override.LockTimeout),
	}
}

func pick[T any](base, override *T) *T {
	if override != nil {
		return override
	}
	return base
}

// Ptr returns a pointer to v, for building Config literals.
func Ptr[T any](v T) *T {
	return &v
}

// Defaults is the lowest-precedence layer.
func Defaults() Config {
	return Config{
		RecordFile:         Ptr(DefaultRecordFile),
		KeepRules:          Ptr(NewRuleSet()),
		AllowIncreaseRules: Ptr(NewRuleSet()),
		Frozen:             Ptr(false),
		Disable:            Ptr(false),
		Threadsafe:         Ptr(false),
		Verbose:            Ptr(VerboseOff),
		LockTimeout:        Ptr(DefaultLockTimeout),
	}
}

// Policy is a fully resolved configuration for one file.
type Policy struct {
	RecordFile         string        `json:"recordFile"`
	KeepRules          RuleSet       `json:"keepRules"`
	AllowIncreaseRules RuleSet       `json:"allowIncreaseRules"`
	ActiveRules        *RuleSet      `json:"activeRules,omitempty"`
	Frozen             bool          `json:"frozen"`
	Disabled           bool          `json:"disable"`
	Threadsafe         bool          `json:"threadsafe"`
	Verbose            Verbosity     `json:"verbose"`
	HistoryFile        string        `json:"historyFile,omitempty"`
	LockTimeout        time.Duration `json:"lockTimeout"`
}

// RuleActive reports whether rule is among the rules being linted.
// With no active set configured every rule is active.
func (p Policy) RuleActive(rule string) bool {
	return p.ActiveRules == nil || p.ActiveRules.Has(rule)
}

// Resolve merges layers over Defaults in order and flattens the result.
func Resolve(layers ...Config) Policy {
	merged := Defaults()
	for _, l := range layers {
		merged = Merge(merged, l)
	}
	return merged.flatten()
}

func (c Config) flatten() Policy {
	p := Policy{
		RecordFile:         deref(c.RecordFile),
		KeepRules:          deref(c.KeepRules),
		AllowIncreaseRules: deref(c.AllowIncreaseRules),
		ActiveRules:        c.ActiveRules,
		Frozen:             deref(c.Frozen),
		Disabled:           deref(c.Disable),
		Threadsafe:         deref(c.Threadsafe),
		Verbose:            deref(c.Verbose),
		HistoryFile:        deref(c.HistoryFile),
		LockTimeout:        deref(c.LockTimeout),
	}
	if p.RecordFile == "" {
		p.RecordFile = DefaultRecordFile
	}
	if p.LockTimeout <= 0 {
		p.LockTimeout = DefaultLockTimeout
	}
	return p
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
