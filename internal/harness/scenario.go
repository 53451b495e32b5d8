package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/seatbelt/internal/policy"
)

// Scenario is one ratchet conformance case: an initial record, a config,
// and a sequence of lint results fed through a session.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is the content of seatbelt.yaml. It is validated against the
	// config schema exactly like a real config file.
	Config yaml.Node `yaml:"config,omitempty"`

	// Env is the environment seen by policy resolution.
	Env map[string]string `yaml:"env,omitempty"`

	// Record is the initial record as file -> rule -> count.
	Record map[string]map[string]int `yaml:"record,omitempty"`

	// RecordText is raw initial record content, for malformed-input cases.
	// Mutually exclusive with Record.
	RecordText string `yaml:"record_text,omitempty"`

	// Missing lists source files that do not exist on disk. Every other
	// file named by Record or a step is created empty.
	Missing []string `yaml:"missing,omitempty"`

	// Steps run in order against one session.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is either one linted file or, with Finish set, the end of the run.
type Step struct {
	// File is the source file key, relative to the scenario directory.
	File string `yaml:"file,omitempty"`

	// Errors is the number of countable errors per rule.
	Errors map[string]int `yaml:"errors,omitempty"`

	// Warnings is the number of warnings per rule. Never counted.
	Warnings map[string]int `yaml:"warnings,omitempty"`

	// Flags is the command-line layer for this step.
	Flags policy.Config `yaml:"flags,omitempty"`

	// Finish runs the exit sweep instead of linting a file.
	Finish bool `yaml:"finish,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks one step's result. Unset fields are not checked.
type Expect struct {
	// Outcomes maps rule to expected outcome (subset match).
	Outcomes map[string]string `yaml:"outcomes,omitempty"`

	// Errors is the number of error-severity diagnostics returned.
	Errors *int `yaml:"errors,omitempty"`

	Changed      *bool `yaml:"changed,omitempty"`
	Inconsistent *bool `yaml:"inconsistent,omitempty"`

	// Error is a substring of the error the step must fail with.
	Error string `yaml:"error,omitempty"`

	// Removed is the exact list of keys a finish step drops.
	Removed []string `yaml:"removed,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Record is the expected final record (used by record).
	Record map[string]map[string]int `yaml:"record,omitempty"`

	// Stats are expected session statistics, by JSON name (used by stats).
	// Subset match.
	Stats map[string]int `yaml:"stats,omitempty"`

	// Removed is the expected list of swept keys (used by removed).
	Removed []string `yaml:"removed,omitempty"`
}

// Assertion type constants.
const (
	AssertRecord          = "record"
	AssertRecordUnchanged = "record_unchanged"
	AssertNoRecord        = "no_record"
	AssertStats           = "stats"
	AssertRemoved         = "removed"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Record) > 0 && s.RecordText != "" {
		return fmt.Errorf("record and record_text are mutually exclusive")
	}
	if s.Config.Kind != 0 && s.Config.Kind != yaml.MappingNode {
		return fmt.Errorf("config must be a mapping")
	}

	for i, step := range s.Steps {
		switch {
		case step.Finish && step.File != "":
			return fmt.Errorf("steps[%d]: finish and file are mutually exclusive", i)
		case !step.Finish && step.File == "":
			return fmt.Errorf("steps[%d]: file is required", i)
		}
		for rule, n := range step.Errors {
			if rule == "" || n < 0 {
				return fmt.Errorf("steps[%d]: invalid error count %q: %d", i, rule, n)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertRecord:
		if a.Record == nil {
			return fmt.Errorf("assertions[%d]: record is required for record", index)
		}
	case AssertStats:
		if len(a.Stats) == 0 {
			return fmt.Errorf("assertions[%d]: stats is required for stats", index)
		}
	case AssertRecordUnchanged, AssertNoRecord, AssertRemoved:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
