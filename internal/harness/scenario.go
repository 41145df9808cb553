package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/evsync/internal/eventsync"
)

// Scenario is a scripted sequence of synchronizer operations with
// expectations about admission, eviction and group lifecycle.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policies is an optional CUE policy catalog directory. Enter steps
	// without an explicit scope resolve their policy from it.
	// Relative paths are resolved against the scenario file.
	Policies string `yaml:"policies,omitempty"`

	// Timeout overrides the staleness threshold (default 15s).
	Timeout Duration `yaml:"timeout,omitempty"`

	// GlobalSweepEvery overrides how often Tick sweeps the global group
	// while no subject groups exist.
	GlobalSweepEvery int `yaml:"global_sweep_every,omitempty"`

	// Connected lists subjects connected at start. When omitted, every
	// subject is connected the first time an enter step names it.
	Connected []string `yaml:"connected,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace once all steps have run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one scenario operation. Exactly one field must be set.
type Step struct {
	Enter      *EnterStep  `yaml:"enter,omitempty"`
	Exit       string      `yaml:"exit,omitempty"`
	Advance    Duration    `yaml:"advance,omitempty"`
	Tick       int         `yaml:"tick,omitempty"`
	Connect    string      `yaml:"connect,omitempty"`
	Disconnect string      `yaml:"disconnect,omitempty"`
	Expect     *ExpectStep `yaml:"expect,omitempty"`
}

// EnterStep submits one event.
type EnterStep struct {
	// ID names the entry for later exit and expect steps.
	ID string `yaml:"id"`

	// Kind is the payload kind; untagged entries are bucketed by it.
	Kind string `yaml:"kind"`

	// Subject is the owning subject. Empty means the payload has none.
	Subject string `yaml:"subject,omitempty"`

	// Scope is none, per_subject, global or pure. Empty resolves from the
	// policy catalog.
	Scope string `yaml:"scope,omitempty"`

	// Tags override the catalog tags when Scope is set.
	Tags []string `yaml:"tags,omitempty"`
}

// ExpectStep checks synchronizer state at this point of the scenario.
type ExpectStep struct {
	Admitted      []string        `yaml:"admitted,omitempty"`
	Pending       []string        `yaml:"pending,omitempty"`
	Evicted       []string        `yaml:"evicted,omitempty"`
	Groups        []string        `yaml:"groups,omitempty"`
	NoGroups      []string        `yaml:"no_groups,omitempty"`
	GlobalEntries *int            `yaml:"global_entries,omitempty"`
	Queued        *int            `yaml:"queued,omitempty"`
	Current       []CurrentExpect `yaml:"current,omitempty"`
}

// CurrentExpect checks a bucket's occupant. An empty Subject selects the
// global group; Tag selects a tag bucket, otherwise Kind a type bucket.
// An empty ID expects the bucket to be free.
type CurrentExpect struct {
	Subject string `yaml:"subject,omitempty"`
	Tag     string `yaml:"tag,omitempty"`
	Kind    string `yaml:"kind,omitempty"`
	ID      string `yaml:"id"`
}

// Assertion validates the recorded trace.
type Assertion struct {
	// Type is admission_order, trace_contains or trace_count.
	Type string `yaml:"type"`

	// Entries is the expected relative admission order (admission_order).
	Entries []string `yaml:"entries,omitempty"`

	// Record is the trace record type (trace_contains, trace_count).
	Record string `yaml:"record,omitempty"`

	// Entry optionally narrows trace_contains and trace_count.
	Entry string `yaml:"entry,omitempty"`

	// Bucket optionally narrows trace_contains.
	Bucket string `yaml:"bucket,omitempty"`

	// Count is the expected number of matching records (trace_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertAdmissionOrder = "admission_order"
	AssertTraceContains  = "trace_contains"
	AssertTraceCount     = "trace_count"
)

// Duration is a time.Duration written as a Go duration string ("16s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"16s\"", node.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly. A relative policies path is resolved
// against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Policies != "" && !filepath.IsAbs(scenario.Policies) {
		scenario.Policies = filepath.Join(filepath.Dir(path), scenario.Policies)
	}
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
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
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if s.GlobalSweepEvery < 0 {
		return fmt.Errorf("global_sweep_every must be positive")
	}

	seen := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, step, s.Policies != ""); err != nil {
			return err
		}
		if step.Enter != nil {
			if seen[step.Enter.ID] {
				return fmt.Errorf("steps[%d]: duplicate entry id %q", i, step.Enter.ID)
			}
			seen[step.Enter.ID] = true
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, hasCatalog bool) error {
	set := 0
	if step.Enter != nil {
		set++
	}
	if step.Exit != "" {
		set++
	}
	if step.Advance != 0 {
		set++
	}
	if step.Tick != 0 {
		set++
	}
	if step.Connect != "" {
		set++
	}
	if step.Disconnect != "" {
		set++
	}
	if step.Expect != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of enter, exit, advance, tick, connect, disconnect, expect is required", i)
	}

	if step.Advance < 0 {
		return fmt.Errorf("steps[%d]: advance must be positive", i)
	}
	if step.Tick < 0 {
		return fmt.Errorf("steps[%d]: tick must be positive", i)
	}

	if e := step.Enter; e != nil {
		if e.ID == "" {
			return fmt.Errorf("steps[%d].enter: id is required", i)
		}
		if e.Kind == "" {
			return fmt.Errorf("steps[%d].enter: kind is required", i)
		}
		if e.Scope == "" && !hasCatalog {
			return fmt.Errorf("steps[%d].enter: scope is required without a policies catalog", i)
		}
		if e.Scope != "" {
			if _, err := eventsync.ParseScope(e.Scope); err != nil {
				return fmt.Errorf("steps[%d].enter: %w", i, err)
			}
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertAdmissionOrder:
		if len(a.Entries) == 0 {
			return fmt.Errorf("assertions[%d]: entries list is required for admission_order", index)
		}
	case AssertTraceContains:
		if a.Record == "" {
			return fmt.Errorf("assertions[%d]: record is required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Record == "" {
			return fmt.Errorf("assertions[%d]: record is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
