package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// Scenario is a scripted sequence of commands against a fresh engine,
// followed by assertions on the resulting orders and event log.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is a directory of CUE rule and product definitions, resolved
	// relative to the scenario file. Optional.
	Catalog string `yaml:"catalog,omitempty"`

	// Epoch is the server epoch for the run. Defaults to "scenario".
	Epoch string `yaml:"epoch,omitempty"`

	// Flow is the ordered list of commands to submit.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final orders and event log.
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep submits one command.
//
// String values in Data of the form "$alias" are replaced with the order id
// captured by an earlier step's As. "$alias.item0", "$alias.payment1" and
// "$alias.comp0" resolve to the id of the n-th item, payment or comp record
// of that order at the time the step runs.
type FlowStep struct {
	// Command is the command type (e.g. "ADD_ITEMS").
	Command order.CommandType `yaml:"command"`

	// ID overrides the generated command id. Reusing an id replays it.
	ID string `yaml:"id,omitempty"`

	// Data is the command payload in its JSON field names.
	Data map[string]any `yaml:"data"`

	// Products appends catalog items to an ADD_ITEMS payload, keyed by
	// product id with the quantity as value.
	Products map[string]int `yaml:"products,omitempty"`

	// As captures the order id of a successful response under this alias.
	As string `yaml:"as,omitempty"`

	// Expect checks the response. If nil, the command must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected response.
type ExpectClause struct {
	Success bool            `yaml:"success"`
	Code    order.ErrorCode `yaml:"code,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Order is the alias of the order under test.
	Order string `yaml:"order,omitempty"`

	// Expect is a subset of the order snapshot in JSON field names
	// (order_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Event is the event type to count (event_count).
	Event order.EventType `yaml:"event,omitempty"`

	// Count is the expected number of events (event_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected subsequence of event types (event_order).
	Events []order.EventType `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertOrderState = "order_state"
	AssertEventOrder = "event_order"
	AssertEventCount = "event_count"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected. A relative catalog path is resolved against the file's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file, resolving
// the catalog path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Catalog != "" && !filepath.IsAbs(s.Catalog) && basePath != "" {
		s.Catalog = filepath.Join(basePath, s.Catalog)
	}
	if s.Catalog != "" {
		if _, err := os.Stat(s.Catalog); err != nil {
			return nil, fmt.Errorf("invalid scenario: catalog not found: %s", s.Catalog)
		}
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	aliases := make(map[string]bool)
	for i, step := range s.Flow {
		if step.Command == "" {
			return fmt.Errorf("flow[%d]: command is required", i)
		}
		if _, err := order.DecodeCommandPayload(step.Command, nil); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Data == nil {
			return fmt.Errorf("flow[%d]: data is required (use empty map if no fields)", i)
		}
		if len(step.Products) > 0 && step.Command != order.CmdAddItems {
			return fmt.Errorf("flow[%d]: products only apply to %s", i, order.CmdAddItems)
		}
		if len(step.Products) > 0 && s.Catalog == "" {
			return fmt.Errorf("flow[%d]: products require a catalog", i)
		}
		if step.Expect != nil && !step.Expect.Success && step.Expect.Code == "" {
			return fmt.Errorf("flow[%d].expect: code is required for a rejection", i)
		}
		if step.As != "" {
			aliases[step.As] = true
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, aliases); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion, aliases map[string]bool) error {
	if a.Order == "" {
		return fmt.Errorf("assertions[%d]: order is required", index)
	}
	if !aliases[a.Order] {
		return fmt.Errorf("assertions[%d]: unknown order alias %q", index, a.Order)
	}
	switch a.Type {
	case AssertOrderState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: %s requires expect", index, a.Type)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: %s requires events", index, a.Type)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: %s requires event", index, a.Type)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
	return nil
}
