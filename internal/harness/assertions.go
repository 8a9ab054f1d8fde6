package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Order    string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %s on %s failed: expected %s, got %s", e.Type, e.Order, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against the result. aliases
// maps order aliases to order ids. Returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion, aliases map[string]string) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(result, a, aliases); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, aliases map[string]string) error {
	orderID, ok := aliases[a.Order]
	if !ok {
		return &AssertionError{Type: a.Type, Order: a.Order, Expected: "a captured order", Actual: "alias never bound"}
	}
	switch a.Type {
	case AssertOrderState:
		return assertOrderState(result.Orders[a.Order], a)
	case AssertEventOrder:
		return assertEventOrder(result.OrderEvents(orderID), a)
	case AssertEventCount:
		return assertEventCount(result.OrderEvents(orderID), a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertOrderState compares expected fields against the snapshot's JSON
// form. Maps match as subsets; lists match element-wise.
func assertOrderState(snap order.Snapshot, a Assertion) error {
	actual, err := toJSONValue(snap)
	if err != nil {
		return err
	}
	expected, err := toJSONValue(a.Expect)
	if err != nil {
		return err
	}

	var mismatches []string
	want := expected.(map[string]any)
	got := actual.(map[string]any)
	for _, k := range sortedKeys(want) {
		if !matchSubset(got[k], want[k]) {
			mismatches = append(mismatches, fmt.Sprintf("%s=%v (want %v)", k, got[k], want[k]))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertOrderState,
			Order:    a.Order,
			Expected: fmt.Sprintf("%v", a.Expect),
			Actual:   strings.Join(mismatches, ", "),
		}
	}
	return nil
}

// assertEventOrder checks that the event types appear in the given order.
// Intervening events are allowed.
func assertEventOrder(events []order.Event, a Assertion) error {
	next := 0
	for _, ev := range events {
		if next < len(a.Events) && ev.EventType == a.Events[next] {
			next++
		}
	}
	if next == len(a.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventOrder,
		Order:    a.Order,
		Expected: fmt.Sprintf("%v in order", a.Events),
		Actual:   fmt.Sprintf("%v (missing %s)", eventTypes(events), a.Events[next]),
	}
}

func assertEventCount(events []order.Event, a Assertion) error {
	n := 0
	for _, ev := range events {
		if ev.EventType == a.Event {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Order:    a.Order,
		Expected: fmt.Sprintf("%d %s", a.Count, a.Event),
		Actual:   fmt.Sprintf("%d", n),
	}
}

func eventTypes(events []order.Event) []order.EventType {
	out := make([]order.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.EventType
	}
	return out
}

// toJSONValue round-trips v through JSON so numbers compare as float64
// on both sides.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func matchSubset(actual, expected any) bool {
	switch want := expected.(type) {
	case map[string]any:
		got, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range want {
			if !matchSubset(got[k], v) {
				return false
			}
		}
		return true
	case []any:
		got, ok := actual.([]any)
		if !ok || len(got) != len(want) {
			return false
		}
		for i := range want {
			if !matchSubset(got[i], want[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(actual, expected)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
