package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/terrace_dinner.yaml")
	require.NoError(t, err)

	assert.Equal(t, "terrace_dinner", s.Name)
	assert.Equal(t, filepath.Join("testdata", "menu"), s.Catalog)
	require.Len(t, s.Flow, 7)
	assert.Equal(t, order.CmdOpenTable, s.Flow[0].Command)
	assert.Equal(t, "t1", s.Flow[0].As)
	assert.Equal(t, map[string]int{"espresso": 2, "burger": 1}, s.Flow[1].Products)
	require.NotNil(t, s.Flow[2].Expect)
	assert.Equal(t, order.ErrInvalidAmount, s.Flow[2].Expect.Code)
	require.Len(t, s.Assertions, 3)
	assert.Equal(t, AssertEventCount, s.Assertions[2].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MissingCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	content := `
name: s
description: d
catalog: nowhere
flow:
  - command: OPEN_TABLE
    data: {table_id: T1}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog not found")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: s\ndescription: d\nflows: []\n",
			want: "field flows not found",
		},
		{
			name: "missing name",
			yaml: "description: d\nflow: [{command: OPEN_TABLE, data: {}}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: s\nflow: [{command: OPEN_TABLE, data: {}}]\n",
			want: "description is required",
		},
		{
			name: "empty flow",
			yaml: "name: s\ndescription: d\n",
			want: "flow list is required",
		},
		{
			name: "missing command",
			yaml: "name: s\ndescription: d\nflow: [{data: {}}]\n",
			want: "flow[0]: command is required",
		},
		{
			name: "unknown command",
			yaml: "name: s\ndescription: d\nflow: [{command: REFUND, data: {}}]\n",
			want: `unknown command type "REFUND"`,
		},
		{
			name: "missing data",
			yaml: "name: s\ndescription: d\nflow: [{command: OPEN_TABLE}]\n",
			want: "flow[0]: data is required",
		},
		{
			name: "products outside add items",
			yaml: "name: s\ndescription: d\ncatalog: x\nflow: [{command: OPEN_TABLE, data: {}, products: {a: 1}}]\n",
			want: "products only apply to ADD_ITEMS",
		},
		{
			name: "products without catalog",
			yaml: "name: s\ndescription: d\nflow: [{command: ADD_ITEMS, data: {}, products: {a: 1}}]\n",
			want: "products require a catalog",
		},
		{
			name: "rejection without code",
			yaml: "name: s\ndescription: d\nflow: [{command: OPEN_TABLE, data: {}, expect: {success: false}}]\n",
			want: "code is required",
		},
		{
			name: "assertion on unknown alias",
			yaml: "name: s\ndescription: d\nflow: [{command: OPEN_TABLE, data: {}}]\nassertions: [{type: order_state, order: x, expect: {status: ACTIVE}}]\n",
			want: `unknown order alias "x"`,
		},
		{
			name: "unknown assertion type",
			yaml: "name: s\ndescription: d\nflow: [{command: OPEN_TABLE, data: {}, as: t}]\nassertions: [{type: final_state, order: t}]\n",
			want: `unknown type "final_state"`,
		},
		{
			name: "order_state without expect",
			yaml: "name: s\ndescription: d\nflow: [{command: OPEN_TABLE, data: {}, as: t}]\nassertions: [{type: order_state, order: t}]\n",
			want: "order_state requires expect",
		},
		{
			name: "event_order without events",
			yaml: "name: s\ndescription: d\nflow: [{command: OPEN_TABLE, data: {}, as: t}]\nassertions: [{type: event_order, order: t}]\n",
			want: "event_order requires events",
		},
		{
			name: "event_count without event",
			yaml: "name: s\ndescription: d\nflow: [{command: OPEN_TABLE, data: {}, as: t}]\nassertions: [{type: event_count, order: t, count: 1}]\n",
			want: "event_count requires event",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
