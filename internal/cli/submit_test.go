package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// openTable submits OPEN_TABLE for tableID and returns the new order id.
func openTable(t *testing.T, db, tableID string) string {
	t.Helper()
	out, err := execute(t, "", "submit", "--db", db, "--format", "json",
		"--type", "OPEN_TABLE", "--data", fmt.Sprintf(`{"table_id":%q,"table_name":%q,"guest_count":2}`, tableID, tableID))
	require.NoError(t, err, out)

	var responses []order.CommandResponse
	resp := decodeResponse(t, out, &responses)
	require.Equal(t, "ok", resp.Status)
	require.Len(t, responses, 1)
	require.True(t, responses[0].Success)
	require.NotEmpty(t, responses[0].OrderID)
	return responses[0].OrderID
}

// serveOrder adds two espressos to orderID, pays and completes it.
func serveOrder(t *testing.T, db, orderID string) {
	t.Helper()
	input := fmt.Sprintf(`[
  {"command_id": "add-1", "payload": {"type": "ADD_ITEMS", "data": {"order_id": %[1]q,
    "items": [{"product_id": "espresso", "name": "Espresso", "price": 350, "quantity": 2}]}}},
  {"command_id": "pay-1", "payload": {"type": "ADD_PAYMENT", "data": {"order_id": %[1]q, "method": "CASH", "amount": 700}}},
  {"command_id": "done-1", "payload": {"type": "COMPLETE_ORDER", "data": {"order_id": %[1]q}}}
]`, orderID)
	out, err := execute(t, input, "submit", "--db", db, "-")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ add-1 ADD_ITEMS")
	assert.Contains(t, out, "✓ done-1 COMPLETE_ORDER")
}

func TestSubmit_FlowAcrossInvocations(t *testing.T) {
	db := tempDB(t)
	orderID := openTable(t, db, "T1")
	serveOrder(t, db, orderID)

	out, err := execute(t, "", "snapshot", orderID, "--db", db, "--format", "json")
	require.NoError(t, err, out)

	var snap order.Snapshot
	resp := decodeResponse(t, out, &snap)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, order.StatusCompleted, snap.Status)
	assert.Equal(t, int64(700), snap.Total)
	assert.Equal(t, int64(700), snap.PaidAmount)
	assert.Equal(t, int64(0), snap.RemainingAmount)
	assert.Equal(t, int64(4), snap.LastSequence)
	assert.NotEmpty(t, snap.Checksum)
}

func TestSubmit_FromFile(t *testing.T) {
	db := tempDB(t)
	path := filepath.Join(t.TempDir(), "open.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"command_id": "open-1", "operator_id": "op-7", "operator_name": "Ana",
  "payload": {"type": "OPEN_TABLE", "data": {"table_id": "T9", "table_name": "Nine"}}}`), 0644))

	out, err := execute(t, "", "submit", path, "--db", db)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ open-1 OPEN_TABLE order=")

	out, err = execute(t, "", "sync", "--db", db, "--format", "json")
	require.NoError(t, err, out)
	var sync order.SyncResponse
	decodeResponse(t, out, &sync)
	require.Len(t, sync.Events, 1)
	assert.Equal(t, "op-7", sync.Events[0].OperatorID)
	assert.Equal(t, "Ana", sync.Events[0].OperatorName)
}

func TestSubmit_Rejected(t *testing.T) {
	db := tempDB(t)
	out, err := execute(t, "", "submit", "--db", db, "--id", "c-missing",
		"--type", "ADD_PAYMENT", "--data", `{"order_id":"nope","method":"CASH","amount":100}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ c-missing ADD_PAYMENT ORDER_NOT_FOUND")
	assert.Contains(t, out, "Error [E_REJECTED]: 1 command rejected")
}

func TestSubmit_RejectedJSON(t *testing.T) {
	db := tempDB(t)
	openTable(t, db, "T1")

	out, err := execute(t, "", "submit", "--db", db, "--format", "json",
		"--type", "OPEN_TABLE", "--data", `{"table_id":"T1"}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var responses []order.CommandResponse
	resp := decodeResponse(t, out, &responses)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRejected, resp.Error.Code)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, order.ErrTableOccupied, responses[0].Error.Code)
}

func TestSubmit_DuplicateCommandID(t *testing.T) {
	db := tempDB(t)
	args := []string{"submit", "--db", db, "--format", "json", "--id", "same",
		"--type", "OPEN_TABLE", "--data", `{"table_id":"T3"}`}

	first, err := execute(t, "", args...)
	require.NoError(t, err, first)
	second, err := execute(t, "", args...)
	require.NoError(t, err, second)
	assert.JSONEq(t, first, second)

	out, err := execute(t, "", "sync", "--db", db, "--format", "json")
	require.NoError(t, err)
	var sync order.SyncResponse
	decodeResponse(t, out, &sync)
	assert.Len(t, sync.Events, 1)
}

func TestSubmit_InvalidInput(t *testing.T) {
	db := tempDB(t)
	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"unknown_type", "", []string{"--type", "BOGUS"}},
		{"bad_data", "", []string{"--type", "OPEN_TABLE", "--data", "{"}},
		{"no_input", "", nil},
		{"type_and_file", "", []string{"--type", "OPEN_TABLE", "cmds.json"}},
		{"empty_stdin", "  ", []string{"-"}},
		{"empty_array", "[]", []string{"-"}},
		{"missing_file", "", []string{filepath.Join(t.TempDir(), "none.json")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"submit", "--db", db}, tt.args...)
			_, err := execute(t, tt.stdin, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), "invalid input")
		})
	}
}

func TestSubmit_BadRulesDirectory(t *testing.T) {
	_, err := execute(t, "", "submit", "--db", tempDB(t), "--rules", "../catalog/testdata/broken",
		"--type", "OPEN_TABLE", "--data", `{"table_id":"T1"}`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load rules")
}

func TestSubmit_WithRules(t *testing.T) {
	db := tempDB(t)
	out, err := execute(t, "", "submit", "--db", db, "--rules", "../catalog/testdata/menu", "--format", "json",
		"--type", "OPEN_TABLE", "--data", `{"table_id":"T5","zone_id":"terrace"}`)
	require.NoError(t, err, out)

	var responses []order.CommandResponse
	decodeResponse(t, out, &responses)
	require.Len(t, responses, 1)

	out, err = execute(t, "", "snapshot", responses[0].OrderID, "--db", db, "--format", "json")
	require.NoError(t, err, out)
	var snap order.Snapshot
	decodeResponse(t, out, &snap)

	ids := make([]string, 0, len(snap.Rules))
	for _, r := range snap.Rules {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"happy_hour", "terrace_fee"}, ids)
}
