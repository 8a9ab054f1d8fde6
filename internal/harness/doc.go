// Package harness runs scripted order scenarios against a fresh engine.
//
// Every scenario gets its own in-memory event log, sequencer and command
// gateway. Command ids ("cmd-0001", ...), event ids and timestamps are
// deterministic, so the trace of a run can be compared against a golden
// file.
//
// # Scenario Format
//
//	name: terrace_dinner
//	description: "What this scenario validates"
//	catalog: ../menu              # optional CUE catalog directory
//	flow:
//	  - command: OPEN_TABLE
//	    as: t1                    # capture the order id
//	    data: {table_id: T1, table_name: "Terrace 1", zone_id: terrace}
//	  - command: ADD_ITEMS
//	    data: {order_id: $t1}
//	    products: {espresso: 2}   # catalog items appended to the payload
//	  - command: ADD_PAYMENT
//	    data: {order_id: $t1, method: CASH, amount: 9999}
//	    expect: {success: false, code: INVALID_AMOUNT}
//	assertions:
//	  - type: order_state
//	    order: t1
//	    expect: {status: ACTIVE, total: 893}
//	  - type: event_order
//	    order: t1
//	    events: [TABLE_OPENED, ITEMS_ADDED]
//	  - type: event_count
//	    order: t1
//	    event: PAYMENT_ADDED
//	    count: 0
//
// Data uses the JSON field names of the command payload. Amounts are in
// cents. A step without expect must succeed.
//
// # Assertion Types
//
//   - order_state: subset match against the order snapshot's JSON form
//   - event_order: event types appear in this order, gaps allowed
//   - event_count: an event type appears exactly count times
//
// After the flow, every aliased order is re-folded from the log and its
// checksum compared with the live projection. A mismatch fails the run.
package harness
