// Package reducer materialises order snapshots from events.
//
// # Fold
//
// Fold applies events strictly in ascending sequence order, starting from
// empty state. Facts (items, comps, payments, adjustments, skip toggles) are
// collected during the fold; every computed amount is derived afterwards in
// a single pricing pass over the final facts:
//
//	[events] → apply each → [facts + settlement.State]
//	                              ↓
//	                       computeTotals (pricing.Evaluate once)
//	                              ↓
//	                       Checksum → Snapshot
//
// Rules are never patched incrementally, so a rule skip toggled late in
// the log changes every displayed amount without replaying history.
//
// The fold is pure. Two folds of the same prefix produce byte-identical
// snapshots, including the checksum.
package reducer
