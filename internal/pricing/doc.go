// Package pricing evaluates pricing rules against a line item or an order.
//
// Evaluation is a pure function of its inputs. Candidate rules are filtered
// by level, scope and zone; each adjustment direction (discount and
// surcharge) is then resolved independently in descending priority:
//
//   - an exclusive rule applies and suppresses every lower-priority rule of
//     the same direction
//   - stackable rules all apply cumulatively
//   - among non-stackable, non-exclusive rules only the first (highest
//     priority) match applies
//
// Equal priorities are ordered by rule id so results never depend on input
// order. Every amount is computed against the pre-adjustment base; rule
// outputs never compound. Skipped rules are excluded from evaluation but
// still reported with Skipped set.
package pricing
