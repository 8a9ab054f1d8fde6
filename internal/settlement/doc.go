// Package settlement tracks how an order's balance is being paid.
//
// Three split modes are supported next to plain payments:
//   - item split: a payment covers explicit item-instance quantities
//   - amount split: a free-form amount with no item attribution
//   - equal-share (AA) split: the order total divided into a share count
//     that is locked by the first AA payment
//
// State is a value; every operation returns a new State and never mutates
// its input. Cancelling a payment reverses exactly that payment's
// contribution.
package settlement
