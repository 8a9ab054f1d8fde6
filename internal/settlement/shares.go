package settlement

import "github.com/LucaXiang/Crab-sub002/internal/order"

// ShareAmounts divides total into n equal shares in cents. The remainder of
// the integer division goes to the final share, so the shares always sum
// to total exactly.
func ShareAmounts(total int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	per := total / int64(n)
	shares := make([]int64, n)
	for i := range shares {
		shares[i] = per
	}
	shares[n-1] = total - per*int64(n-1)
	return shares
}

// AAPaymentAmount returns the amount due for paying `shares` more shares
// when paidShares of totalShares are already paid.
//
// The payment that completes the share count pays whatever remains, which
// keeps the sum of AA payments equal to the order total even if the total
// changed after the share count was locked.
func AAPaymentAmount(total, remaining int64, totalShares, paidShares, shares int) (int64, error) {
	if totalShares <= 0 {
		return 0, order.Errorf(order.ErrInvalidOperation, "AA total shares must be positive")
	}
	if shares <= 0 {
		return 0, order.Errorf(order.ErrInvalidOperation, "AA payment must cover at least one share")
	}
	if paidShares+shares > totalShares {
		return 0, order.Errorf(order.ErrInvalidOperation,
			"AA shares exceed total: %d paid, %d requested, %d total", paidShares, shares, totalShares)
	}
	if paidShares+shares == totalShares {
		return remaining, nil
	}

	all := ShareAmounts(total, totalShares)
	var amount int64
	for _, a := range all[paidShares : paidShares+shares] {
		amount += a
	}
	return amount, nil
}

// ItemSplitAmount returns the amount for paying qty units of a line whose
// billable units cost gross in total, given alreadyPaid units are settled.
//
// Amounts are allocated cumulatively (floor of the running share), so
// paying every unit in any grouping sums to gross exactly.
func ItemSplitAmount(gross int64, billable, alreadyPaid, qty int) int64 {
	if billable <= 0 || qty <= 0 {
		return 0
	}
	upto := func(units int) int64 {
		return floorDiv(gross*int64(units), int64(billable))
	}
	return upto(alreadyPaid+qty) - upto(alreadyPaid)
}

// CapItemSplit trims the attributed amounts of items, last entry first,
// so they sum to at most limit, and returns the resulting sum. Lines can
// be worth more than the balance once order level discounts or other
// payments apply.
func CapItemSplit(items []order.SplitItem, limit int64) int64 {
	var sum int64
	for _, it := range items {
		sum += it.Amount
	}
	excess := sum - max(limit, 0)
	for i := len(items) - 1; i >= 0 && excess > 0; i-- {
		cut := min(items[i].Amount, excess)
		items[i].Amount -= cut
		excess -= cut
		sum -= cut
	}
	return sum
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
