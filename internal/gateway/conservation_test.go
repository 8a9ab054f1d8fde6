package gateway

import (
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

func assertSettled(t *testing.T, snap order.Snapshot, step string) {
	t.Helper()
	require.LessOrEqual(t, snap.PaidAmount, snap.Total, "%s: paid exceeds total", step)
	require.Equal(t, snap.Total-snap.PaidAmount, snap.RemainingAmount, "%s: remaining", step)
	require.GreaterOrEqual(t, snap.PaidAmount, int64(0), "%s: paid", step)
}

func TestGateway_ItemSplitAfterWholePaymentRejected(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	instance := f.addItem(id, 1000, 1)

	f.ok(order.AddPayment{OrderID: id, Method: "CASH", Amount: 1000})
	f.rejected(order.SplitByItems{OrderID: id, Method: "CARD",
		Items: []order.SplitItem{{InstanceID: instance, Quantity: 1}}}, order.ErrInvalidOperation)

	snap := f.snapshot(id)
	assert.Equal(t, int64(1000), snap.PaidAmount)
	assertSettled(t, snap, "after rejected split")
}

func TestGateway_ItemSplitWithPartialWholePaymentRejected(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	instance := f.addItem(id, 1000, 2)

	f.ok(order.AddPayment{OrderID: id, Method: "CASH", Amount: 500})
	f.rejected(order.SplitByItems{OrderID: id, Method: "CARD",
		Items: []order.SplitItem{{InstanceID: instance, Quantity: 1}}}, order.ErrInvalidOperation)

	paymentID := f.snapshot(id).Payments[0].PaymentID
	f.ok(order.CancelPayment{OrderID: id, PaymentID: paymentID, Reason: "split instead"})
	f.ok(order.SplitByItems{OrderID: id, Method: "CARD",
		Items: []order.SplitItem{{InstanceID: instance, Quantity: 1}}})
	assert.Equal(t, int64(1000), f.snapshot(id).PaidAmount)
}

func TestGateway_ItemSplitCappedByOrderDiscount(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	instance := f.addItem(id, 1000, 1)
	f.ok(order.ApplyOrderDiscount{OrderID: id, Amount: 500, Reason: "regular"})

	f.ok(order.SplitByItems{OrderID: id, Method: "CARD",
		Items: []order.SplitItem{{InstanceID: instance, Quantity: 1}}})

	snap := f.snapshot(id)
	assert.Equal(t, int64(500), snap.Total)
	assert.Equal(t, int64(500), snap.PaidAmount)
	assertSettled(t, snap, "capped split")
	require.Len(t, snap.Payments, 1)
	require.Len(t, snap.Payments[0].Items, 1)
	assert.Equal(t, int64(500), snap.Payments[0].Items[0].Amount)

	f.ok(order.CompleteOrder{OrderID: id})
}

func TestGateway_ItemSplitCapSpansLines(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	soup := f.addItem(id, 1000, 1)
	bread := f.addItem(id, 400, 1)
	f.ok(order.ApplyOrderDiscount{OrderID: id, Amount: 700, Reason: "voucher"})

	f.ok(order.SplitByItems{OrderID: id, Method: "CARD", Items: []order.SplitItem{
		{InstanceID: soup, Quantity: 1},
		{InstanceID: bread, Quantity: 1},
	}})

	snap := f.snapshot(id)
	assert.Equal(t, int64(700), snap.PaidAmount)
	assert.Equal(t, int64(0), snap.RemainingAmount)
	items := snap.Payments[0].Items
	require.Len(t, items, 2)
	assert.Equal(t, int64(700), items[0].Amount)
	assert.Equal(t, int64(0), items[1].Amount)

	f.rejected(order.SplitByItems{OrderID: id, Method: "CARD",
		Items: []order.SplitItem{{InstanceID: soup, Quantity: 1}}}, order.ErrInvalidOperation)
	f.ok(order.CompleteOrder{OrderID: id})
}

func TestGateway_RemoveBelowPaidRejected(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	instance := f.addItem(id, 1000, 1)
	f.ok(order.AddPayment{OrderID: id, Method: "CASH", Amount: 1000})

	resp := f.submit(order.RemoveItem{OrderID: id, InstanceID: instance})
	require.False(t, resp.Success)
	assert.Equal(t, order.ErrInvalidOperation, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "overpaid")

	snap := f.snapshot(id)
	assert.Equal(t, int64(1000), snap.Total)
	assertSettled(t, snap, "after rejected remove")
}

func TestGateway_RemoveDownToPaidAccepted(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	instance := f.addItem(id, 500, 3)
	f.ok(order.AddPayment{OrderID: id, Method: "CASH", Amount: 1000})

	f.ok(order.RemoveItem{OrderID: id, InstanceID: instance, Quantity: 1})
	f.rejected(order.RemoveItem{OrderID: id, InstanceID: instance, Quantity: 1}, order.ErrInvalidOperation)

	snap := f.snapshot(id)
	assert.Equal(t, int64(1000), snap.Total)
	assert.Equal(t, int64(0), snap.RemainingAmount)
	f.ok(order.CompleteOrder{OrderID: id})
}

func TestGateway_CompDuringAASplitKeepsOrderPayable(t *testing.T) {
	f := newFixture(t, WithRules(staticRules{tenPercentOff()}))
	id := f.open("t-1")
	instance := f.addItem(id, 1000, 1)

	f.ok(order.AASplitPay{OrderID: id, Method: "CASH", TotalShares: 3, Shares: 1})
	f.ok(order.AASplitPay{OrderID: id, Method: "CARD", Shares: 1})

	f.rejected(order.CompItem{OrderID: id, InstanceID: instance, Quantity: 1,
		Reason: "birthday", AuthorizerID: "mgr"}, order.ErrInvalidOperation)
	assertSettled(t, f.snapshot(id), "after rejected comp")

	f.ok(order.AASplitPay{OrderID: id, Method: "CASH", Shares: 1})
	f.ok(order.CompleteOrder{OrderID: id})
	assert.Equal(t, order.StatusCompleted, f.snapshot(id).Status)
}

func TestGateway_ModifyBelowPaidRejected(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	instance := f.addItem(id, 1000, 1)
	f.ok(order.AddPayment{OrderID: id, Method: "CASH", Amount: 800})

	cheaper := int64(500)
	f.rejected(order.ModifyItem{OrderID: id, InstanceID: instance,
		Changes: order.ItemChanges{Price: &cheaper}}, order.ErrInvalidOperation)
	half := decimal.NewFromInt(50)
	f.rejected(order.ModifyItem{OrderID: id, InstanceID: instance,
		Changes: order.ItemChanges{ManualDiscountPercent: &half}}, order.ErrInvalidOperation)
	f.rejected(order.ApplyOrderDiscount{OrderID: id, Amount: 300, Reason: "late"}, order.ErrInvalidOperation)

	tenth := decimal.NewFromInt(10)
	f.ok(order.ModifyItem{OrderID: id, InstanceID: instance,
		Changes: order.ItemChanges{ManualDiscountPercent: &tenth}})
	assertSettled(t, f.snapshot(id), "after small discount")
}

func TestGateway_RejectionSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	f.addItem(id, 1000, 1)

	pay := order.AddPayment{OrderID: id, Method: "CASH", Amount: 5000}
	first := f.submitAs("cmd-pay", pay)
	require.False(t, first.Success)

	f.restart()
	f.addItem(id, 9000, 1)
	before := f.seq.Current()

	again := f.submitAs("cmd-pay", pay)
	assert.Equal(t, first, again)
	assert.Equal(t, before, f.seq.Current())
	assert.Equal(t, int64(0), f.snapshot(id).PaidAmount)
}

func TestGateway_InternalErrorNotRecorded(t *testing.T) {
	f := newFixture(t)
	resp := f.gw.reject(t.Context(), f.command("cmd-x", order.OpenTable{TableID: "t-1"}),
		order.Errorf(order.ErrInternal, "disk full"))
	require.False(t, resp.Success)

	_, found, err := f.log.LookupResponse(t.Context(), "cmd-x")
	require.NoError(t, err)
	assert.False(t, found)

	assert.True(t, f.submitAs("cmd-x", order.OpenTable{TableID: "t-1"}).Success)
}

// randomCommand picks a command against the current state of orderID.
// Many picks are invalid on purpose; the gateway must reject them.
func randomCommand(faker *gofakeit.Faker, snap order.Snapshot) order.CommandPayload {
	id := snap.OrderID
	pickItem := func() (order.CartItem, bool) {
		if len(snap.Items) == 0 {
			return order.CartItem{}, false
		}
		return snap.Items[faker.IntRange(0, len(snap.Items)-1)], true
	}
	upTo := func(limit int64) int64 {
		if limit <= 0 {
			return int64(faker.IntRange(1, 500))
		}
		return int64(faker.IntRange(1, int(limit)))
	}

	switch faker.IntRange(0, 11) {
	case 0, 1:
		return order.AddItems{OrderID: id, Items: []order.ItemInput{{
			ProductID: "p-" + faker.LetterN(3),
			Name:      faker.LetterN(6),
			Price:     int64(faker.IntRange(1, 40)) * 50,
			Quantity:  faker.IntRange(1, 3),
		}}}
	case 2:
		return order.AddPayment{OrderID: id, Method: "CASH", Amount: upTo(snap.RemainingAmount)}
	case 3:
		it, ok := pickItem()
		if !ok || it.UnpaidQuantity <= 0 {
			break
		}
		return order.SplitByItems{OrderID: id, Method: "CARD", Items: []order.SplitItem{
			{InstanceID: it.InstanceID, Quantity: faker.IntRange(1, it.UnpaidQuantity)},
		}}
	case 4:
		return order.SplitByAmount{OrderID: id, Method: "CARD", Amount: upTo(snap.RemainingAmount)}
	case 5:
		if it, ok := pickItem(); ok {
			return order.CompItem{OrderID: id, InstanceID: it.InstanceID, Quantity: 1,
				Reason: "service", AuthorizerID: "mgr"}
		}
	case 6:
		if it, ok := pickItem(); ok {
			return order.RemoveItem{OrderID: id, InstanceID: it.InstanceID, Quantity: faker.IntRange(0, 1)}
		}
	case 7:
		if it, ok := pickItem(); ok {
			if faker.Bool() {
				price := int64(faker.IntRange(0, 40)) * 50
				return order.ModifyItem{OrderID: id, InstanceID: it.InstanceID,
					Changes: order.ItemChanges{Price: &price}}
			}
			pct := decimal.NewFromInt(int64(faker.IntRange(0, 100)))
			return order.ModifyItem{OrderID: id, InstanceID: it.InstanceID,
				Changes: order.ItemChanges{ManualDiscountPercent: &pct}}
		}
	case 8:
		return order.ApplyOrderDiscount{OrderID: id, Amount: int64(faker.IntRange(0, 20)) * 50, Reason: "promo"}
	case 9:
		for _, p := range snap.Payments {
			if !p.Cancelled && faker.Bool() {
				return order.CancelPayment{OrderID: id, PaymentID: p.PaymentID, Reason: "retry"}
			}
		}
	case 10:
		return order.AASplitPay{OrderID: id, Method: "CASH", TotalShares: faker.IntRange(2, 4), Shares: 1}
	case 11:
		if len(snap.Comps) > 0 {
			c := snap.Comps[faker.IntRange(0, len(snap.Comps)-1)]
			return order.UncompItem{OrderID: id, CompID: c.CompID, AuthorizerID: "mgr"}
		}
	}
	return order.AddPayment{OrderID: id, Method: "CASH", Amount: upTo(snap.RemainingAmount)}
}

func TestGateway_RandomCommandsNeverOverpay(t *testing.T) {
	faker := gofakeit.New(2025)
	for run := 0; run < 20; run++ {
		f := newFixture(t, WithRules(staticRules{tenPercentOff()}))
		id := f.open("t-1")
		f.addItem(id, 1000, 2)

		for step := 0; step < 60; step++ {
			p := randomCommand(faker, f.snapshot(id))
			resp := f.submit(p)
			if !resp.Success {
				require.NotEqual(t, order.ErrInternal, resp.Error.Code,
					"run %d step %d %s: %s", run, step, p.CommandType(), resp.Error.Message)
			}
			assertSettled(t, f.snapshot(id), string(p.CommandType()))
		}
	}
}
