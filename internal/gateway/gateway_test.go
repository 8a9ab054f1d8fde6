package gateway

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/LucaXiang/Crab-sub002/internal/engine"
	"github.com/LucaXiang/Crab-sub002/internal/order"
	"github.com/LucaXiang/Crab-sub002/internal/store"
	"github.com/LucaXiang/Crab-sub002/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticRules []order.PricingRule

func (r staticRules) RulesFor(string, bool) []order.PricingRule { return r }

func tenPercentOff() order.PricingRule {
	return order.PricingRule{
		ID: "r-10", Name: "Happy hour", Level: order.LevelItem, Scope: order.ScopeGlobal,
		ZoneScope: order.ZoneAll, Direction: order.DirectionDiscount,
		AdjustmentType: order.AdjustmentPercentage, Value: decimal.NewFromInt(10),
		Priority: 1, Stackable: true,
	}
}

type fixture struct {
	t   *testing.T
	log *store.Store
	seq *engine.Sequencer
	gw  *Gateway
	ids *testutil.CommandIDs
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{t: t, log: testutil.OpenStore(t), ids: testutil.NewCommandIDs("")}
	f.restart(opts...)
	return f
}

// restart builds a fresh sequencer and gateway over the same event log.
func (f *fixture) restart(opts ...Option) {
	f.t.Helper()
	seq, err := engine.NewSequencer(context.Background(), f.log,
		engine.WithIDGenerator(engine.NewSequentialGenerator("evt")),
		engine.WithTimeSource(testutil.NewStepClock(0, 0)),
	)
	require.NoError(f.t, err)
	f.t.Cleanup(seq.Close)
	f.seq = seq
	f.gw = New(seq, opts...)
}

func (f *fixture) command(id string, p order.CommandPayload) order.Command {
	return order.Command{CommandID: id, OperatorID: "op-1", OperatorName: "Alice", Payload: p}
}

func (f *fixture) submitAs(id string, p order.CommandPayload) order.CommandResponse {
	return f.gw.Submit(context.Background(), f.command(id, p))
}

func (f *fixture) submit(p order.CommandPayload) order.CommandResponse {
	return f.submitAs(f.ids.Next(), p)
}

func (f *fixture) ok(p order.CommandPayload) string {
	f.t.Helper()
	resp := f.submit(p)
	require.True(f.t, resp.Success, "%s rejected: %+v", p.CommandType(), resp.Error)
	return resp.OrderID
}

func (f *fixture) rejected(p order.CommandPayload, code order.ErrorCode) {
	f.t.Helper()
	resp := f.submit(p)
	require.False(f.t, resp.Success, "%s accepted", p.CommandType())
	require.NotNil(f.t, resp.Error)
	assert.Equal(f.t, code, resp.Error.Code, resp.Error.Message)
}

func (f *fixture) snapshot(orderID string) order.Snapshot {
	f.t.Helper()
	snap, err := f.gw.Snapshot(orderID)
	require.NoError(f.t, err)
	return snap
}

func (f *fixture) open(tableID string) string {
	return f.ok(order.OpenTable{TableID: tableID, TableName: tableID, GuestCount: 2})
}

func (f *fixture) addItem(orderID string, price int64, qty int) string {
	f.t.Helper()
	f.ok(order.AddItems{OrderID: orderID, Items: []order.ItemInput{
		{ProductID: "p-1", Name: "Soup", Price: price, Quantity: qty},
	}})
	snap := f.snapshot(orderID)
	return snap.Items[len(snap.Items)-1].InstanceID
}

func TestGateway_AASplitScenario(t *testing.T) {
	f := newFixture(t, WithRules(staticRules{tenPercentOff()}))

	id := f.open("t-1")
	f.addItem(id, 1000, 1)

	snap := f.snapshot(id)
	assert.Equal(t, int64(1000), snap.Subtotal)
	assert.Equal(t, int64(100), snap.TotalDiscount)
	assert.Equal(t, int64(900), snap.Total)

	f.ok(order.AASplitPay{OrderID: id, Method: "CASH", TotalShares: 3, Shares: 1})
	f.ok(order.AASplitPay{OrderID: id, Method: "CARD", Shares: 1})

	snap = f.snapshot(id)
	assert.Equal(t, int64(300), snap.RemainingAmount)
	assert.Equal(t, order.StatusActive, snap.Status)
	for _, p := range snap.Payments {
		assert.Equal(t, int64(300), p.Amount)
	}

	f.rejected(order.CompleteOrder{OrderID: id}, order.ErrInvalidOperation)
	f.rejected(order.AASplitPay{OrderID: id, Method: "CASH", TotalShares: 4, Shares: 1}, order.ErrInvalidOperation)
	f.rejected(order.AddPayment{OrderID: id, Method: "CASH", Amount: 300}, order.ErrInvalidOperation)
	f.rejected(order.UpdateOrderInfo{OrderID: id, GuestCount: new(int)}, order.ErrInvalidOperation)

	f.ok(order.AASplitPay{OrderID: id, Method: "CASH", Shares: 1})
	f.ok(order.CompleteOrder{OrderID: id, ReceiptNumber: "R-1"})

	snap = f.snapshot(id)
	assert.Equal(t, order.StatusCompleted, snap.Status)
	assert.Equal(t, int64(0), snap.RemainingAmount)
	assert.Equal(t, "R-1", snap.ReceiptNumber)
}

func TestGateway_DuplicateCommandReturnsRecordedResponse(t *testing.T) {
	f := newFixture(t)

	first := f.submitAs("cmd-open", order.OpenTable{TableID: "t-1", GuestCount: 2})
	require.True(t, first.Success)
	seq := f.seq.Current()

	second := f.submitAs("cmd-open", order.OpenTable{TableID: "t-1", GuestCount: 2})
	assert.Equal(t, first, second)
	assert.Equal(t, seq, f.seq.Current(), "duplicate appended events")
}

func TestGateway_DuplicateSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	first := f.submitAs("cmd-open", order.OpenTable{TableID: "t-1"})
	require.True(t, first.Success)
	seq := f.seq.Current()

	f.restart()
	again := f.submitAs("cmd-open", order.OpenTable{TableID: "t-1"})
	assert.Equal(t, first, again)
	assert.Equal(t, seq, f.seq.Current())
}

func TestGateway_RejectionIsReplayed(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	f.addItem(id, 1000, 1)

	pay := order.AddPayment{OrderID: id, Method: "CASH", Amount: 5000}
	first := f.submitAs("cmd-pay", pay)
	require.False(t, first.Success)
	assert.Equal(t, order.ErrInvalidAmount, first.Error.Code)

	// Now the payment would fit, but the id was already answered.
	f.addItem(id, 9000, 1)
	again := f.submitAs("cmd-pay", pay)
	assert.Equal(t, first, again)
	assert.Equal(t, int64(0), f.snapshot(id).PaidAmount)
}

func TestGateway_ConcurrentSameCommandID(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	f.addItem(id, 1000, 1)
	before := f.seq.Current()

	const n = 20
	responses := make([]order.CommandResponse, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			responses[i] = f.submitAs("cmd-pay", order.AddPayment{OrderID: id, Method: "CASH", Amount: 400})
		}()
	}
	wg.Wait()

	for _, r := range responses {
		assert.Equal(t, responses[0], r)
	}
	assert.True(t, responses[0].Success)
	assert.Equal(t, before+1, f.seq.Current())
	assert.Equal(t, int64(400), f.snapshot(id).PaidAmount)
}

func TestGateway_ConcurrentPaymentsNeverOverpay(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	f.addItem(id, 1000, 1)

	const n = 10
	responses := make([]order.CommandResponse, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			responses[i] = f.submit(order.AddPayment{OrderID: id, Method: "CASH", Amount: 300})
		}()
	}
	wg.Wait()

	accepted := 0
	for _, r := range responses {
		if r.Success {
			accepted++
		} else {
			assert.Equal(t, order.ErrInvalidAmount, r.Error.Code)
		}
	}
	assert.Equal(t, 3, accepted)

	snap := f.snapshot(id)
	assert.Equal(t, int64(900), snap.PaidAmount)
	assert.Equal(t, int64(100), snap.RemainingAmount)
}

func TestGateway_TableOccupied(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")

	resp := f.submit(order.OpenTable{TableID: "t-1"})
	require.False(t, resp.Success)
	assert.Equal(t, order.ErrTableOccupied, resp.Error.Code)

	f.ok(order.VoidOrder{OrderID: id, Reason: "walked out"})
	f.open("t-1")
}

func TestGateway_OpenTableValidation(t *testing.T) {
	f := newFixture(t)
	f.rejected(order.OpenTable{}, order.ErrInvalidOperation)
	f.rejected(order.OpenTable{TableID: "t-1", GuestCount: -1}, order.ErrInvalidOperation)

	retail := f.ok(order.OpenTable{IsRetail: true})
	assert.True(t, f.snapshot(retail).IsRetail)
}

func TestGateway_Validation(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	instance := f.addItem(id, 500, 2)
	fifty := decimal.NewFromInt(50)
	tooMuch := decimal.NewFromInt(150)
	zero := 0

	tests := []struct {
		name    string
		payload order.CommandPayload
		code    order.ErrorCode
	}{
		{"unknown order", order.AddItems{OrderID: "nope", Items: []order.ItemInput{{ProductID: "p", Quantity: 1}}}, order.ErrOrderNotFound},
		{"no items", order.AddItems{OrderID: id}, order.ErrInvalidOperation},
		{"zero quantity", order.AddItems{OrderID: id, Items: []order.ItemInput{{ProductID: "p"}}}, order.ErrInvalidOperation},
		{"negative price", order.AddItems{OrderID: id, Items: []order.ItemInput{{ProductID: "p", Quantity: 1, Price: -1}}}, order.ErrInvalidAmount},
		{"discount over 100", order.AddItems{OrderID: id, Items: []order.ItemInput{{ProductID: "p", Quantity: 1, ManualDiscountPercent: tooMuch}}}, order.ErrInvalidAmount},
		{"unknown item", order.ModifyItem{OrderID: id, InstanceID: "nope", Changes: order.ItemChanges{Quantity: new(int)}}, order.ErrItemNotFound},
		{"empty change", order.ModifyItem{OrderID: id, InstanceID: instance}, order.ErrInvalidOperation},
		{"quantity zero", order.ModifyItem{OrderID: id, InstanceID: instance, Changes: order.ItemChanges{Quantity: &zero}}, order.ErrInsufficientQuantity},
		{"remove too many", order.RemoveItem{OrderID: id, InstanceID: instance, Quantity: 3}, order.ErrInsufficientQuantity},
		{"comp without reason", order.CompItem{OrderID: id, InstanceID: instance, Quantity: 1, AuthorizerID: "m"}, order.ErrInvalidOperation},
		{"comp too many", order.CompItem{OrderID: id, InstanceID: instance, Quantity: 3, Reason: "r", AuthorizerID: "m"}, order.ErrInsufficientQuantity},
		{"unknown comp", order.UncompItem{OrderID: id, CompID: "nope", AuthorizerID: "m"}, order.ErrItemNotFound},
		{"zero payment", order.AddPayment{OrderID: id, Method: "CASH"}, order.ErrInvalidAmount},
		{"no method", order.AddPayment{OrderID: id, Amount: 100}, order.ErrInvalidOperation},
		{"short tender", order.AddPayment{OrderID: id, Method: "CASH", Amount: 500, Tendered: 400}, order.ErrInvalidAmount},
		{"unknown payment", order.CancelPayment{OrderID: id, PaymentID: "nope", Reason: "r"}, order.ErrPaymentNotFound},
		{"split unknown item", order.SplitByItems{OrderID: id, Method: "CASH", Items: []order.SplitItem{{InstanceID: "nope", Quantity: 1}}}, order.ErrItemNotFound},
		{"split too many", order.SplitByItems{OrderID: id, Method: "CASH", Items: []order.SplitItem{{InstanceID: instance, Quantity: 3}}}, order.ErrInsufficientQuantity},
		{"aa without shares", order.AASplitPay{OrderID: id, Method: "CASH", Shares: 1}, order.ErrInvalidOperation},
		{"percent and amount", order.ApplyOrderDiscount{OrderID: id, Percent: &fifty, Amount: 100}, order.ErrInvalidOperation},
		{"unknown rule", order.ToggleRuleSkip{OrderID: id, RuleID: "nope", Skipped: true}, order.ErrInvalidOperation},
		{"unpaid complete", order.CompleteOrder{OrderID: id}, order.ErrInvalidOperation},
		{"void without reason", order.VoidOrder{OrderID: id}, order.ErrInvalidOperation},
		{"merge into self", order.MergeOrders{SourceOrderID: id, TargetOrderID: id}, order.ErrInvalidOperation},
		{"move to same table", order.MoveOrder{OrderID: id, TargetTableID: "t-1"}, order.ErrInvalidOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.seq.Current()
			f.rejected(tt.payload, tt.code)
			assert.Equal(t, before, f.seq.Current(), "rejection appended events")
		})
	}
}

func TestGateway_TerminalOrdersRejectCommands(t *testing.T) {
	f := newFixture(t)

	done := f.open("t-1")
	f.addItem(done, 100, 1)
	f.ok(order.AddPayment{OrderID: done, Method: "CASH", Amount: 100})
	f.ok(order.CompleteOrder{OrderID: done})

	void := f.open("t-2")
	f.ok(order.VoidOrder{OrderID: void, Reason: "test"})

	item := []order.ItemInput{{ProductID: "p", Quantity: 1}}
	f.rejected(order.AddItems{OrderID: done, Items: item}, order.ErrOrderAlreadyCompleted)
	f.rejected(order.AddItems{OrderID: void, Items: item}, order.ErrOrderAlreadyVoided)
	f.rejected(order.CompleteOrder{OrderID: done}, order.ErrOrderAlreadyCompleted)
}

func TestGateway_CompAndUncomp(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	instance := f.addItem(id, 500, 2)

	f.ok(order.CompItem{OrderID: id, InstanceID: instance, Quantity: 1, Reason: "birthday", AuthorizerID: "mgr"})
	snap := f.snapshot(id)
	assert.Equal(t, int64(500), snap.Total)
	assert.Equal(t, int64(500), snap.CompTotal)
	require.Len(t, snap.Comps, 1)

	compID := snap.Comps[0].CompID
	f.ok(order.UncompItem{OrderID: id, CompID: compID, AuthorizerID: "mgr"})
	f.rejected(order.UncompItem{OrderID: id, CompID: compID, AuthorizerID: "mgr"}, order.ErrInvalidOperation)
	assert.Equal(t, int64(1000), f.snapshot(id).Total)
}

func TestGateway_ItemSplit(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	instance := f.addItem(id, 500, 3)

	f.ok(order.SplitByItems{OrderID: id, Method: "CARD", Items: []order.SplitItem{{InstanceID: instance, Quantity: 2}}})

	snap := f.snapshot(id)
	assert.Equal(t, int64(1000), snap.PaidAmount)
	assert.True(t, snap.HasItemSplit)
	assert.Equal(t, 2, snap.Items[0].PaidQuantity)
	assert.Equal(t, 1, snap.Items[0].UnpaidQuantity)

	price := int64(600)
	f.rejected(order.ModifyItem{OrderID: id, InstanceID: instance, Changes: order.ItemChanges{Price: &price}}, order.ErrInvalidOperation)
	one := 1
	f.rejected(order.ModifyItem{OrderID: id, InstanceID: instance, Changes: order.ItemChanges{Quantity: &one}}, order.ErrInsufficientQuantity)
	f.rejected(order.AASplitPay{OrderID: id, Method: "CASH", TotalShares: 2, Shares: 1}, order.ErrInvalidOperation)
	f.rejected(order.RemoveItem{OrderID: id, InstanceID: instance, Quantity: 2}, order.ErrInsufficientQuantity)

	f.ok(order.RemoveItem{OrderID: id, InstanceID: instance})
	snap = f.snapshot(id)
	assert.Equal(t, 2, snap.Items[0].Quantity)
	assert.Equal(t, int64(0), snap.RemainingAmount)
	f.ok(order.CompleteOrder{OrderID: id})
}

func TestGateway_CancelPaymentThenVoid(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	f.addItem(id, 1000, 1)
	f.ok(order.AddPayment{OrderID: id, Method: "CASH", Amount: 400, Tendered: 500})

	snap := f.snapshot(id)
	require.Len(t, snap.Payments, 1)
	assert.Equal(t, int64(100), snap.Payments[0].Change)

	f.rejected(order.VoidOrder{OrderID: id, Reason: "mistake"}, order.ErrInvalidOperation)

	paymentID := snap.Payments[0].PaymentID
	f.ok(order.CancelPayment{OrderID: id, PaymentID: paymentID, Reason: "wrong table"})
	f.rejected(order.CancelPayment{OrderID: id, PaymentID: paymentID, Reason: "again"}, order.ErrInvalidOperation)
	assert.Equal(t, int64(0), f.snapshot(id).PaidAmount)

	f.ok(order.VoidOrder{OrderID: id, Reason: "mistake"})
	assert.Equal(t, order.StatusVoid, f.snapshot(id).Status)
}

func TestGateway_MoveOrder(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")
	f.addItem(id, 800, 1)
	f.open("t-3")

	f.rejected(order.MoveOrder{OrderID: id, TargetTableID: "t-3"}, order.ErrTableOccupied)

	moved := f.ok(order.MoveOrder{OrderID: id, TargetTableID: "t-2", TargetTableName: "T2"})
	require.NotEqual(t, id, moved)

	old := f.snapshot(id)
	assert.Equal(t, order.StatusMoved, old.Status)
	assert.Equal(t, moved, old.MovedTo)

	snap := f.snapshot(moved)
	assert.Equal(t, order.StatusActive, snap.Status)
	assert.Equal(t, "t-2", snap.TableID)
	assert.Equal(t, id, snap.MovedFrom)
	assert.Equal(t, int64(800), snap.Total)

	_, occupied := f.seq.OrderForTable("t-1")
	assert.False(t, occupied)
	f.rejected(order.AddItems{OrderID: id, Items: []order.ItemInput{{ProductID: "p", Quantity: 1}}}, order.ErrInvalidOperation)
}

func TestGateway_MergeOrders(t *testing.T) {
	f := newFixture(t)
	source := f.open("t-1")
	f.addItem(source, 300, 1)
	target := f.open("t-2")
	f.addItem(target, 700, 1)

	resp := f.submit(order.MergeOrders{SourceOrderID: source, TargetOrderID: target})
	require.True(t, resp.Success)
	assert.Equal(t, target, resp.OrderID)

	snap := f.snapshot(target)
	assert.Len(t, snap.Items, 2)
	assert.Equal(t, int64(1000), snap.Total)
	assert.Equal(t, []string{source}, snap.MergedFrom)
	assert.Equal(t, order.StatusMerged, f.snapshot(source).Status)
}

func TestGateway_MergeRejectsPaidSource(t *testing.T) {
	f := newFixture(t)
	source := f.open("t-1")
	f.addItem(source, 300, 1)
	f.ok(order.AddPayment{OrderID: source, Method: "CASH", Amount: 100})
	target := f.open("t-2")

	f.rejected(order.MergeOrders{SourceOrderID: source, TargetOrderID: target}, order.ErrInvalidOperation)
}

func TestGateway_OrderAdjustments(t *testing.T) {
	f := newFixture(t, WithRules(staticRules{tenPercentOff()}))
	id := f.open("t-1")
	f.addItem(id, 1000, 1)

	f.ok(order.ToggleRuleSkip{OrderID: id, RuleID: "r-10", Skipped: true})
	assert.Equal(t, int64(1000), f.snapshot(id).Total)

	f.ok(order.ApplyOrderDiscount{OrderID: id, Amount: 200, Reason: "regular"})
	assert.Equal(t, int64(800), f.snapshot(id).Total)

	five := decimal.NewFromInt(5)
	f.ok(order.ApplyOrderSurcharge{OrderID: id, Percent: &five})
	snap := f.snapshot(id)
	assert.Equal(t, snap.Subtotal-snap.TotalDiscount+snap.TotalSurcharge+snap.Tax, snap.Total)

	f.ok(order.ApplyOrderDiscount{OrderID: id})
	f.ok(order.ApplyOrderSurcharge{OrderID: id})
	assert.Equal(t, int64(1000), f.snapshot(id).Total)
}

func TestGateway_UpdateOrderInfo(t *testing.T) {
	f := newFixture(t)
	id := f.open("t-1")

	guests := 4
	note := "window seat"
	f.ok(order.UpdateOrderInfo{OrderID: id, GuestCount: &guests, Note: &note})

	snap := f.snapshot(id)
	assert.Equal(t, 4, snap.GuestCount)
	assert.Equal(t, "window seat", snap.Note)
	f.rejected(order.UpdateOrderInfo{OrderID: id}, order.ErrInvalidOperation)
}

func TestGateway_InvalidEnvelope(t *testing.T) {
	f := newFixture(t)

	resp := f.gw.Submit(context.Background(), order.Command{Payload: order.OpenTable{TableID: "t-1"}})
	assert.False(t, resp.Success)
	assert.Equal(t, order.ErrInvalidOperation, resp.Error.Code)

	resp = f.gw.Submit(context.Background(), order.Command{CommandID: "c-1"})
	assert.False(t, resp.Success)
	assert.Equal(t, "c-1", resp.CommandID)
}

func TestGateway_SnapshotNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.gw.Snapshot("missing")
	assert.True(t, order.IsCode(err, order.ErrOrderNotFound))
}
