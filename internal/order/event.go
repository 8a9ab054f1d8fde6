package order

import (
	"encoding/json"
	"fmt"
)

// EventType tags an event payload.
type EventType string

const (
	EvtTableOpened           EventType = "TABLE_OPENED"
	EvtItemsAdded            EventType = "ITEMS_ADDED"
	EvtItemModified          EventType = "ITEM_MODIFIED"
	EvtItemRemoved           EventType = "ITEM_REMOVED"
	EvtItemComped            EventType = "ITEM_COMPED"
	EvtItemUncomped          EventType = "ITEM_UNCOMPED"
	EvtPaymentAdded          EventType = "PAYMENT_ADDED"
	EvtPaymentCancelled      EventType = "PAYMENT_CANCELLED"
	EvtItemSplitPaid         EventType = "ITEM_SPLIT_PAID"
	EvtAmountSplitPaid       EventType = "AMOUNT_SPLIT_PAID"
	EvtAASplitPaid           EventType = "AA_SPLIT_PAID"
	EvtOrderMoved            EventType = "ORDER_MOVED"
	EvtOrderMovedOut         EventType = "ORDER_MOVED_OUT"
	EvtOrderMerged           EventType = "ORDER_MERGED"
	EvtOrderMergedOut        EventType = "ORDER_MERGED_OUT"
	EvtOrderDiscountApplied  EventType = "ORDER_DISCOUNT_APPLIED"
	EvtOrderSurchargeApplied EventType = "ORDER_SURCHARGE_APPLIED"
	EvtRuleSkipToggled       EventType = "RULE_SKIP_TOGGLED"
	EvtOrderInfoUpdated      EventType = "ORDER_INFO_UPDATED"
	EvtOrderCompleted        EventType = "ORDER_COMPLETED"
	EvtOrderVoided           EventType = "ORDER_VOIDED"
)

// Event is an immutable fact. Sequence is the only ordering key;
// Timestamp (server) and ClientTimestamp are for audit and display.
type Event struct {
	EventID         string       `json:"event_id"`
	Sequence        int64        `json:"sequence"`
	OrderID         string       `json:"order_id"`
	Timestamp       int64        `json:"timestamp"`
	ClientTimestamp *int64       `json:"client_timestamp,omitempty"`
	OperatorID      string       `json:"operator_id"`
	OperatorName    string       `json:"operator_name"`
	CommandID       string       `json:"command_id"`
	EventType       EventType    `json:"event_type"`
	Payload         EventPayload `json:"payload"`
}

// EventPayload is implemented by every event payload type.
type EventPayload interface {
	EventType() EventType
	isEventPayload()
}

// TableOpened starts an order. Rules is the pricing rule set captured for
// the order's zone; the fold never looks rules up elsewhere.
type TableOpened struct {
	TableID    string        `json:"table_id"`
	TableName  string        `json:"table_name"`
	ZoneID     string        `json:"zone_id,omitempty"`
	IsRetail   bool          `json:"is_retail"`
	GuestCount int           `json:"guest_count"`
	Rules      []PricingRule `json:"rules,omitempty"`
}

type ItemsAdded struct {
	Items []CartItem `json:"items"`
}

type ItemModified struct {
	InstanceID string      `json:"instance_id"`
	Changes    ItemChanges `json:"changes"`
}

type ItemRemoved struct {
	InstanceID string `json:"instance_id"`
	Quantity   int    `json:"quantity"`
	Reason     string `json:"reason,omitempty"`
}

type ItemComped struct {
	Comp CompRecord `json:"comp"`
}

type ItemUncomped struct {
	CompID         string `json:"comp_id"`
	Reason         string `json:"reason,omitempty"`
	AuthorizerID   string `json:"authorizer_id"`
	AuthorizerName string `json:"authorizer_name"`
}

type PaymentAdded struct {
	Payment PaymentRecord `json:"payment"`
}

type PaymentCancelled struct {
	PaymentID      string `json:"payment_id"`
	Reason         string `json:"reason"`
	AuthorizerID   string `json:"authorizer_id,omitempty"`
	AuthorizerName string `json:"authorizer_name,omitempty"`
}

type ItemSplitPaid struct {
	Payment PaymentRecord `json:"payment"`
}

type AmountSplitPaid struct {
	Payment PaymentRecord `json:"payment"`
}

type AASplitPaid struct {
	Payment PaymentRecord `json:"payment"`
}

// OrderMoved creates an order on a new table carrying the source order's
// items, comps, rules and manual adjustments.
type OrderMoved struct {
	FromOrderID     string            `json:"from_order_id"`
	TableID         string            `json:"table_id"`
	TableName       string            `json:"table_name"`
	ZoneID          string            `json:"zone_id,omitempty"`
	IsRetail        bool              `json:"is_retail"`
	GuestCount      int               `json:"guest_count"`
	Note            string            `json:"note,omitempty"`
	Items           []CartItem        `json:"items"`
	Comps           []CompRecord      `json:"comps,omitempty"`
	Rules           []PricingRule     `json:"rules,omitempty"`
	SkippedRuleIDs  []string          `json:"skipped_rule_ids,omitempty"`
	ManualDiscount  *ManualAdjustment `json:"manual_discount,omitempty"`
	ManualSurcharge *ManualAdjustment `json:"manual_surcharge,omitempty"`
}

type OrderMovedOut struct {
	ToOrderID   string `json:"to_order_id"`
	ToTableID   string `json:"to_table_id"`
	ToTableName string `json:"to_table_name"`
}

type OrderMerged struct {
	FromOrderID string       `json:"from_order_id"`
	Items       []CartItem   `json:"items"`
	Comps       []CompRecord `json:"comps,omitempty"`
}

type OrderMergedOut struct {
	IntoOrderID string `json:"into_order_id"`
}

// OrderDiscountApplied replaces the manual order discount; nil clears it.
type OrderDiscountApplied struct {
	Adjustment *ManualAdjustment `json:"adjustment,omitempty"`
}

type OrderSurchargeApplied struct {
	Adjustment *ManualAdjustment `json:"adjustment,omitempty"`
}

type RuleSkipToggled struct {
	RuleID  string `json:"rule_id"`
	Skipped bool   `json:"skipped"`
}

type OrderInfoUpdated struct {
	GuestCount *int    `json:"guest_count,omitempty"`
	Note       *string `json:"note,omitempty"`
}

type OrderCompleted struct {
	ReceiptNumber string `json:"receipt_number,omitempty"`
}

type OrderVoided struct {
	Reason       string `json:"reason"`
	AuthorizerID string `json:"authorizer_id,omitempty"`
}

func (TableOpened) EventType() EventType           { return EvtTableOpened }
func (ItemsAdded) EventType() EventType            { return EvtItemsAdded }
func (ItemModified) EventType() EventType          { return EvtItemModified }
func (ItemRemoved) EventType() EventType           { return EvtItemRemoved }
func (ItemComped) EventType() EventType            { return EvtItemComped }
func (ItemUncomped) EventType() EventType          { return EvtItemUncomped }
func (PaymentAdded) EventType() EventType          { return EvtPaymentAdded }
func (PaymentCancelled) EventType() EventType      { return EvtPaymentCancelled }
func (ItemSplitPaid) EventType() EventType         { return EvtItemSplitPaid }
func (AmountSplitPaid) EventType() EventType       { return EvtAmountSplitPaid }
func (AASplitPaid) EventType() EventType           { return EvtAASplitPaid }
func (OrderMoved) EventType() EventType            { return EvtOrderMoved }
func (OrderMovedOut) EventType() EventType         { return EvtOrderMovedOut }
func (OrderMerged) EventType() EventType           { return EvtOrderMerged }
func (OrderMergedOut) EventType() EventType        { return EvtOrderMergedOut }
func (OrderDiscountApplied) EventType() EventType  { return EvtOrderDiscountApplied }
func (OrderSurchargeApplied) EventType() EventType { return EvtOrderSurchargeApplied }
func (RuleSkipToggled) EventType() EventType       { return EvtRuleSkipToggled }
func (OrderInfoUpdated) EventType() EventType      { return EvtOrderInfoUpdated }
func (OrderCompleted) EventType() EventType        { return EvtOrderCompleted }
func (OrderVoided) EventType() EventType           { return EvtOrderVoided }

func (TableOpened) isEventPayload()           {}
func (ItemsAdded) isEventPayload()            {}
func (ItemModified) isEventPayload()          {}
func (ItemRemoved) isEventPayload()           {}
func (ItemComped) isEventPayload()            {}
func (ItemUncomped) isEventPayload()          {}
func (PaymentAdded) isEventPayload()          {}
func (PaymentCancelled) isEventPayload()      {}
func (ItemSplitPaid) isEventPayload()         {}
func (AmountSplitPaid) isEventPayload()       {}
func (AASplitPaid) isEventPayload()           {}
func (OrderMoved) isEventPayload()            {}
func (OrderMovedOut) isEventPayload()         {}
func (OrderMerged) isEventPayload()           {}
func (OrderMergedOut) isEventPayload()        {}
func (OrderDiscountApplied) isEventPayload()  {}
func (OrderSurchargeApplied) isEventPayload() {}
func (RuleSkipToggled) isEventPayload()       {}
func (OrderInfoUpdated) isEventPayload()      {}
func (OrderCompleted) isEventPayload()        {}
func (OrderVoided) isEventPayload()           {}

var eventFactories = map[EventType]func() EventPayload{
	EvtTableOpened:           func() EventPayload { return &TableOpened{} },
	EvtItemsAdded:            func() EventPayload { return &ItemsAdded{} },
	EvtItemModified:          func() EventPayload { return &ItemModified{} },
	EvtItemRemoved:           func() EventPayload { return &ItemRemoved{} },
	EvtItemComped:            func() EventPayload { return &ItemComped{} },
	EvtItemUncomped:          func() EventPayload { return &ItemUncomped{} },
	EvtPaymentAdded:          func() EventPayload { return &PaymentAdded{} },
	EvtPaymentCancelled:      func() EventPayload { return &PaymentCancelled{} },
	EvtItemSplitPaid:         func() EventPayload { return &ItemSplitPaid{} },
	EvtAmountSplitPaid:       func() EventPayload { return &AmountSplitPaid{} },
	EvtAASplitPaid:           func() EventPayload { return &AASplitPaid{} },
	EvtOrderMoved:            func() EventPayload { return &OrderMoved{} },
	EvtOrderMovedOut:         func() EventPayload { return &OrderMovedOut{} },
	EvtOrderMerged:           func() EventPayload { return &OrderMerged{} },
	EvtOrderMergedOut:        func() EventPayload { return &OrderMergedOut{} },
	EvtOrderDiscountApplied:  func() EventPayload { return &OrderDiscountApplied{} },
	EvtOrderSurchargeApplied: func() EventPayload { return &OrderSurchargeApplied{} },
	EvtRuleSkipToggled:       func() EventPayload { return &RuleSkipToggled{} },
	EvtOrderInfoUpdated:      func() EventPayload { return &OrderInfoUpdated{} },
	EvtOrderCompleted:        func() EventPayload { return &OrderCompleted{} },
	EvtOrderVoided:           func() EventPayload { return &OrderVoided{} },
}

// MarshalJSON writes the payload as raw data next to event_type.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	aux := struct {
		plain
		Payload json.RawMessage `json:"payload"`
	}{plain: plain(e)}

	if e.Payload == nil {
		return nil, fmt.Errorf("event %d: missing payload", e.Sequence)
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("event %d: marshal payload: %w", e.Sequence, err)
	}
	aux.EventType = e.Payload.EventType()
	aux.Payload = data
	return json.Marshal(aux)
}

// UnmarshalJSON decodes the payload according to event_type.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	aux := struct {
		*plain
		Payload json.RawMessage `json:"payload"`
	}{plain: (*plain)(e)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	payload, err := DecodeEventPayload(e.EventType, aux.Payload)
	if err != nil {
		return err
	}
	e.Payload = payload
	return nil
}

// EncodePayload returns the JSON form of an event payload for storage.
func EncodePayload(p EventPayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.EventType(), err)
	}
	return data, nil
}

// DecodeEventPayload decodes data into the payload registered for t.
func DecodeEventPayload(t EventType, data []byte) (EventPayload, error) {
	factory, ok := eventFactories[t]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", t)
	}
	ptr := factory()
	if len(data) > 0 {
		if err := json.Unmarshal(data, ptr); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
	}
	return derefEvent(ptr), nil
}

func derefEvent(p EventPayload) EventPayload {
	switch v := p.(type) {
	case *TableOpened:
		return *v
	case *ItemsAdded:
		return *v
	case *ItemModified:
		return *v
	case *ItemRemoved:
		return *v
	case *ItemComped:
		return *v
	case *ItemUncomped:
		return *v
	case *PaymentAdded:
		return *v
	case *PaymentCancelled:
		return *v
	case *ItemSplitPaid:
		return *v
	case *AmountSplitPaid:
		return *v
	case *AASplitPaid:
		return *v
	case *OrderMoved:
		return *v
	case *OrderMovedOut:
		return *v
	case *OrderMerged:
		return *v
	case *OrderMergedOut:
		return *v
	case *OrderDiscountApplied:
		return *v
	case *OrderSurchargeApplied:
		return *v
	case *RuleSkipToggled:
		return *v
	case *OrderInfoUpdated:
		return *v
	case *OrderCompleted:
		return *v
	case *OrderVoided:
		return *v
	}
	return p
}

// IsTerminal reports whether t ends an order's lifecycle.
func (t EventType) IsTerminal() bool {
	switch t {
	case EvtOrderCompleted, EvtOrderVoided, EvtOrderMovedOut, EvtOrderMergedOut:
		return true
	}
	return false
}
