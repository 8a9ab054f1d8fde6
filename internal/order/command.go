package order

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// CommandType tags a command payload.
type CommandType string

const (
	CmdOpenTable           CommandType = "OPEN_TABLE"
	CmdAddItems            CommandType = "ADD_ITEMS"
	CmdModifyItem          CommandType = "MODIFY_ITEM"
	CmdRemoveItem          CommandType = "REMOVE_ITEM"
	CmdCompItem            CommandType = "COMP_ITEM"
	CmdUncompItem          CommandType = "UNCOMP_ITEM"
	CmdAddPayment          CommandType = "ADD_PAYMENT"
	CmdCancelPayment       CommandType = "CANCEL_PAYMENT"
	CmdSplitByItems        CommandType = "SPLIT_BY_ITEMS"
	CmdSplitByAmount       CommandType = "SPLIT_BY_AMOUNT"
	CmdAASplitPay          CommandType = "AA_SPLIT_PAY"
	CmdMoveOrder           CommandType = "MOVE_ORDER"
	CmdMergeOrders         CommandType = "MERGE_ORDERS"
	CmdApplyOrderDiscount  CommandType = "APPLY_ORDER_DISCOUNT"
	CmdApplyOrderSurcharge CommandType = "APPLY_ORDER_SURCHARGE"
	CmdToggleRuleSkip      CommandType = "TOGGLE_RULE_SKIP"
	CmdUpdateOrderInfo     CommandType = "UPDATE_ORDER_INFO"
	CmdCompleteOrder       CommandType = "COMPLETE_ORDER"
	CmdVoidOrder           CommandType = "VOID_ORDER"
)

// Command is an intent message. Timestamp is the client's wall clock in
// unix milliseconds and is advisory only.
type Command struct {
	CommandID    string         `json:"command_id"`
	Timestamp    int64          `json:"timestamp"`
	OperatorID   string         `json:"operator_id"`
	OperatorName string         `json:"operator_name"`
	Payload      CommandPayload `json:"payload"`
}

// CommandPayload is implemented by every command payload type.
type CommandPayload interface {
	CommandType() CommandType
	isCommandPayload()
}

// ItemInput describes a line item to add. Catalog data (name, price,
// category, tax rate) is resolved by the caller.
type ItemInput struct {
	ProductID             string          `json:"product_id"`
	Name                  string          `json:"name"`
	CategoryID            string          `json:"category_id,omitempty"`
	TagIDs                []string        `json:"tag_ids,omitempty"`
	Price                 int64           `json:"price"`
	Quantity              int             `json:"quantity"`
	Options               []ItemOption    `json:"options,omitempty"`
	ManualDiscountPercent decimal.Decimal `json:"manual_discount_percent"`
	TaxRate               decimal.Decimal `json:"tax_rate"`
	Note                  string          `json:"note,omitempty"`
}

// ItemChanges lists the mutable fields of a line item. Nil means unchanged.
type ItemChanges struct {
	Quantity              *int             `json:"quantity,omitempty"`
	Price                 *int64           `json:"price,omitempty"`
	ManualDiscountPercent *decimal.Decimal `json:"manual_discount_percent,omitempty"`
	Note                  *string          `json:"note,omitempty"`
}

type OpenTable struct {
	TableID    string `json:"table_id"`
	TableName  string `json:"table_name"`
	ZoneID     string `json:"zone_id,omitempty"`
	IsRetail   bool   `json:"is_retail"`
	GuestCount int    `json:"guest_count"`
}

type AddItems struct {
	OrderID string      `json:"order_id"`
	Items   []ItemInput `json:"items"`
}

type ModifyItem struct {
	OrderID    string      `json:"order_id"`
	InstanceID string      `json:"instance_id"`
	Changes    ItemChanges `json:"changes"`
}

// RemoveItem removes Quantity units; zero removes every unpaid unit.
type RemoveItem struct {
	OrderID    string `json:"order_id"`
	InstanceID string `json:"instance_id"`
	Quantity   int    `json:"quantity,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type CompItem struct {
	OrderID        string `json:"order_id"`
	InstanceID     string `json:"instance_id"`
	Quantity       int    `json:"quantity"`
	Reason         string `json:"reason"`
	AuthorizerID   string `json:"authorizer_id"`
	AuthorizerName string `json:"authorizer_name"`
}

type UncompItem struct {
	OrderID        string `json:"order_id"`
	CompID         string `json:"comp_id"`
	Reason         string `json:"reason,omitempty"`
	AuthorizerID   string `json:"authorizer_id"`
	AuthorizerName string `json:"authorizer_name"`
}

// AddPayment pays Amount without attribution. Tendered defaults to Amount.
type AddPayment struct {
	OrderID  string `json:"order_id"`
	Method   string `json:"method"`
	Amount   int64  `json:"amount"`
	Tendered int64  `json:"tendered,omitempty"`
	Note     string `json:"note,omitempty"`
}

type CancelPayment struct {
	OrderID        string `json:"order_id"`
	PaymentID      string `json:"payment_id"`
	Reason         string `json:"reason"`
	AuthorizerID   string `json:"authorizer_id,omitempty"`
	AuthorizerName string `json:"authorizer_name,omitempty"`
}

// SplitByItems pays for explicit item quantities; the amount is computed.
type SplitByItems struct {
	OrderID  string      `json:"order_id"`
	Method   string      `json:"method"`
	Items    []SplitItem `json:"items"`
	Tendered int64       `json:"tendered,omitempty"`
}

type SplitByAmount struct {
	OrderID  string `json:"order_id"`
	Method   string `json:"method"`
	Amount   int64  `json:"amount"`
	Tendered int64  `json:"tendered,omitempty"`
}

// AASplitPay pays Shares equal shares. TotalShares locks the share count
// on the first AA payment and must match (or be zero) afterwards.
type AASplitPay struct {
	OrderID     string `json:"order_id"`
	Method      string `json:"method"`
	TotalShares int    `json:"total_shares,omitempty"`
	Shares      int    `json:"shares"`
	Tendered    int64  `json:"tendered,omitempty"`
}

type MoveOrder struct {
	OrderID         string `json:"order_id"`
	TargetTableID   string `json:"target_table_id"`
	TargetTableName string `json:"target_table_name"`
	TargetZoneID    string `json:"target_zone_id,omitempty"`
}

type MergeOrders struct {
	SourceOrderID string `json:"source_order_id"`
	TargetOrderID string `json:"target_order_id"`
}

// ApplyOrderDiscount replaces the manual order discount.
// Both Percent and Amount unset clears it.
type ApplyOrderDiscount struct {
	OrderID      string           `json:"order_id"`
	Percent      *decimal.Decimal `json:"percent,omitempty"`
	Amount       int64            `json:"amount,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	AuthorizerID string           `json:"authorizer_id,omitempty"`
}

type ApplyOrderSurcharge struct {
	OrderID      string           `json:"order_id"`
	Percent      *decimal.Decimal `json:"percent,omitempty"`
	Amount       int64            `json:"amount,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	AuthorizerID string           `json:"authorizer_id,omitempty"`
}

type ToggleRuleSkip struct {
	OrderID string `json:"order_id"`
	RuleID  string `json:"rule_id"`
	Skipped bool   `json:"skipped"`
}

type UpdateOrderInfo struct {
	OrderID    string  `json:"order_id"`
	GuestCount *int    `json:"guest_count,omitempty"`
	Note       *string `json:"note,omitempty"`
}

type CompleteOrder struct {
	OrderID       string `json:"order_id"`
	ReceiptNumber string `json:"receipt_number,omitempty"`
}

type VoidOrder struct {
	OrderID      string `json:"order_id"`
	Reason       string `json:"reason"`
	AuthorizerID string `json:"authorizer_id,omitempty"`
}

func (OpenTable) CommandType() CommandType           { return CmdOpenTable }
func (AddItems) CommandType() CommandType            { return CmdAddItems }
func (ModifyItem) CommandType() CommandType          { return CmdModifyItem }
func (RemoveItem) CommandType() CommandType          { return CmdRemoveItem }
func (CompItem) CommandType() CommandType            { return CmdCompItem }
func (UncompItem) CommandType() CommandType          { return CmdUncompItem }
func (AddPayment) CommandType() CommandType          { return CmdAddPayment }
func (CancelPayment) CommandType() CommandType       { return CmdCancelPayment }
func (SplitByItems) CommandType() CommandType        { return CmdSplitByItems }
func (SplitByAmount) CommandType() CommandType       { return CmdSplitByAmount }
func (AASplitPay) CommandType() CommandType          { return CmdAASplitPay }
func (MoveOrder) CommandType() CommandType           { return CmdMoveOrder }
func (MergeOrders) CommandType() CommandType         { return CmdMergeOrders }
func (ApplyOrderDiscount) CommandType() CommandType  { return CmdApplyOrderDiscount }
func (ApplyOrderSurcharge) CommandType() CommandType { return CmdApplyOrderSurcharge }
func (ToggleRuleSkip) CommandType() CommandType      { return CmdToggleRuleSkip }
func (UpdateOrderInfo) CommandType() CommandType     { return CmdUpdateOrderInfo }
func (CompleteOrder) CommandType() CommandType       { return CmdCompleteOrder }
func (VoidOrder) CommandType() CommandType           { return CmdVoidOrder }

func (OpenTable) isCommandPayload()           {}
func (AddItems) isCommandPayload()            {}
func (ModifyItem) isCommandPayload()          {}
func (RemoveItem) isCommandPayload()          {}
func (CompItem) isCommandPayload()            {}
func (UncompItem) isCommandPayload()          {}
func (AddPayment) isCommandPayload()          {}
func (CancelPayment) isCommandPayload()       {}
func (SplitByItems) isCommandPayload()        {}
func (SplitByAmount) isCommandPayload()       {}
func (AASplitPay) isCommandPayload()          {}
func (MoveOrder) isCommandPayload()           {}
func (MergeOrders) isCommandPayload()         {}
func (ApplyOrderDiscount) isCommandPayload()  {}
func (ApplyOrderSurcharge) isCommandPayload() {}
func (ToggleRuleSkip) isCommandPayload()      {}
func (UpdateOrderInfo) isCommandPayload()     {}
func (CompleteOrder) isCommandPayload()       {}
func (VoidOrder) isCommandPayload()           {}

var commandFactories = map[CommandType]func() CommandPayload{
	CmdOpenTable:           func() CommandPayload { return &OpenTable{} },
	CmdAddItems:            func() CommandPayload { return &AddItems{} },
	CmdModifyItem:          func() CommandPayload { return &ModifyItem{} },
	CmdRemoveItem:          func() CommandPayload { return &RemoveItem{} },
	CmdCompItem:            func() CommandPayload { return &CompItem{} },
	CmdUncompItem:          func() CommandPayload { return &UncompItem{} },
	CmdAddPayment:          func() CommandPayload { return &AddPayment{} },
	CmdCancelPayment:       func() CommandPayload { return &CancelPayment{} },
	CmdSplitByItems:        func() CommandPayload { return &SplitByItems{} },
	CmdSplitByAmount:       func() CommandPayload { return &SplitByAmount{} },
	CmdAASplitPay:          func() CommandPayload { return &AASplitPay{} },
	CmdMoveOrder:           func() CommandPayload { return &MoveOrder{} },
	CmdMergeOrders:         func() CommandPayload { return &MergeOrders{} },
	CmdApplyOrderDiscount:  func() CommandPayload { return &ApplyOrderDiscount{} },
	CmdApplyOrderSurcharge: func() CommandPayload { return &ApplyOrderSurcharge{} },
	CmdToggleRuleSkip:      func() CommandPayload { return &ToggleRuleSkip{} },
	CmdUpdateOrderInfo:     func() CommandPayload { return &UpdateOrderInfo{} },
	CmdCompleteOrder:       func() CommandPayload { return &CompleteOrder{} },
	CmdVoidOrder:           func() CommandPayload { return &VoidOrder{} },
}

// envelope is the wire form of a tagged payload.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes the payload as a tagged envelope.
func (c Command) MarshalJSON() ([]byte, error) {
	type plain Command
	aux := struct {
		plain
		Payload envelope `json:"payload"`
	}{plain: plain(c)}

	if c.Payload == nil {
		return nil, fmt.Errorf("command %s: missing payload", c.CommandID)
	}
	data, err := json.Marshal(c.Payload)
	if err != nil {
		return nil, fmt.Errorf("command %s: marshal payload: %w", c.CommandID, err)
	}
	aux.Payload = envelope{Type: string(c.Payload.CommandType()), Data: data}
	return json.Marshal(aux)
}

// UnmarshalJSON decodes a tagged envelope into the matching payload type.
func (c *Command) UnmarshalJSON(data []byte) error {
	type plain Command
	aux := struct {
		*plain
		Payload envelope `json:"payload"`
	}{plain: (*plain)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	payload, err := DecodeCommandPayload(CommandType(aux.Payload.Type), aux.Payload.Data)
	if err != nil {
		return err
	}
	c.Payload = payload
	return nil
}

// DecodeCommandPayload decodes data into the payload registered for t.
func DecodeCommandPayload(t CommandType, data json.RawMessage) (CommandPayload, error) {
	factory, ok := commandFactories[t]
	if !ok {
		return nil, fmt.Errorf("unknown command type %q", t)
	}
	ptr := factory()
	if len(data) > 0 {
		if err := json.Unmarshal(data, ptr); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
	}
	return derefCommand(ptr), nil
}

// derefCommand converts a pointer payload into its value form so callers
// can switch on value types only.
func derefCommand(p CommandPayload) CommandPayload {
	switch v := p.(type) {
	case *OpenTable:
		return *v
	case *AddItems:
		return *v
	case *ModifyItem:
		return *v
	case *RemoveItem:
		return *v
	case *CompItem:
		return *v
	case *UncompItem:
		return *v
	case *AddPayment:
		return *v
	case *CancelPayment:
		return *v
	case *SplitByItems:
		return *v
	case *SplitByAmount:
		return *v
	case *AASplitPay:
		return *v
	case *MoveOrder:
		return *v
	case *MergeOrders:
		return *v
	case *ApplyOrderDiscount:
		return *v
	case *ApplyOrderSurcharge:
		return *v
	case *ToggleRuleSkip:
		return *v
	case *UpdateOrderInfo:
		return *v
	case *CompleteOrder:
		return *v
	case *VoidOrder:
		return *v
	}
	return p
}

// TargetOrderIDs returns the order ids a command mutates, in lock order.
// OpenTable returns nil because its order id is assigned by the gateway.
func TargetOrderIDs(p CommandPayload) []string {
	switch v := p.(type) {
	case OpenTable:
		return nil
	case AddItems:
		return []string{v.OrderID}
	case ModifyItem:
		return []string{v.OrderID}
	case RemoveItem:
		return []string{v.OrderID}
	case CompItem:
		return []string{v.OrderID}
	case UncompItem:
		return []string{v.OrderID}
	case AddPayment:
		return []string{v.OrderID}
	case CancelPayment:
		return []string{v.OrderID}
	case SplitByItems:
		return []string{v.OrderID}
	case SplitByAmount:
		return []string{v.OrderID}
	case AASplitPay:
		return []string{v.OrderID}
	case MoveOrder:
		return []string{v.OrderID}
	case MergeOrders:
		return []string{v.SourceOrderID, v.TargetOrderID}
	case ApplyOrderDiscount:
		return []string{v.OrderID}
	case ApplyOrderSurcharge:
		return []string{v.OrderID}
	case ToggleRuleSkip:
		return []string{v.OrderID}
	case UpdateOrderInfo:
		return []string{v.OrderID}
	case CompleteOrder:
		return []string{v.OrderID}
	case VoidOrder:
		return []string{v.OrderID}
	}
	return nil
}
