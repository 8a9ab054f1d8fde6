package order

import "github.com/shopspring/decimal"

// ItemOption is a selected modifier on a line item.
type ItemOption struct {
	Name          string `json:"name"`
	PriceModifier int64  `json:"price_modifier"`
}

// CartItem is one line item instance. InstanceID is distinct from the
// catalog ProductID so units of the same product are addressed separately.
//
// Fields below the blank line are computed by the reducer on every fold.
type CartItem struct {
	InstanceID            string          `json:"instance_id"`
	ProductID             string          `json:"product_id"`
	Name                  string          `json:"name"`
	CategoryID            string          `json:"category_id,omitempty"`
	TagIDs                []string        `json:"tag_ids,omitempty"`
	Price                 int64           `json:"price"`
	Options               []ItemOption    `json:"options,omitempty"`
	Quantity              int             `json:"quantity"`
	ManualDiscountPercent decimal.Decimal `json:"manual_discount_percent"`
	TaxRate               decimal.Decimal `json:"tax_rate"`
	Note                  string          `json:"note,omitempty"`

	PaidQuantity         int           `json:"paid_quantity"`
	CompedQuantity       int           `json:"comped_quantity"`
	UnpaidQuantity       int           `json:"unpaid_quantity"`
	BaseUnitPrice        int64         `json:"base_unit_price"`
	UnitPrice            int64         `json:"unit_price"`
	ManualDiscountAmount int64         `json:"manual_discount_amount"`
	RuleDiscountAmount   int64         `json:"rule_discount_amount"`
	RuleSurchargeAmount  int64         `json:"rule_surcharge_amount"`
	LineTotal            int64         `json:"line_total"`
	TaxAmount            int64         `json:"tax_amount"`
	AppliedRules         []AppliedRule `json:"applied_rules,omitempty"`
}

// BillableQuantity is the quantity that is charged (not comped).
func (c CartItem) BillableQuantity() int {
	return c.Quantity - c.CompedQuantity
}

// Facts returns a copy of the item with every computed field cleared.
// Used when an item is carried into another order by move or merge.
func (c CartItem) Facts() CartItem {
	out := CartItem{
		InstanceID:            c.InstanceID,
		ProductID:             c.ProductID,
		Name:                  c.Name,
		CategoryID:            c.CategoryID,
		Price:                 c.Price,
		Quantity:              c.Quantity,
		ManualDiscountPercent: c.ManualDiscountPercent,
		TaxRate:               c.TaxRate,
		Note:                  c.Note,
		CompedQuantity:        c.CompedQuantity,
	}
	if len(c.TagIDs) > 0 {
		out.TagIDs = append([]string(nil), c.TagIDs...)
	}
	if len(c.Options) > 0 {
		out.Options = append([]ItemOption(nil), c.Options...)
	}
	return out
}

// SplitItem attributes part of a payment to an item instance.
type SplitItem struct {
	InstanceID string `json:"instance_id"`
	Quantity   int    `json:"quantity"`
	Amount     int64  `json:"amount,omitempty"`
}

// PaymentRecord is an append-only payment entry. Cancellation flips
// Cancelled through a later PAYMENT_CANCELLED fact; the record is kept.
type PaymentRecord struct {
	PaymentID     string      `json:"payment_id"`
	Method        string      `json:"method"`
	Amount        int64       `json:"amount"`
	Tendered      int64       `json:"tendered"`
	Change        int64       `json:"change"`
	Note          string      `json:"note,omitempty"`
	SplitMode     SplitMode   `json:"split_mode"`
	Items         []SplitItem `json:"items,omitempty"`
	AAShares      int         `json:"aa_shares,omitempty"`
	AATotalShares int         `json:"aa_total_shares,omitempty"`
	Sequence      int64       `json:"sequence"`
	Timestamp     int64       `json:"timestamp"`

	Cancelled    bool   `json:"cancelled"`
	CancelReason string `json:"cancel_reason,omitempty"`
	CancelledBy  string `json:"cancelled_by,omitempty"`
}

// CompRecord is an append-only comp entry. Uncomp is recorded as a new fact.
type CompRecord struct {
	CompID         string `json:"comp_id"`
	InstanceID     string `json:"instance_id"`
	Quantity       int    `json:"quantity"`
	Reason         string `json:"reason"`
	AuthorizerID   string `json:"authorizer_id"`
	AuthorizerName string `json:"authorizer_name"`
	Sequence       int64  `json:"sequence"`

	Uncomped     bool   `json:"uncomped"`
	UncompReason string `json:"uncomp_reason,omitempty"`
}

// ManualAdjustment is an operator-entered order discount or surcharge.
// Exactly one of Percent or Amount is set.
type ManualAdjustment struct {
	Percent      *decimal.Decimal `json:"percent,omitempty"`
	Amount       int64            `json:"amount,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	AuthorizerID string           `json:"authorizer_id,omitempty"`
}

// Snapshot is the materialised state of one order.
//
// Invariants, recomputable from the event prefix up to LastSequence:
//
//	Total           == Subtotal - TotalDiscount + TotalSurcharge + Tax
//	RemainingAmount == Total - PaidAmount
type Snapshot struct {
	OrderID    string `json:"order_id"`
	TableID    string `json:"table_id,omitempty"`
	TableName  string `json:"table_name,omitempty"`
	ZoneID     string `json:"zone_id,omitempty"`
	IsRetail   bool   `json:"is_retail"`
	GuestCount int    `json:"guest_count"`
	Note       string `json:"note,omitempty"`
	Status     Status `json:"status"`

	Items    []CartItem      `json:"items"`
	Payments []PaymentRecord `json:"payments"`
	Comps    []CompRecord    `json:"comps"`

	Rules                []PricingRule     `json:"rules,omitempty"`
	SkippedRuleIDs       []string          `json:"skipped_rule_ids,omitempty"`
	OrderAppliedRules    []AppliedRule     `json:"order_applied_rules,omitempty"`
	OrderManualDiscount  *ManualAdjustment `json:"order_manual_discount,omitempty"`
	OrderManualSurcharge *ManualAdjustment `json:"order_manual_surcharge,omitempty"`

	OriginalTotal              int64 `json:"original_total"`
	Subtotal                   int64 `json:"subtotal"`
	CompTotal                  int64 `json:"comp_total"`
	ItemManualDiscountAmount   int64 `json:"item_manual_discount_amount"`
	ItemRuleDiscountAmount     int64 `json:"item_rule_discount_amount"`
	ItemRuleSurchargeAmount    int64 `json:"item_rule_surcharge_amount"`
	OrderRuleDiscountAmount    int64 `json:"order_rule_discount_amount"`
	OrderRuleSurchargeAmount   int64 `json:"order_rule_surcharge_amount"`
	OrderManualDiscountAmount  int64 `json:"order_manual_discount_amount"`
	OrderManualSurchargeAmount int64 `json:"order_manual_surcharge_amount"`
	TotalDiscount              int64 `json:"total_discount"`
	TotalSurcharge             int64 `json:"total_surcharge"`
	Tax                        int64 `json:"tax"`
	Total                      int64 `json:"total"`
	PaidAmount                 int64 `json:"paid_amount"`
	RemainingAmount            int64 `json:"remaining_amount"`

	// Discount mirrors TotalDiscount for older readers.
	Discount int64 `json:"discount"`

	HasAmountSplit bool `json:"has_amount_split"`
	HasItemSplit   bool `json:"has_item_split"`
	AATotalShares  int  `json:"aa_total_shares"`
	AAPaidShares   int  `json:"aa_paid_shares"`

	ReceiptNumber string   `json:"receipt_number,omitempty"`
	MovedFrom     string   `json:"moved_from,omitempty"`
	MovedTo       string   `json:"moved_to,omitempty"`
	MergedFrom    []string `json:"merged_from,omitempty"`
	MergedInto    string   `json:"merged_into,omitempty"`
	VoidReason    string   `json:"void_reason,omitempty"`

	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
	EndTime      int64  `json:"end_time,omitempty"`
	LastSequence int64  `json:"last_sequence"`
	Checksum     string `json:"checksum"`
}

// FindItem returns the index of the item with the given instance id or -1.
func (s *Snapshot) FindItem(instanceID string) int {
	for i := range s.Items {
		if s.Items[i].InstanceID == instanceID {
			return i
		}
	}
	return -1
}

// FindPayment returns the index of the payment with the given id or -1.
func (s *Snapshot) FindPayment(paymentID string) int {
	for i := range s.Payments {
		if s.Payments[i].PaymentID == paymentID {
			return i
		}
	}
	return -1
}

// FindComp returns the index of the comp record with the given id or -1.
func (s *Snapshot) FindComp(compID string) int {
	for i := range s.Comps {
		if s.Comps[i].CompID == compID {
			return i
		}
	}
	return -1
}

// ActivePaymentCount returns the number of payments not cancelled.
func (s *Snapshot) ActivePaymentCount() int {
	n := 0
	for _, p := range s.Payments {
		if !p.Cancelled {
			n++
		}
	}
	return n
}

// IsRuleSkipped reports whether ruleID was toggled off for this order.
func (s *Snapshot) IsRuleSkipped(ruleID string) bool {
	for _, id := range s.SkippedRuleIDs {
		if id == ruleID {
			return true
		}
	}
	return false
}
