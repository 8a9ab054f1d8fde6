package catalog

import (
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"
	"github.com/shopspring/decimal"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// CompileRule parses one rule struct. The rule id is the struct label.
func CompileRule(v cue.Value) (order.PricingRule, error) {
	id := label(v)
	field := "rule." + id
	if err := v.Err(); err != nil {
		return order.PricingRule{}, formatCUEError(ErrCodeInvalid, field, err)
	}

	r := order.PricingRule{
		ID:        id,
		Level:     order.LevelItem,
		Scope:     order.ScopeGlobal,
		ZoneScope: order.ZoneAll,
	}
	var err error
	if r.Name, err = stringField(v, "name", id); err != nil {
		return r, err
	}

	level, err := stringField(v, "level", string(r.Level))
	if err != nil {
		return r, err
	}
	r.Level = order.RuleLevel(level)
	if !slices.Contains([]order.RuleLevel{order.LevelItem, order.LevelOrder}, r.Level) {
		return r, invalid(field+".level", pos(v, "level"), "unknown level %q", level)
	}

	scope, err := stringField(v, "scope", string(r.Scope))
	if err != nil {
		return r, err
	}
	r.Scope = order.RuleScope(scope)
	switch r.Scope {
	case order.ScopeGlobal:
	case order.ScopeCategory, order.ScopeTag, order.ScopeProduct:
		if r.TargetID, err = stringField(v, "target", ""); err != nil {
			return r, err
		}
		if r.TargetID == "" {
			return r, invalid(field+".target", v.Pos(), "scope %s requires a target", scope)
		}
	default:
		return r, invalid(field+".scope", pos(v, "scope"), "unknown scope %q", scope)
	}
	if r.Level == order.LevelOrder && r.Scope != order.ScopeGlobal {
		return r, invalid(field+".scope", pos(v, "scope"), "order level rules must be GLOBAL")
	}

	if r.ZoneScope, err = stringField(v, "zone", order.ZoneAll); err != nil {
		return r, err
	}

	direction, err := stringField(v, "direction", "")
	if err != nil {
		return r, err
	}
	r.Direction = order.Direction(direction)
	if r.Direction != order.DirectionDiscount && r.Direction != order.DirectionSurcharge {
		return r, invalid(field+".direction", pos(v, "direction"), "direction must be DISCOUNT or SURCHARGE, got %q", direction)
	}

	typ, err := stringField(v, "type", "")
	if err != nil {
		return r, err
	}
	r.AdjustmentType = order.AdjustmentType(typ)
	if r.AdjustmentType != order.AdjustmentPercentage && r.AdjustmentType != order.AdjustmentFixed {
		return r, invalid(field+".type", pos(v, "type"), "type must be PERCENTAGE or FIXED_AMOUNT, got %q", typ)
	}

	if r.Value, err = decimalField(v, "value", true); err != nil {
		return r, err
	}
	if !r.Value.IsPositive() {
		return r, invalid(field+".value", pos(v, "value"), "value must be positive")
	}
	if r.AdjustmentType == order.AdjustmentPercentage && r.Value.GreaterThan(decimal.NewFromInt(100)) {
		return r, invalid(field+".value", pos(v, "value"), "percentage above 100")
	}

	if r.Priority, err = intField(v, "priority"); err != nil {
		return r, err
	}
	if r.Stackable, err = boolField(v, "stackable"); err != nil {
		return r, err
	}
	if r.Exclusive, err = boolField(v, "exclusive"); err != nil {
		return r, err
	}
	return r, nil
}

// CompileProduct parses one product struct. The product id is the label.
func CompileProduct(v cue.Value) (Product, error) {
	id := label(v)
	field := "product." + id
	if err := v.Err(); err != nil {
		return Product{}, formatCUEError(ErrCodeInvalid, field, err)
	}

	p := Product{ID: id}
	var err error
	if p.Name, err = stringField(v, "name", id); err != nil {
		return p, err
	}
	price, err := decimalField(v, "price", true)
	if err != nil {
		return p, err
	}
	if price.IsNegative() {
		return p, invalid(field+".price", pos(v, "price"), "price must not be negative")
	}
	p.Price = order.Cents(price)
	if p.CategoryID, err = stringField(v, "category", ""); err != nil {
		return p, err
	}
	if p.TaxRate, err = decimalField(v, "tax_rate", false); err != nil {
		return p, err
	}
	if p.TaxRate.IsNegative() {
		return p, invalid(field+".tax_rate", pos(v, "tax_rate"), "tax rate must not be negative")
	}

	tags := v.LookupPath(cue.ParsePath("tags"))
	if tags.Exists() {
		list, err := tags.List()
		if err != nil {
			return p, formatCUEError(ErrCodeInvalid, field+".tags", err)
		}
		for list.Next() {
			tag, err := list.Value().String()
			if err != nil {
				return p, formatCUEError(ErrCodeInvalid, field+".tags", err)
			}
			p.TagIDs = append(p.TagIDs, tag)
		}
	}
	return p, nil
}

func label(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return sels[len(sels)-1].String()
}

func path(v cue.Value, name string) string {
	return v.Path().String() + "." + name
}

func pos(v cue.Value, name string) token.Pos {
	return v.LookupPath(cue.ParsePath(name)).Pos()
}

func stringField(v cue.Value, name, def string) (string, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return def, nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(ErrCodeInvalid, path(v, name), err)
	}
	return s, nil
}

func intField(v cue.Value, name string) (int, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return 0, nil
	}
	n, err := f.Int64()
	if err != nil {
		return 0, formatCUEError(ErrCodeInvalid, path(v, name), err)
	}
	return int(n), nil
}

func boolField(v cue.Value, name string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, formatCUEError(ErrCodeInvalid, path(v, name), err)
	}
	return b, nil
}

// decimalField accepts a CUE number or a numeric string.
func decimalField(v cue.Value, name string, required bool) (decimal.Decimal, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		if required {
			return decimal.Zero, invalid(path(v, name), v.Pos(), "%s is required", name)
		}
		return decimal.Zero, nil
	}
	var text string
	switch f.Kind() {
	case cue.StringKind:
		s, err := f.String()
		if err != nil {
			return decimal.Zero, formatCUEError(ErrCodeInvalid, path(v, name), err)
		}
		text = s
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		b, err := f.MarshalJSON()
		if err != nil {
			return decimal.Zero, formatCUEError(ErrCodeInvalid, path(v, name), err)
		}
		text = string(b)
	default:
		return decimal.Zero, invalid(path(v, name), f.Pos(), "expected a number, got %s", f.IncompleteKind())
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, invalid(path(v, name), f.Pos(), "invalid number %q", text)
	}
	return d, nil
}
