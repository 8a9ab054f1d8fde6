package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/LucaXiang/Crab-sub002/internal/order"
	"github.com/LucaXiang/Crab-sub002/internal/pricing"
)

// Product is a sellable catalog entry. Price is in cents.
type Product struct {
	ID         string
	Name       string
	CategoryID string
	TagIDs     []string
	Price      int64
	TaxRate    decimal.Decimal
}

// Item builds the add-items input for qty units of p.
func (p Product) Item(qty int) order.ItemInput {
	return order.ItemInput{
		ProductID:  p.ID,
		Name:       p.Name,
		CategoryID: p.CategoryID,
		TagIDs:     slices.Clone(p.TagIDs),
		Price:      p.Price,
		Quantity:   qty,
		TaxRate:    p.TaxRate,
	}
}

// Catalog is an immutable set of rules and products.
type Catalog struct {
	rules    []order.PricingRule
	products map[string]Product
}

// New returns a catalog over the given rules and products.
func New(rules []order.PricingRule, products []Product) *Catalog {
	c := &Catalog{
		rules:    slices.Clone(rules),
		products: lo.KeyBy(products, func(p Product) string { return p.ID }),
	}
	slices.SortFunc(c.rules, func(a, b order.PricingRule) int { return strings.Compare(a.ID, b.ID) })
	return c
}

// Rules returns every rule ordered by id.
func (c *Catalog) Rules() []order.PricingRule {
	return slices.Clone(c.rules)
}

// RulesFor returns the rules whose zone scope admits an order in zoneID.
func (c *Catalog) RulesFor(zoneID string, isRetail bool) []order.PricingRule {
	return pricing.ForZone(c.rules, zoneID, isRetail)
}

// Product looks up a product by id.
func (c *Catalog) Product(id string) (Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

// Products returns every product ordered by id.
func (c *Catalog) Products() []Product {
	out := lo.Values(c.products)
	slices.SortFunc(out, func(a, b Product) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Load reads every .cue file in dir as one instance and compiles it.
// All rule and product errors are reported together.
func Load(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scanning %s: %v", dir, err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(ErrCodeLoadFailed, "", inst.Err)
	}
	return Compile(ctx.BuildInstance(inst))
}

// LoadString compiles catalog source held in memory. filename is used in
// error positions.
func LoadString(src, filename string) (*Catalog, error) {
	ctx := cuecontext.New()
	return Compile(ctx.CompileString(src, cue.Filename(filename)))
}

// Compile extracts the rule and product structs from a built CUE value.
func Compile(value cue.Value) (*Catalog, error) {
	if err := value.Err(); err != nil {
		return nil, formatCUEError(ErrCodeBuildFailed, "", err)
	}
	if err := value.Validate(); err != nil {
		return nil, formatCUEError(ErrCodeBuildFailed, "", err)
	}

	var (
		errs     []error
		rules    []order.PricingRule
		products []Product
	)
	if v := value.LookupPath(cue.ParsePath("rule")); v.Exists() {
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(ErrCodeInvalid, "rule", err)
		}
		for iter.Next() {
			r, err := CompileRule(iter.Value())
			if err != nil {
				errs = append(errs, err)
				continue
			}
			rules = append(rules, r)
		}
	}
	if v := value.LookupPath(cue.ParsePath("product")); v.Exists() {
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(ErrCodeInvalid, "product", err)
		}
		for iter.Next() {
			p, err := CompileProduct(iter.Value())
			if err != nil {
				errs = append(errs, err)
				continue
			}
			products = append(products, p)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return New(rules, products), nil
}

// FindCUEFiles walks dir and returns every .cue file path.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
