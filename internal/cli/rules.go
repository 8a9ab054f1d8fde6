package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/LucaXiang/Crab-sub002/internal/catalog"
	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// RulesOptions holds flags for the rules command.
type RulesOptions struct {
	*RootOptions
	Zone   string
	Retail bool
}

// RuleView is the printable form of a pricing rule.
type RuleView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Level     string `json:"level"`
	Scope     string `json:"scope"`
	Target    string `json:"target,omitempty"`
	Zone      string `json:"zone"`
	Direction string `json:"direction"`
	Type      string `json:"type"`
	Value     string `json:"value"`
	Priority  int    `json:"priority"`
	Stackable bool   `json:"stackable"`
	Exclusive bool   `json:"exclusive"`
}

// ProductView is the printable form of a catalog product.
type ProductView struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Price    string   `json:"price"`
	TaxRate  string   `json:"tax_rate"`
}

// RulesResult is the rules command output.
type RulesResult struct {
	Rules    []RuleView    `json:"rules"`
	Products []ProductView `json:"products"`
}

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RulesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rules <dir>",
		Short: "Validate and list a CUE rule catalog",
		Long: `Load every .cue file in a directory, validate the pricing rules and
products it declares, and list them. Every invalid entry is reported with
its file position.

With --zone only the rules that apply to orders in that zone are listed.

Examples:
  crab rules ./menu
  crab rules ./menu --zone terrace
  crab rules ./menu --retail --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(opts, args[0], cmd.Flags().Changed("zone") || opts.Retail, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Zone, "zone", "", "list only rules applying to this zone")
	cmd.Flags().BoolVar(&opts.Retail, "retail", false, "list only rules applying to retail orders")
	return cmd
}

func runRules(opts *RulesOptions, dir string, filter bool, w io.Writer) error {
	out := formatter(opts.RootOptions, w)

	cat, err := catalog.Load(dir)
	if err != nil {
		details := loadErrors(err)
		if out.JSON() {
			if ferr := out.Error(ErrCodeCatalog, "catalog validation failed", details); ferr != nil {
				return ferr
			}
		} else {
			fmt.Fprintf(w, "✗ %s in %s\n", plural(len(details), "error"), dir)
			for _, d := range details {
				fmt.Fprintf(w, "  %s\n", d)
			}
		}
		return WrapExitError(ExitFailure, "catalog validation failed", err)
	}

	rules := cat.Rules()
	if filter {
		rules = cat.RulesFor(opts.Zone, opts.Retail)
	}
	result := RulesResult{Rules: make([]RuleView, len(rules))}
	for i, r := range rules {
		result.Rules[i] = ruleView(r)
	}
	for _, p := range cat.Products() {
		result.Products = append(result.Products, ProductView{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.CategoryID,
			Tags:     p.TagIDs,
			Price:    order.FormatCents(p.Price),
			TaxRate:  p.TaxRate.String(),
		})
	}

	if out.JSON() {
		return out.Success(result)
	}
	fmt.Fprintf(w, "✓ %s, %s\n", plural(len(result.Rules), "rule"), plural(len(result.Products), "product"))
	for _, r := range result.Rules {
		target := r.Scope
		if r.Target != "" {
			target += ":" + r.Target
		}
		fmt.Fprintf(w, "  rule %-16s %-5s %-9s %-12s %s %s zone=%s prio=%d\n",
			r.ID, r.Level, r.Direction, r.Type, r.Value, target, r.Zone, r.Priority)
	}
	for _, p := range result.Products {
		fmt.Fprintf(w, "  product %-13s %8s %s\n", p.ID, p.Price, p.Name)
	}
	return nil
}

func ruleView(r order.PricingRule) RuleView {
	return RuleView{
		ID:        r.ID,
		Name:      r.Name,
		Level:     string(r.Level),
		Scope:     string(r.Scope),
		Target:    r.TargetID,
		Zone:      r.ZoneScope,
		Direction: string(r.Direction),
		Type:      string(r.AdjustmentType),
		Value:     r.Value.String(),
		Priority:  r.Priority,
		Stackable: r.Stackable,
		Exclusive: r.Exclusive,
	}
}

// loadErrors flattens a joined catalog error into one message per entry.
func loadErrors(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, loadErrors(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
