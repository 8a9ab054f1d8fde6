package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// OrderSummary is the one-line view of an order.
type OrderSummary struct {
	OrderID   string       `json:"order_id"`
	TableName string       `json:"table_name,omitempty"`
	Status    order.Status `json:"status"`
	Items     int          `json:"items"`
	Total     string       `json:"total"`
	Paid      string       `json:"paid"`
	Remaining string       `json:"remaining"`
	Checksum  string       `json:"checksum"`
}

func summarize(s order.Snapshot) OrderSummary {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return OrderSummary{
		OrderID:   s.OrderID,
		TableName: s.TableName,
		Status:    s.Status,
		Items:     n,
		Total:     order.FormatCents(s.Total),
		Paid:      order.FormatCents(s.PaidAmount),
		Remaining: order.FormatCents(s.RemainingAmount),
		Checksum:  s.Checksum,
	}
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot [order-id]",
		Short: "Show order snapshots",
		Long: `Show the materialized snapshot of one order, or a summary of every
active order when no id is given.

Examples:
  crab snapshot
  crab snapshot 3f6c2a9e0d4b1c87 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer b.Close()

			out := formatter(rootOpts, cmd.OutOrStdout())
			if len(args) == 0 {
				active := b.seq.ActiveSnapshots()
				summaries := make([]OrderSummary, len(active))
				for i, s := range active {
					summaries[i] = summarize(s)
				}
				if out.JSON() {
					return out.Success(summaries)
				}
				printSummaries(out.Writer, summaries)
				return nil
			}

			snap, err := b.gateway.Snapshot(args[0])
			if err != nil {
				if ferr := out.Error(ErrCodeNotFound, err.Error(), nil); ferr != nil {
					return ferr
				}
				return WrapExitError(ExitFailure, "order not found", err)
			}
			if out.JSON() {
				return out.Success(snap)
			}
			printSnapshot(out.Writer, snap)
			return nil
		},
	}
	return cmd
}

func printSummaries(w io.Writer, summaries []OrderSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No active orders.")
		return
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "%s  %-12s %-9s items=%d total=%s paid=%s remaining=%s\n",
			s.OrderID, s.TableName, s.Status, s.Items, s.Total, s.Paid, s.Remaining)
	}
}

func printSnapshot(w io.Writer, s order.Snapshot) {
	fmt.Fprintf(w, "Order %s (%s)\n", s.OrderID, s.Status)
	if s.TableName != "" {
		fmt.Fprintf(w, "  Table: %s\n", s.TableName)
	}
	for _, it := range s.Items {
		fmt.Fprintf(w, "  %dx %-20s %8s\n", it.Quantity, it.Name, order.FormatCents(it.LineTotal))
	}
	for _, p := range s.Payments {
		state := ""
		if p.Cancelled {
			state = " (cancelled)"
		}
		fmt.Fprintf(w, "  paid %-8s %8s%s\n", p.Method, order.FormatCents(p.Amount), state)
	}
	fmt.Fprintf(w, "  Subtotal:  %s\n", order.FormatCents(s.Subtotal))
	fmt.Fprintf(w, "  Discount:  %s\n", order.FormatCents(s.TotalDiscount))
	fmt.Fprintf(w, "  Surcharge: %s\n", order.FormatCents(s.TotalSurcharge))
	fmt.Fprintf(w, "  Tax:       %s\n", order.FormatCents(s.Tax))
	fmt.Fprintf(w, "  Total:     %s\n", order.FormatCents(s.Total))
	fmt.Fprintf(w, "  Remaining: %s\n", order.FormatCents(s.RemainingAmount))
	fmt.Fprintf(w, "  Sequence:  %d  Checksum: %s\n", s.LastSequence, s.Checksum)
}
