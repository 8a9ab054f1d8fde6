package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/LucaXiang/Crab-sub002/internal/engine"
	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Type         string
	Data         string
	CommandID    string
	OperatorID   string
	OperatorName string
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit [file|-]",
		Short: "Submit commands to the order engine",
		Long: `Submit one or more order commands and print each response.

Commands are read from a JSON file (or stdin with "-") holding a single
command or an array of commands:

  {"command_id": "c1", "operator_id": "op-1", "operator_name": "Alice",
   "payload": {"type": "OPEN_TABLE", "data": {"table_id": "T1"}}}

Alternatively build one command from flags with --type and --data.
Commands without a command_id get a fresh one.

Exit codes:
  0 - Every command succeeded
  1 - At least one command was rejected
  2 - Command error (bad input, database unreachable, etc.)

Examples:
  crab submit commands.json
  crab submit --type OPEN_TABLE --data '{"table_id":"T1","guest_count":2}'
  crab submit --rules ./rules --format json - < commands.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "command type (e.g. OPEN_TABLE)")
	cmd.Flags().StringVar(&opts.Data, "data", "{}", "command payload as JSON")
	cmd.Flags().StringVar(&opts.CommandID, "id", "", "command id (generated if empty)")
	cmd.Flags().StringVar(&opts.OperatorID, "operator", "cli", "operator id")
	cmd.Flags().StringVar(&opts.OperatorName, "operator-name", "CLI", "operator name")

	return cmd
}

func runSubmit(ctx context.Context, opts *SubmitOptions, args []string, cmd *cobra.Command) error {
	commands, err := readCommands(opts, args, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid input", err)
	}

	b, err := openBackend(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer b.Close()

	ids := engine.UUIDv7Generator{}
	responses := make([]order.CommandResponse, 0, len(commands))
	rejected := 0
	for _, c := range commands {
		if c.CommandID == "" {
			c.CommandID = ids.Generate()
		}
		if c.OperatorID == "" {
			c.OperatorID, c.OperatorName = opts.OperatorID, opts.OperatorName
		}
		resp := b.gateway.Submit(ctx, c)
		if !resp.Success {
			rejected++
		}
		responses = append(responses, resp)
	}

	out := formatter(opts.RootOptions, cmd.OutOrStdout())
	if !out.JSON() {
		for i, resp := range responses {
			printResponse(out.Writer, commands[i].Payload.CommandType(), resp)
		}
	}
	if rejected > 0 {
		msg := fmt.Sprintf("%s rejected", plural(rejected, "command"))
		if err := out.Failure(ErrCodeRejected, msg, responses); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	if out.JSON() {
		return out.Success(responses)
	}
	return nil
}

func printResponse(w io.Writer, t order.CommandType, resp order.CommandResponse) {
	if resp.Success {
		fmt.Fprintf(w, "✓ %s %s order=%s\n", resp.CommandID, t, resp.OrderID)
		return
	}
	fmt.Fprintf(w, "✗ %s %s %s: %s\n", resp.CommandID, t, resp.Error.Code, resp.Error.Message)
}

// readCommands builds commands from --type/--data or from a JSON input.
func readCommands(opts *SubmitOptions, args []string, stdin io.Reader) ([]order.Command, error) {
	if opts.Type != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("--type cannot be combined with an input file")
		}
		payload, err := order.DecodeCommandPayload(order.CommandType(opts.Type), json.RawMessage(opts.Data))
		if err != nil {
			return nil, err
		}
		return []order.Command{{
			CommandID:    opts.CommandID,
			OperatorID:   opts.OperatorID,
			OperatorName: opts.OperatorName,
			Payload:      payload,
		}}, nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("an input file or --type is required")
	}

	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return nil, err
	}
	return decodeCommands(data)
}

// decodeCommands accepts a single command object or an array of them.
func decodeCommands(data []byte) ([]order.Command, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("no commands in input")
	}
	if data[0] == '[' {
		var cmds []order.Command
		if err := json.Unmarshal(data, &cmds); err != nil {
			return nil, err
		}
		if len(cmds) == 0 {
			return nil, fmt.Errorf("no commands in input")
		}
		return cmds, nil
	}
	var c order.Command
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return []order.Command{c}, nil
}
