package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/petalpeople/mcp"
)

// NewCallCmd creates the "call" subcommand, an MCP client for a running
// server.
func NewCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call [name]",
		Short: "Call a tool on a running MCP server",
		Long: "Call a tool on a running MCP server.\n\n" +
			"Connect with --endpoint to the server's POST /mcp URL or its GET /sse stream, or with\n" +
			"--command to spawn a server that speaks MCP on stdio. Without a tool name the server's\n" +
			"tools are listed.",
		Example: "  petalpeople call --endpoint http://127.0.0.1:8000/mcp find_person_by_name --arg name=Ada\n" +
			"  petalpeople call --command petalpeople --command-arg serve --command-arg --transport=stdio",
		Args: cobra.MaximumNArgs(1),
		RunE: runCall,
	}
	cmd.Flags().String("endpoint", "", "Server URL, http://127.0.0.1:8000/mcp or http://127.0.0.1:8000/sse")
	cmd.Flags().String("command", "", "Server binary to spawn over stdio")
	cmd.Flags().StringArray("command-arg", nil, "Argument for --command (repeatable)")
	cmd.Flags().StringArray("arg", nil, "Argument KEY=VALUE pair (repeatable)")
	cmd.Flags().String("args-json", "", "Arguments as a JSON object")
	cmd.Flags().Duration("timeout", 30*time.Second, "Overall call timeout")
	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	transport, err := newCallTransport(ctx, cmd)
	if err != nil {
		return err
	}
	client := mcp.NewClient(transport, mcp.Options{
		ClientInfo: mcp.Implementation{Name: "petalpeople-cli", Version: Version},
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}()

	if _, err := client.Initialize(ctx); err != nil {
		return exitError(exitRuntime, "initialize: %v", err)
	}
	listed, err := client.ListTools(ctx)
	if err != nil {
		return exitError(exitRuntime, "tools/list: %v", err)
	}

	if len(args) == 0 {
		writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
		fmt.Fprintln(writer, "NAME\tDESCRIPTION")
		for _, t := range listed.Tools {
			fmt.Fprintf(writer, "%s\t%s\n", t.Name, t.Description)
		}
		return writer.Flush()
	}

	name := strings.TrimSpace(args[0])
	var remote *mcp.Tool
	for i := range listed.Tools {
		if listed.Tools[i].Name == name {
			remote = &listed.Tools[i]
			break
		}
	}
	if remote == nil {
		return exitError(exitValidation, "server has no tool %q", name)
	}

	pairs, _ := cmd.Flags().GetStringArray("arg")
	argJSON, _ := cmd.Flags().GetString("args-json")
	toolArgs, err := parseArgPairs(pairs, argJSON, schemaParamTypes(remote.InputSchema))
	if err != nil {
		return exitError(exitInputParse, "parsing arguments: %v", err)
	}

	result, err := client.CallTool(ctx, mcp.ToolsCallParams{Name: name, Arguments: toolArgs})
	if err != nil {
		var rpcErr *mcp.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == mcp.CodeInvalidParams {
			return exitError(exitValidation, "%s: %s", name, rpcErr.Message)
		}
		return exitError(exitRuntime, "tools/call: %v", err)
	}
	if result.IsError {
		return exitError(exitToolFailure, "%s", result.Text())
	}

	if value, ok := result.StructuredContent["result"]; ok {
		if text, isText := value.(string); isText {
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		}
		if err := writeJSON(cmd.OutOrStdout(), value); err != nil {
			return exitError(exitRuntime, "encoding result: %v", err)
		}
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Text())
	return nil
}

func newCallTransport(ctx context.Context, cmd *cobra.Command) (mcp.Transport, error) {
	endpoint, _ := cmd.Flags().GetString("endpoint")
	command, _ := cmd.Flags().GetString("command")
	endpoint = strings.TrimSpace(endpoint)
	command = strings.TrimSpace(command)

	switch {
	case endpoint != "" && command != "":
		return nil, exitError(exitValidation, "--endpoint and --command are mutually exclusive")
	case endpoint != "":
		transport, err := mcp.NewHTTPTransport(mcp.HTTPTransportConfig{Endpoint: endpoint})
		if err != nil {
			return nil, exitError(exitValidation, "%v", err)
		}
		return transport, nil
	case command != "":
		commandArgs, _ := cmd.Flags().GetStringArray("command-arg")
		transport, err := mcp.NewStdioTransport(ctx, mcp.StdioTransportConfig{
			Command: command,
			Args:    commandArgs,
			Stderr:  cmd.ErrOrStderr(),
		})
		if err != nil {
			return nil, exitError(exitRuntime, "starting %s: %v", command, err)
		}
		return transport, nil
	default:
		return nil, exitError(exitValidation, "one of --endpoint or --command is required")
	}
}
