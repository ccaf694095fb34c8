package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/petalpeople/tool"
)

// NewToolsCmd creates the "tools" command group. Its subcommands run the
// registry in-process against the configured database.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List and invoke the people tools locally",
	}
	cmd.PersistentFlags().String("sqlite-path", "", "Path to SQLite database (default: ~/.petalpeople/people.db)")
	cmd.PersistentFlags().String("config", "", "Path to petalpeople.yaml or .toml config")

	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsCallCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		Args:  cobra.NoArgs,
		RunE:  runToolsList,
	}
	cmd.Flags().Bool("json", false, "Print tool descriptors with JSON Schemas")
	return cmd
}

type toolListing struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"inputSchema"`
	Returns     string `json:"returns"`
}

func runToolsList(cmd *cobra.Command, _ []string) error {
	rt, err := newPeopleRuntime(cmd)
	if err != nil {
		return err
	}
	descriptors := rt.registry.List()

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		listings := make([]toolListing, 0, len(descriptors))
		for _, d := range descriptors {
			listings = append(listings, toolListing{
				Name:        d.Name,
				Description: d.Description,
				InputSchema: tool.InputSchema(d),
				Returns:     d.Returns.String(),
			})
		}
		if err := writeJSON(cmd.OutOrStdout(), listings); err != nil {
			return exitError(exitRuntime, "encoding tools: %v", err)
		}
		return nil
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tPARAMS\tRETURNS")
	for _, d := range descriptors {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", d.Name, paramSummary(d), d.Returns)
	}
	return writer.Flush()
}

func paramSummary(d tool.Descriptor) string {
	if len(d.Params) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		part := p.Name + ":" + p.Type
		if !p.Required {
			part += "?"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

func newToolsCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <name>",
		Short: "Invoke a tool with KEY=VALUE arguments",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsCall,
	}
	cmd.Flags().StringArray("arg", nil, "Argument KEY=VALUE pair (repeatable)")
	cmd.Flags().String("args-json", "", "Arguments as a JSON object")
	return cmd
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	rt, err := newPeopleRuntime(cmd)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(args[0])

	descriptor, ok := rt.registry.Get(name)
	if !ok {
		return exitError(exitValidation, "tool %q is not registered", name)
	}
	pairs, _ := cmd.Flags().GetStringArray("arg")
	argJSON, _ := cmd.Flags().GetString("args-json")
	toolArgs, err := parseArgPairs(pairs, argJSON, paramTypes(descriptor))
	if err != nil {
		return exitError(exitInputParse, "parsing arguments: %v", err)
	}

	result, err := rt.registry.Invoke(cmd.Context(), name, toolArgs)
	if err != nil {
		if errors.Is(err, tool.ErrInvalidArguments) || errors.Is(err, tool.ErrUnknownTool) {
			return exitError(exitValidation, "%v", err)
		}
		return exitError(exitRuntime, "%v", err)
	}
	if result.IsError {
		return exitError(exitToolFailure, "%v", result.Value)
	}

	if text, ok := result.Value.(string); ok {
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	}
	if err := writeJSON(cmd.OutOrStdout(), result.Value); err != nil {
		return exitError(exitRuntime, "encoding result: %v", err)
	}
	return nil
}
