package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"grimm.is/halyard/internal/client"
)

var (
	showExtended bool
	profileFile  string

	connectionsCmd = &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn", "c"},
		Short:   "Manage connection profiles on a running daemon",
	}
	connListCmd = &cobra.Command{
		Use:   "list",
		Short: "List connection profiles",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, c *client.HTTPClient, out io.Writer, _ []string) error {
			return runConnectionsList(ctx, c, out)
		}),
	}
	connShowCmd = &cobra.Command{
		Use:   "show <uuid|id>",
		Short: "Show the settings of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, c *client.HTTPClient, out io.Writer, args []string) error {
			return runConnectionShow(ctx, c, out, args[0], showExtended)
		}),
	}
	connCreateCmd = &cobra.Command{
		Use:   "create -f <file>",
		Short: "Create a profile from a JSON settings document",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, c *client.HTTPClient, out io.Writer, _ []string) error {
			doc, err := readDocument(profileFile)
			if err != nil {
				return err
			}
			return runConnectionCreate(ctx, c, out, doc)
		}),
	}
	connReplaceCmd = &cobra.Command{
		Use:   "replace <uuid|id> -f <file>",
		Short: "Replace the settings of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, c *client.HTTPClient, out io.Writer, args []string) error {
			doc, err := readDocument(profileFile)
			if err != nil {
				return err
			}
			ref, err := c.ReplaceConnection(ctx, args[0], doc)
			if err != nil {
				return err
			}
			Printer.Fprintf(out, "connection %s replaced (%s)\n", ref.ID, ref.UUID)
			return nil
		}),
	}
	connDeleteCmd = &cobra.Command{
		Use:   "delete <uuid|id>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, c *client.HTTPClient, out io.Writer, args []string) error {
			if err := c.DeleteConnection(ctx, args[0]); err != nil {
				return err
			}
			Printer.Fprintf(out, "connection %s deleted\n", args[0])
			return nil
		}),
	}
	connUpCmd = &cobra.Command{
		Use:   "up <uuid|id>",
		Short: "Activate a profile",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, c *client.HTTPClient, out io.Writer, args []string) error {
			return runSetActive(ctx, c, out, args[0], true)
		}),
	}
	connDownCmd = &cobra.Command{
		Use:   "down <uuid|id>",
		Short: "Deactivate a profile",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, c *client.HTTPClient, out io.Writer, args []string) error {
			return runSetActive(ctx, c, out, args[0], false)
		}),
	}
	connReloadCmd = &cobra.Command{
		Use:   "reload",
		Short: "Re-read profiles from disk",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, c *client.HTTPClient, out io.Writer, _ []string) error {
			if err := c.ReloadConnections(ctx); err != nil {
				return err
			}
			Printer.Fprintln(out, "connections reloaded")
			return nil
		}),
	}
)

func init() {
	connShowCmd.Flags().BoolVarP(&showExtended, "extended", "x", false, "include live state")
	for _, c := range []*cobra.Command{connCreateCmd, connReplaceCmd} {
		c.Flags().StringVarP(&profileFile, "file", "f", "", "JSON settings document (- for stdin)")
		c.MarkFlagRequired("file")
	}
	connectionsCmd.AddCommand(connListCmd, connShowCmd, connCreateCmd, connReplaceCmd,
		connDeleteCmd, connUpCmd, connDownCmd, connReloadCmd)
}

// withClient adapts a client command to cobra.
func withClient(fn func(ctx context.Context, c *client.HTTPClient, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return fn(cmd.Context(), c, cmd.OutOrStdout(), args)
	}
}

func readDocument(path string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings document: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse settings document %s: %w", path, err)
	}
	return doc, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func runConnectionsList(ctx context.Context, c *client.HTTPClient, out io.Writer) error {
	list, err := c.ListConnections(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	Printer.Fprintln(w, "ID\tUUID\tTYPE\tACTIVE")
	for _, p := range list {
		Printer.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.UUID, p.Type, yesNo(p.Activated))
	}
	return w.Flush()
}

func runConnectionShow(ctx context.Context, c *client.HTTPClient, out io.Writer, ref string, extended bool) error {
	doc, err := c.GetConnection(ctx, ref, extended)
	if err != nil {
		return err
	}
	return writeJSON(out, doc)
}

func runConnectionCreate(ctx context.Context, c *client.HTTPClient, out io.Writer, doc map[string]any) error {
	ref, err := c.CreateConnection(ctx, doc)
	if err != nil {
		return err
	}
	Printer.Fprintf(out, "connection %s created (%s)\n", ref.ID, ref.UUID)
	return nil
}

func runSetActive(ctx context.Context, c *client.HTTPClient, out io.Writer, ref string, active bool) error {
	res, err := c.SetActive(ctx, ref, active)
	if err != nil {
		return err
	}
	switch {
	case res.Message != "":
		Printer.Fprintln(out, res.Message)
	case active:
		Printer.Fprintf(out, "connection %s activated\n", res.ID)
	default:
		Printer.Fprintf(out, "connection %s deactivated\n", res.ID)
	}
	return nil
}
