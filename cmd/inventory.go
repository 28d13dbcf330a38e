package cmd

import (
	"context"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"grimm.is/halyard/internal/client"
)

var (
	apsCmd = &cobra.Command{
		Use:     "aps",
		Aliases: []string{"accesspoints"},
		Short:   "Show or refresh Wi-Fi scan results",
	}
	apsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List access points from the last scan",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, c *client.HTTPClient, out io.Writer, _ []string) error {
			return runAccessPoints(ctx, c, out)
		}),
	}
	apsScanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Request a new scan",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, c *client.HTTPClient, out io.Writer, _ []string) error {
			if err := c.RequestScan(ctx); err != nil {
				return err
			}
			Printer.Fprintln(out, "Scan requested")
			return nil
		}),
	}

	interfacesCmd = &cobra.Command{
		Use:     "interfaces",
		Aliases: []string{"if"},
		Short:   "Inspect managed network interfaces",
	}
	ifListCmd = &cobra.Command{
		Use:   "list",
		Short: "List managed interfaces",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, c *client.HTTPClient, out io.Writer, _ []string) error {
			names, err := c.Interfaces(ctx)
			if err != nil {
				return err
			}
			for _, n := range names {
				Printer.Fprintln(out, n)
			}
			return nil
		}),
	}
	ifShowCmd = &cobra.Command{
		Use:   "show <name>",
		Short: "Show the full record of an interface",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, c *client.HTTPClient, out io.Writer, args []string) error {
			detail, err := c.Interface(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(out, detail)
		}),
	}
	ifStatsCmd = &cobra.Command{
		Use:   "stats <name>",
		Short: "Show traffic counters of an interface",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, c *client.HTTPClient, out io.Writer, args []string) error {
			return runInterfaceStats(ctx, c, out, args[0])
		}),
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the live status of every managed interface",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, c *client.HTTPClient, out io.Writer, _ []string) error {
			return runStatus(ctx, c, out)
		}),
	}
)

func init() {
	apsCmd.AddCommand(apsListCmd, apsScanCmd)
	interfacesCmd.AddCommand(ifListCmd, ifShowCmd, ifStatsCmd)
}

func runAccessPoints(ctx context.Context, c *client.HTTPClient, out io.Writer) error {
	aps, err := c.AccessPoints(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	Printer.Fprintln(w, "SSID\tBSSID\tCHAN\tSIGNAL\tSECURITY")
	for _, ap := range aps {
		Printer.Fprintf(w, "%s\t%s\t%d\t%d%%\t%s\n", ap.SSID, ap.HwAddress, ap.Channel, ap.Strength, ap.Security)
	}
	return w.Flush()
}

func runInterfaceStats(ctx context.Context, c *client.HTTPClient, out io.Writer, name string) error {
	st, err := c.InterfaceStats(ctx, name)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	Printer.Fprintln(w, "\tBYTES\tPACKETS\tERRORS\tDROPPED\t")
	Printer.Fprintf(w, "rx\t%d\t%d\t%d\t%d\t\n", st.RxBytes, st.RxPackets, st.RxErrors, st.RxDropped)
	Printer.Fprintf(w, "tx\t%d\t%d\t%d\t%d\t\n", st.TxBytes, st.TxPackets, st.TxErrors, st.TxDropped)
	if err := w.Flush(); err != nil {
		return err
	}
	Printer.Fprintf(out, "multicast: %d\n", st.Multicast)
	return nil
}

func runStatus(ctx context.Context, c *client.HTTPClient, out io.Writer) error {
	status, err := c.Status(ctx)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(status))
	for n := range status {
		names = append(names, n)
	}
	slices.Sort(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	Printer.Fprintln(w, "INTERFACE\tTYPE\tSTATE\tCONNECTION")
	for _, n := range names {
		st := status[n]
		conn := "-"
		if st.ActiveConnection != nil {
			conn = st.ActiveConnection.ID
		}
		Printer.Fprintf(w, "%s\t%s\t%s\t%s\n", n, st.Status.DeviceTypeText, st.Status.StateText, conn)
	}
	return w.Flush()
}
