package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"grimm.is/halyard/internal/brand"
	"grimm.is/halyard/internal/config"
)

var (
	checkVerbose bool
	showJSON     bool
	initForce    bool

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Validate or print the daemon configuration",
	}
	configCheckCmd = &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFile
			if len(args) == 1 {
				path = args[0]
			}
			return RunCheck(cmd.OutOrStdout(), path, checkVerbose)
		},
	}
	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration, defaults and overrides applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunShowConfig(cmd.OutOrStdout(), configFile, showJSON)
		},
	}
	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to --config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunInitConfig(cmd.OutOrStdout(), configFile, initForce)
		},
	}
)

func init() {
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file (the old one is kept as .bak)")
	configCheckCmd.Flags().BoolVarP(&checkVerbose, "verbose", "v", false, "print a summary of the configuration")
	configShowCmd.Flags().BoolVar(&showJSON, "json", false, "print JSON instead of HCL")
	configCmd.AddCommand(configCheckCmd, configShowCmd, configInitCmd)
}

// RunCheck validates the configuration file syntax and semantics.
func RunCheck(out io.Writer, configFile string, verbose bool) error {
	if len(configFile) == 0 {
		return fmt.Errorf("usage: %s config check [-v] <config-file>\nExample: %s config check -v /etc/halyard/halyard.hcl", brand.BinaryName, brand.BinaryName)
	}

	opts := config.DefaultLoadOptions()
	opts.AllowMissing = false
	cfg, err := config.LoadFileWithOptions(configFile, opts)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	Printer.Fprintf(out, "Configuration valid!\n")
	Printer.Fprintf(out, "Schema Version: %s\n", cfg.SchemaVersion)
	Printer.Fprintf(out, "Backend: %s\n", cfg.Backend)
	Printer.Fprintf(out, "Listen: %s\n", cfg.Listen)

	for _, w := range cfg.Validate().Warnings() {
		Printer.Fprintf(out, "Warning: %s\n", w.Error())
	}

	if verbose {
		Printer.Fprintln(out)
		return printSummary(out, cfg)
	}
	return nil
}

func printSummary(out io.Writer, cfg *config.Config) error {
	list := func(v []string) string {
		if len(v) == 0 {
			return "-"
		}
		return strings.Join(v, ", ")
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	Printer.Fprintf(w, "cert_dir\t%s\n", cfg.CertDir)
	Printer.Fprintf(w, "state_db\t%s\n", cfg.StateDB)
	Printer.Fprintf(w, "unmanaged_devices\t%s\n", list(cfg.UnmanagedDevices))
	Printer.Fprintf(w, "managed_software_devices\t%s\n", list(cfg.ManagedSoftwareDevices))
	Printer.Fprintf(w, "reserved_profiles\t%s\n", list(cfg.ReservedProfiles))
	Printer.Fprintf(w, "status_refresh\t%s\n", cfg.StatusRefreshInterval())
	Printer.Fprintf(w, "verify\t%d x %s\n", cfg.VerifyAttempts, cfg.VerifyIntervalDuration())
	Printer.Fprintf(w, "wifi\t%s (virtual %s, iw %s)\n", cfg.Wifi.Interface, cfg.Wifi.VirtualInterface, cfg.Wifi.IWPath)
	if cfg.Syslog != nil {
		Printer.Fprintf(w, "syslog\t%s\n", cfg.Syslog.Host)
	}
	return w.Flush()
}

// RunShowConfig prints the effective configuration.
func RunShowConfig(out io.Writer, configFile string, asJSON bool) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	if asJSON {
		data, err := config.EncodeJSON(cfg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	_, err = out.Write(config.EncodeHCL(cfg))
	return err
}

// RunInitConfig writes the built-in defaults to path.
func RunInitConfig(out io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := config.SaveFile(path, config.Default()); err != nil {
		return err
	}
	Printer.Fprintf(out, "wrote %s\n", path)
	return nil
}
