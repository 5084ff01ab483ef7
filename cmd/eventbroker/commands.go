package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/eventbroker/internal/app"
	"github.com/dshills/eventbroker/internal/broker/manifest"
)

func newRootCmd() *cobra.Command {
	var opts app.Options

	cmd := &cobra.Command{
		Use:   "eventbroker",
		Short: "In-process event broker host",
		Long: "eventbroker hosts an in-process event broker. It runs the built-in\n" +
			"demonstration scenarios, validates declaration manifests and serves\n" +
			"until interrupted.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML or TOML configuration file")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVarP(&opts.ManifestPath, "manifest", "m", "", "path to a declaration manifest")

	cmd.AddCommand(newDemoCmd(&opts))
	cmd.AddCommand(newServeCmd(&opts))
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newDemoCmd(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "demo [scenario...]",
		Short: "Run the broker demonstration scenarios",
		Long:  "Run the demonstration scenarios A to E, or only the named ones, and report PASS or FAIL for each.",
		Example: "  eventbroker demo\n" +
			"  eventbroker demo C E",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			application, err := app.New(*opts)
			if err != nil {
				return err
			}
			defer func() {
				if serr := application.Shutdown(); err == nil {
					err = serr
				}
			}()
			return application.RunScenarios(cmd.Context(), cmd.OutOrStdout(), args...)
		},
	}
}

func newServeCmd(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the broker until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.New(*opts)
			if err != nil {
				return err
			}
			return application.Run(cmd.Context())
		},
	}
}

func newInspectCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "inspect <manifest>",
		Short: "Validate a declaration manifest and summarize it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			if output != "" {
				data, err := m.Marshal(manifest.Format(output))
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return writeSummary(cmd.OutOrStdout(), m)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "print the normalized manifest as yaml or toml")
	return cmd
}

func writeSummary(w io.Writer, m *manifest.Manifest) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tPUBLICATIONS\tSUBSCRIPTIONS")
	for _, ts := range m.Types {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", ts.Type, len(ts.Publications), len(ts.Subscriptions))
	}
	return tw.Flush()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "eventbroker %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", date)
		},
	}
}
