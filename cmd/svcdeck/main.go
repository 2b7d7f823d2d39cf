package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and all subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	c := newCommand(globalFlags)

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(c),
		createActionCommand(c, "start", "Start a service"),
		createActionCommand(c, "stop", "Stop a service"),
		createActionCommand(c, "restart", "Restart a service"),
		createHostCommand(c),
		createValidateCommand(c, globalFlags),
		createTokenCommand(c),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "svcdeck",
		Short: "Status and control for system units and port-bound processes",
		Long: `svcdeck reports and controls a fixed set of services: units owned by the
system unit manager and raw processes identified by the TCP port they listen on.

Examples:
  svcdeck serve svcdeck.toml                      # Start the API server
  svcdeck status --config=svcdeck.toml            # Probe locally
  svcdeck status --api-url=http://host:8795/api   # Ask a running server
  svcdeck restart worker --api-url=http://host:8795/api --token=$TOKEN`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", os.Getenv("SVCDECK_CONFIG"), "path to TOML config file")
	return root
}

func addRemoteFlags(cmd *cobra.Command, f *RemoteFlags, timeout time.Duration) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "server URL (e.g. http://host:8795/api); probes locally when empty")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", timeout, "request timeout")
	cmd.Flags().StringVar(&f.CACert, "ca-cert", "", "CA certificate for https servers")
	cmd.Flags().BoolVar(&f.Insecure, "insecure", false, "skip TLS verification")
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the svcdeck API server",
		Long: `Start the HTTP API (and the metrics listener when enabled).
All configuration is loaded from the TOML file.

Examples:
  svcdeck serve                     # uses --config
  svcdeck serve svcdeck.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configArg(globalFlags.ConfigPath, args)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), path)
		},
	}
}

// createStatusCommand creates the status subcommand
func createStatusCommand(c *command) *cobra.Command {
	f := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service status",
		Long: `Show the status of every configured service, or of one with --name.

Examples:
  svcdeck status --config=svcdeck.toml
  svcdeck status --name=web --api-url=http://remote:8795/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "service name (optional)")
	addRemoteFlags(cmd, &f.RemoteFlags, 30*time.Second)
	return cmd
}

// createActionCommand creates start, stop and restart.
func createActionCommand(c *command, action, short string) *cobra.Command {
	f := &ActionFlags{Action: action}
	cmd := &cobra.Command{
		Use:   action + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			return c.Action(cmd.Context(), *f)
		},
	}
	addRemoteFlags(cmd, &f.RemoteFlags, 60*time.Second)
	cmd.Flags().StringVar(&f.Token, "token", os.Getenv("SVCDECK_TOKEN"), "bearer token for the server (see 'svcdeck token')")
	return cmd
}

// createHostCommand creates the host subcommand
func createHostCommand(c *command) *cobra.Command {
	f := &HostFlags{}
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Show host memory and disk usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Host(cmd.Context(), *f)
		},
	}
	addRemoteFlags(cmd, &f.RemoteFlags, 10*time.Second)
	return cmd
}

// createValidateCommand creates the validate subcommand
func createValidateCommand(c *command, globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [config.toml]",
		Short: "Check a config file without starting anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configArg(globalFlags.ConfigPath, args)
			if err != nil {
				return err
			}
			return c.Validate(path)
		},
	}
}

// createTokenCommand creates the token subcommand
func createTokenCommand(c *command) *cobra.Command {
	f := &TokenFlags{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for control actions",
		Long: `Mint an HS256 token signed with server.auth.jwt_secret (or --secret).

Examples:
  svcdeck token --config=svcdeck.toml --subject=ops
  svcdeck token --secret=s3cret --subject=ci --ttl=15m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Token(*f)
		},
	}
	cmd.Flags().StringVar(&f.Subject, "subject", "", "token subject (required)")
	cmd.Flags().StringVar(&f.Role, "role", "", "role claim (default server.auth.admin_role)")
	cmd.Flags().DurationVar(&f.TTL, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&f.Secret, "secret", "", "signing secret; overrides the config")
	if err := cmd.MarkFlagRequired("subject"); err != nil {
		panic(err)
	}
	return cmd
}
