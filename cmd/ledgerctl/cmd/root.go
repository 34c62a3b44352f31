package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sharedledger.org/internal/app"
	"sharedledger.org/internal/config"
	"sharedledger.org/internal/credential"
	"sharedledger.org/internal/obs"
)

// Set with -ldflags "-X sharedledger.org/cmd/ledgerctl/cmd.version=...".
var (
	version string
	commit  string
)

var (
	configPath string
	apiURL     string

	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Shared ledger CLI - session-aware client for the shared expense API",
	Long: `ledgerctl talks to a shared-expense backend. It keeps the session between
runs, resolves who you are, and opens group routes the way the web client does.`,
	SilenceUsage: true,
	Version:      obs.ReadBuild("ledgerctl", version, commit).String(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := config.New(configPath)
		if apiURL != "" {
			v.Set("api_url", apiURL)
		}
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		obs.Configure(cfg.LogLevel)
		if cfg.CredentialsFile == "" {
			path, err := credential.DefaultPath()
			if err != nil {
				return err
			}
			cfg.CredentialsFile = path
		}
		a, err := app.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialise client: %w", err)
		}
		application = a
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ./sharedledger.yaml or ~/.sharedledger/sharedledger.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend base URL (also SHAREDLEDGER_API_URL)")
	rootCmd.AddCommand(whoamiCmd, loginCmd, logoutCmd, openCmd, groupsCmd)
}
