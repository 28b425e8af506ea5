package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gestalt-social/gestalt/internal/client"
	"github.com/gestalt-social/gestalt/internal/config"
)

var (
	cfgFile string         // Path to custom config file (optional)
	cfg     *config.Config // Global reference to loaded configuration
)

// rootCmd defines the main CLI command for the gestalt client
var rootCmd = &cobra.Command{
	Use:   "gestalt",
	Short: "Gestalt is a Nostr social client",
	Long:  `Gestalt talks to Nostr relays: publish notes, manage your follow graph, search, and message.`,
	Example: `
  gestalt publish "hello world #introductions"
  gestalt feed --limit 20
  gestalt follow npub1... --config /path/to/gestalt.yaml`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Version and keygen never need configuration
		if cmd.Name() == "version" || cmd.Name() == "keygen" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile, nil)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		flags := cmd.Flags()
		if flags.Changed("relay") {
			cfg.Relays.URLs, _ = flags.GetStringSlice("relay")
		}
		if flags.Changed("key") {
			cfg.Identity.SecretKey, _ = flags.GetString("key")
		}
		if flags.Changed("log-level") {
			cfg.Logging.Level, _ = flags.GetString("log-level")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			fmt.Fprintf(os.Stderr, "Error displaying help: %v\n", err)
		}
	},
}

// Execute runs the root command with the provided context
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withClient builds a client for one command invocation and tears it down
// after fn returns.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	c, err := client.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(cmd.Context(), c)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to custom config file (optional)")
	rootCmd.PersistentFlags().StringSlice("relay", nil, "Relay URL (repeatable, overrides configured relays)")
	rootCmd.PersistentFlags().String("key", "", "Secret key (hex or nsec, overrides configured identity)")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level (debug, info, warn, error)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the gestalt version",
		Run: func(cmd *cobra.Command, args []string) {
			if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
				fmt.Println(GetFullVersionInfo())
			} else {
				fmt.Println(GetVersionWithPrefix())
			}
		},
	}
	versionCmd.Flags().BoolP("detailed", "d", false, "Show detailed version information")
	rootCmd.AddCommand(versionCmd)
}
