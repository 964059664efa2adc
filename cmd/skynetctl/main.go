// Command skynetctl is the gateway's entry point: it starts the WebSocket
// and HTTP front door by default, and offers version/update subcommands
// alongside it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skynet-run/skynet/internal/config"
	"github.com/skynet-run/skynet/pkg/protocol"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0".
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "skynetctl",
	Short: "skynet — a personal AI agent gateway",
	Long:  "skynetctl runs the skynet gateway: a WebSocket/HTTP front door over an agentic pipeline with tool execution, scheduled jobs, and channel adapters.",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.toml or $SKYNET_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(updateCmd())
	rootCmd.AddCommand(mcpBridgeCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version, commit, install mode, protocol, and data dir",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			dataDir := "unknown"
			if err == nil {
				dataDir = config.ExpandHome(cfg.Gateway.DataDir)
			}
			fmt.Printf("skynetctl %s\n", Version)
			fmt.Printf("commit:       %s\n", commitHash())
			fmt.Printf("install mode: %s\n", buildInstallMode())
			fmt.Printf("protocol:     %d\n", protocol.ProtocolVersion)
			fmt.Printf("data dir:     %s\n", dataDir)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("SKYNET_CONFIG"); v != "" {
		return v
	}
	return "config.toml"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
