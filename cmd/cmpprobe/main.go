// cmpprobe reports the consent state CMPs expose on web pages.
//
// Usage:
//
//	cmpprobe probe --url=<url> [--regime=tcfv2 --regime=usp] [--timeout=5s] [-o json|yaml]
//	cmpprobe serve [--config=<file.yaml>]
//	cmpprobe regimes [-o json|yaml]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cmpbridge/internal/platform/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
}

var rootCmd = &cobra.Command{
	Use:   "cmpprobe",
	Short: "Read consent state from CMPs on web pages",
	Long:  "cmpprobe loads pages in Chrome and asks their consent management platforms\nfor GDPR (TCF v1), TCF v2 and CCPA consent, the way an ad script would.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.configPath, "config", "", "YAML config file overriding environment settings")
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(regimesCmd)
	rootCmd.Version = version
}

// loadConfig merges defaults, CMPBRIDGE_* variables and the --config file.
func loadConfig() (config.Server, error) {
	cfg := config.FromEnv()
	if rootFlags.configPath != "" {
		var err error
		if cfg, err = config.Load(rootFlags.configPath, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
