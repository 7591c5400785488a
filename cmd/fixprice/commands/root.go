// Package commands implements the CLI commands for fixprice.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/fixprice/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "fixprice",
	Short: "Command-line client for the Fix Price storefront API",
	Long: `fixprice queries the Fix Price storefront API from the command line.

Every command first warms up a headless Chrome session on the catalog page
to obtain the token the API expects, then prints the raw API payload as
JSON, JSONL or YAML.

Examples:
  # Category tree
  fixprice tree

  # Second page of a subcategory, 27 items
  fixprice products household kitchen --page 2 --limit 27

  # Stock of a product in Moscow stores that have it
  fixprice balance 123456 --city 3 --in-stock

  # Stores in a city, as YAML
  fixprice shops --city-id 3 --format yaml

  # Save a product image
  fixprice image https://img.fix-price.com/800x800/images/origin/origin/abc.jpg`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(logger.Options{
			Debug: viper.GetBool("debug"),
			Quiet: viper.GetBool("quiet"),
			JSON:  viper.GetBool("log_json"),
		})
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()

	// Global flags
	flags.String("config", "", "config file (default $HOME/.fixprice.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.BoolP("quiet", "q", false, "suppress progress output")
	flags.Bool("log-json", false, "log as JSON")

	// Session settings
	flags.String("proxy", "", "proxy for the browser and downloads (http://host:port, socks5://host:port)")
	flags.Bool("headless", true, "run Chrome headless (use --headless=false to watch it)")
	flags.Duration("timeout", 30*time.Second, "navigation and request timeout")
	flags.String("transport", "browser", "transport after warm-up: browser, http")
	flags.String("chrome-path", "", "Chrome binary (looked up when empty)")
	flags.Int("retries", 3, "attempts per call when the API rejects it")
	flags.Int("rate-limit", 0, "max API calls per minute (0=unlimited)")

	// Session state
	flags.Int("city", 0, "city id sent with every call (0=adopt from the API)")
	flags.String("language", "", "language tag sent with every call, e.g. ru or en-US")

	// Output settings
	flags.String("format", "json", "output format: json, jsonl, yaml")
	flags.StringP("output", "o", "", "output file (default: stdout)")

	for key, flag := range map[string]string{
		"config":      "config",
		"debug":       "debug",
		"quiet":       "quiet",
		"log_json":    "log-json",
		"proxy":       "proxy",
		"headless":    "headless",
		"timeout":     "timeout",
		"transport":   "transport",
		"chrome_path": "chrome-path",
		"retries":     "retries",
		"rate_limit":  "rate-limit",
		"city":        "city",
		"language":    "language",
		"format":      "format",
		"output":      "output",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".fixprice")
		viper.SetConfigType("yaml")
	}

	// Environment variables
	viper.SetEnvPrefix("FIXPRICE")
	viper.AutomaticEnv()

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logError("%v", err)
	}
	return err
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
