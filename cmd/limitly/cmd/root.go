// Package cmd provides the CLI commands for limitly.
package cmd

import (
	"fmt"
	"os"

	"github.com/emmanueltaiwo/limitly/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	v       *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:   "limitly",
	Short: "limitly - distributed rate limiting on Redis",
	Long: `limitly decides whether a request may proceed using a token bucket, leaky
bucket, fixed window or sliding window kept in Redis.

Configuration:
  Config is loaded from --config or ./limitly.yaml.

  Environment variables override config values with the LIMITLY_ prefix.
  Example: LIMITLY_REDIS_URL=redis://cache:6379
  PORT, REDIS_URL, REGISTRY_REDIS_URL and NODE_ENV are honoured as well.

Commands:
  serve       Start the HTTP service
  check       Run one rate limit check and print the result
  version     Print version information`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		v = config.NewViper(cfgFile)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./limitly.yaml)")
}
