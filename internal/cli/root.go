package cli

import (
	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// SetVersion is called from main to inject build-time version info.
func SetVersion(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
}

var rootCmd = &cobra.Command{
	Use:   "smsverify",
	Short: "smsverify - SMS phone verification service",
	Long: `smsverify issues one-time SMS verification codes and validates them.
Codes are delivered through Eskiz.uz with optional Twilio failover.

Get started (dev mode, codes printed to the console):
  smsverify serve

With a real gateway:
  smsverify config set sms.gateways eskiz
  smsverify config set sms.eskiz.email you@example.com
  smsverify config set sms.eskiz.password secret
  smsverify serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
