package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	appVersion = "dev"
	appCommit  = "none"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit string) {
	appVersion = version
	appCommit = commit
}

var rootCmd = &cobra.Command{
	Use:   "rulesctl",
	Short: "Control client for the rules daemon",
	Long: `rulesctl drives the best-practices rules daemon: submit update jobs,
inspect queues and triggers, review trend scores, and manage the
versioned rule artifacts it deploys.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rulesctl %s\ncommit: %s\n", appVersion, appCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8085", "rules daemon base URL")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.SetEnvPrefix("RULESCTL")
	viper.AutomaticEnv()

	viper.SetConfigName(".rulesctl")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("warning: reading .rulesctl config: %v\n", err)
		}
	}

	rootCmd.AddCommand(versionCmd)
}

func serverURL() string {
	return viper.GetString("server")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
