// Package cmd provides the CLI commands for gpass.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfigDir = ".gpass"

var version = "dev"

var (
	cfgFile    string
	jsonOutput bool
	verbose    bool
)

// rootCmd represents the base command.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gpass",
		Short: "GuardiaPass CLI - password generation and vault crypto tools",
		Long: `GuardiaPass CLI (gpass) generates strong passwords, rates them, and
works with the same key derivation and envelopes the server uses.

Get started:
  gpass generate               Generate a 16 character password
  gpass strength               Rate a password
  gpass key derive             Derive a vault key from a master password
  gpass encrypt                Seal a secret with a vault key

Examples:
  gpass generate -l 24 -n 3
  gpass generate --special=false --json
  echo -n 'hunter2' | gpass strength
  GPASS_KEY=... gpass decrypt 'AaBb...'`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.gpass/config.yaml)")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	viper.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(
		newGenerateCmd(),
		newStrengthCmd(),
		newValidateCmd(),
		newKeyCmd(),
		newEncryptCmd(),
		newDecryptCmd(),
		newReencryptCmd(),
		newMCPServerCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(getConfigDir())
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("GPASS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Load config file if it exists.
	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "failed to read config %s: %v\n", cfgFile, err)
	}
}

// getConfigDir returns the directory holding config.yaml and mcp-policy.yaml.
// Priority: GPASS_DIR env > ~/.gpass
func getConfigDir() string {
	if dir := os.Getenv("GPASS_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigDir
	}
	return filepath.Join(home, defaultConfigDir)
}

// isVerbose returns whether verbose mode is enabled.
func isVerbose() bool {
	if verbose {
		return true
	}
	return viper.GetBool("verbose")
}
