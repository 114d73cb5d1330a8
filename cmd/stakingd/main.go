// Command stakingd runs the token staking ledger service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"staking-ledger/internal/config"
)

var cmdMain = &cobra.Command{
	Use:          "stakingd",
	Short:        "Token staking ledger daemon",
	SilenceUsage: true,
}

var flagMain struct {
	ConfigFile string
	EnvFile    string
}

// v holds defaults, environment bindings and flag overrides.
var v = config.New()

func init() {
	cmdMain.PersistentFlags().StringVarP(&flagMain.ConfigFile, "config", "c", "", "Path to a YAML/TOML/JSON config file")
	cmdMain.PersistentFlags().StringVar(&flagMain.EnvFile, "env-file", ".env", "Optional dotenv file loaded before the environment is read")
	cmdMain.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmdMain.PersistentFlags().String("log-format", "json", "Log format (json, console)")
	check(v.BindPFlag("log.level", cmdMain.PersistentFlags().Lookup("log-level")))
	check(v.BindPFlag("log.format", cmdMain.PersistentFlags().Lookup("log-format")))

	cmdMain.AddCommand(cmdServe, cmdMigrate)
}

func main() {
	if err := cmdMain.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the env file and config file and validates the result.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	if err := loadEnvFile(flagMain.EnvFile); err != nil {
		return nil, err
	}
	return config.Load(v, flagMain.ConfigFile)
}

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
