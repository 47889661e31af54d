package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "commit-sim",
	Short: "Run a validator committee through the commit pipeline in memory",
	Long: `commit-sim wires a committee of fully assembled commit pipelines to an
in-memory network and drives ordered blocks through execution, collective
signing and persisting. It reports each committed prefix as the chain grows
and rolls the committee over at every epoch boundary.`,
	RunE: runSimulation,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.Int("nodes", 4, "number of committee members")
	flags.Int("batch-size", 3, "number of blocks per ordered batch")
	flags.Int("epochs", 2, "number of epochs to run")
	flags.Int("epoch-length", 12, "number of rounds per epoch")
	flags.Uint("metrics-port", 0, "port for the prometheus endpoint, 0 disables it")
	flags.String("loglevel", "info", "log level (trace, debug, info, warn, error)")

	cobra.OnInitialize(initConfig)
}

// initConfig binds all flags to viper, so every option can also be set via a
// SIM_ prefixed environment variable.
func initConfig() {
	viper.SetEnvPrefix("SIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	err := viper.BindPFlags(rootCmd.PersistentFlags())
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
