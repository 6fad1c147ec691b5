package main

import (
	"fmt"
	"os"

	"github.com/md-rashed-zaman/clinicsched/libs/config"
	"github.com/spf13/cobra"
)

const defaultServiceName = "scheduling-service"

func newRootCommand() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "scheduling-service",
		Short:         "Clinic slot availability and booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.Load(cfgFile)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "optional config file; environment variables take precedence")

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newHealthcheckCommand(),
		newTokenCommand(),
	)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
