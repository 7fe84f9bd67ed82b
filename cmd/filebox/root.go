package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"filebox/internal/config"
	"filebox/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		output     string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "filebox",
		Short:         "Filebox stores, lists and serves per-user files in chunks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			if output != "" {
				formatter, err := format.New(output)
				if err != nil {
					return err
				}
				outputFormatter = formatter
				jsonOutput = true
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&output, "output", "", "structured output format (json, yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newRegisterCmd(cfg, &jsonOutput),
		newLoginCmd(cfg, &jsonOutput),
		newLogoutCmd(),
		newUploadCmd(cfg, &jsonOutput),
		newListCmd(cfg, &jsonOutput),
		newGetCmd(cfg, &jsonOutput),
		newAdminCmd(cfg, &jsonOutput),
		newMigrateCmd(cfg, &jsonOutput),
		newConfigCmd(cfg, &jsonOutput),
	)

	return cmd
}
