package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// requireAtLeastArgs and requireExactlyArgs reject missing or blank
// positional arguments and append the command's usage line to the error.
func requireAtLeastArgs(min int, message string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < min {
			return usageError(cmd, message)
		}
		return rejectBlankArgs(cmd, args)
	}
}

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != count {
			return usageError(cmd, message)
		}
		return rejectBlankArgs(cmd, args)
	}
}

func rejectBlankArgs(cmd *cobra.Command, args []string) error {
	for i, arg := range args {
		if strings.TrimSpace(arg) == "" {
			return usageError(cmd, fmt.Sprintf("argument %d is empty", i+1))
		}
	}
	return nil
}

func usageError(cmd *cobra.Command, message string) error {
	return fmt.Errorf("%s\nusage: %s", message, cmd.UseLine())
}
