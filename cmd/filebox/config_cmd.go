package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"filebox/internal/config"
)

const tokenSecretKey = "auth.token_secret"

func newConfigCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration",
	}

	cmd.AddCommand(newConfigGetCmd(cfg, jsonOutput))
	cmd.AddCommand(newConfigSetCmd(jsonOutput))
	return cmd
}

func newConfigGetCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print one config value, or every key when none is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := config.AllowedKeys()
			if len(args) == 1 {
				if !config.IsAllowedKey(args[0]) {
					return fmt.Errorf("unknown key: %s (allowed: %v)", args[0], keys)
				}
				keys = args[:1]
			}

			values, err := configValues(cfg, keys)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(values)
			}
			if len(args) == 1 {
				return writePlain("%s\n", values[args[0]])
			}
			for _, key := range keys {
				if err := writePlain("%s = %s\n", key, values[key]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func configValues(cfg *config.Config, keys []string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		value, err := cfg.Get(key)
		if err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, nil
}

func newConfigSetCmd(jsonOutput *bool) *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Args:  requireExactlyArgs(2, "key and value are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if !config.IsAllowedKey(key) {
				return fmt.Errorf("unknown key: %s (allowed: %v)", key, config.AllowedKeys())
			}
			// Project files live next to the working tree and are easy to commit.
			if key == tokenSecretKey && !global {
				return fmt.Errorf("%s can only be stored in the global config; rerun with --global", tokenSecretKey)
			}

			path, err := configPath(global)
			if err != nil {
				return err
			}
			if err := config.SetKey(path, key, value); err != nil {
				return err
			}

			if key == tokenSecretKey {
				value = "(redacted)"
			}
			if *jsonOutput {
				return writeJSON(map[string]string{"key": key, "value": value, "path": path})
			}
			return writePlain("set %s = %s in %s\n", key, value, path)
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "write to global config (~/.filebox.toml)")
	return cmd
}

func configPath(global bool) (string, error) {
	if global {
		return config.GlobalPath()
	}
	return config.ProjectPath()
}
