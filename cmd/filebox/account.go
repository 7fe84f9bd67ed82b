package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"filebox/internal/api"
	"filebox/internal/config"
)

var passwordInput io.Reader = os.Stdin

func readPassword(passwordStdin bool) (string, error) {
	if !passwordStdin {
		return "", fmt.Errorf("--password-stdin is required")
	}
	data, err := io.ReadAll(passwordInput)
	if err != nil {
		return "", err
	}
	password := strings.TrimRight(string(data), "\r\n")
	if password == "" {
		return "", fmt.Errorf("password is required on stdin")
	}
	return password, nil
}

func newRegisterCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		name          string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "register <email>",
		Short: "Create an account",
		Args:  requireExactlyArgs(1, "email is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(passwordStdin)
			if err != nil {
				return err
			}
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required")
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Register(cmd.Context(), api.RegisterRequest{
					Name:     name,
					Email:    args[0],
					Password: password,
				})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("registered %s (%s)\n", resp.User.Email, resp.User.ID)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (required)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read password from stdin")
	return cmd
}

func newLoginCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Log in and save a bearer token",
		Args:  requireExactlyArgs(1, "email is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(passwordStdin)
			if err != nil {
				return err
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Login(cmd.Context(), api.LoginRequest{Email: args[0], Password: password})
				if err != nil {
					return err
				}
				path, err := saveToken(resp.Token)
				if err != nil {
					return fmt.Errorf("save token: %w", err)
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"token_path": path, "expires_at": resp.ExpiresAt})
				}
				return writePlain("logged in; token saved to %s (expires %s)\n", path, formatTime(resp.ExpiresAt))
			})
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read password from stdin")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := removeToken()
			if err != nil {
				return err
			}
			if !removed {
				return writePlain("not logged in\n")
			}
			return writePlain("logged out\n")
		},
	}
}
