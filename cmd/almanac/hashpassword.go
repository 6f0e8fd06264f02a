package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"almanac/internal/auth"
)

// stdin is shared so piped input is not lost between prompts.
var stdin = bufio.NewReader(os.Stdin)

func hashPasswordCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash an admin password (Argon2id) for basic_auth.password_hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if username == "" {
				fmt.Fprint(out, "Enter username: ")
				line, err := stdin.ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read username: %w", err)
				}
				username = strings.TrimSpace(line)
			}
			if username == "" {
				return errors.New("username cannot be empty")
			}

			password, err := readPassword(out, "Enter password:   ")
			if err != nil {
				return err
			}
			confirm, err := readPassword(out, "Confirm password: ")
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("password cannot be empty")
			}
			if password != confirm {
				return errors.New("passwords do not match")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Add to your config file:")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "basic_auth:")
			fmt.Fprintf(out, "  username: %s\n", username)
			fmt.Fprintf(out, "  password_hash: '%s'\n", hash)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "or set ALMANAC_AUTH_USERNAME and ALMANAC_AUTH_PASSWORD_HASH.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "admin username (prompted if empty)")
	return cmd
}

// readPassword reads a line without echo when stdin is a terminal.
func readPassword(out interface{ Write([]byte) (int, error) }, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
