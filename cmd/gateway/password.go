package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"sheild-gateway/internal/auth"

	"github.com/spf13/cobra"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print a bcrypt hash for auth.users[].password_hash",
	Long: `hash-password reads a password from stdin and prints its bcrypt hash.

  echo -n 's3cret' | gateway hash-password`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return errors.New("no password on stdin")
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return errors.New("empty password")
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}
