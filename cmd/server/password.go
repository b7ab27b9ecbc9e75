package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
	Long: `Reads a password from stdin and prints the bcrypt hash to put in
ADMIN_PASSWORD_HASH.`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		fmt.Fprint(c.ErrOrStderr(), "Password: ")
		line, err := bufio.NewReader(c.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}

		password := strings.TrimRight(line, "\r\n")
		if len(password) < 8 {
			return fmt.Errorf("password must be at least 8 characters")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.OutOrStdout(), string(hash))
		return nil
	},
}
