// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eklim/faultlink/pkg/auth"
)

var hashpwCmd = &cobra.Command{
	Use:   "hashpw",
	Short: "Hash an operator password for the configuration file",
	Long: `Read a password without echo and print its bcrypt hash, ready for the
password-hash key of the [auth] section.`,
	Args: cobra.NoArgs,
	RunE: runHashpw,
}

func init() {
	rootCmd.AddCommand(hashpwCmd)
}

func runHashpw(cmd *cobra.Command, args []string) error {
	password, err := readSecret("Password: ")
	if err != nil {
		return err
	}
	confirm, err := readSecret("Confirm: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}
	if password == "" {
		return fmt.Errorf("empty password")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Printf("password-hash = %q\n", hash)
	return nil
}
