// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan DIR...",
		Short: "Register every recognized media file under the given directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.scanner().Scan(cmd.Context(), args...)
			if err != nil {
				return fatal(err)
			}
			fmt.Printf("Added %d, skipped %d, failed %d\n", res.Added, res.Skipped, res.Failed)
			if res.Failed > 0 {
				return recoverable(fmt.Errorf("%d file(s) failed to register", res.Failed))
			}
			return nil
		},
	}
}

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add FILE",
		Short: "Register a single media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.scanner().Add(cmd.Context(), args[0])
			if err != nil {
				return recoverable(err)
			}
			fmt.Println(id)
			return nil
		},
	}
}
