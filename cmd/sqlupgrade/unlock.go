package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Clear a SQLite upgrade lock left behind by a crashed run",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := commandConfig()
		if err != nil {
			return err
		}
		return runUnlock(cmd.Context(), doc, cmd.OutOrStdout())
	},
}

func runUnlock(ctx context.Context, doc *ConfigDoc, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(doc, true)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.up.ForceUnlock(ctx); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, "upgrade lock released")
	return err
}
