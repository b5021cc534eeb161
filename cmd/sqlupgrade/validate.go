package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the registry and split every script without touching a database",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := commandConfig()
		if err != nil {
			return err
		}
		return runValidate(doc, cmd.OutOrStdout())
	},
}

func runValidate(doc *ConfigDoc, out io.Writer) error {
	s, err := openSession(doc, false)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	defer s.Close()

	_, _ = fmt.Fprintf(out, "Validating %d step(s) in: %s\n", s.up.Registry.Len(), doc.scriptDir())
	reports, err := s.up.Validate()
	for _, r := range reports {
		_, _ = fmt.Fprintf(out, "  %-12s %-24s %d statement(s)\n", r.Version, r.Script, r.Statements)
	}
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	_, _ = fmt.Fprintln(out, "All scripts are valid!")
	return nil
}
