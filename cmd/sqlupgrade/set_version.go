package main

import (
	"fmt"
	"io"

	"github.com/loykin/sqlupgrade"
	"github.com/spf13/cobra"
)

var setVersionCmd = &cobra.Command{
	Use:   "set-version <version>",
	Short: "Record <version> as installed without running any script (after a manual fix)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := commandConfig()
		if err != nil {
			return err
		}
		return runSetVersion(doc, args[0], cmd.OutOrStdout())
	},
}

func runSetVersion(doc *ConfigDoc, raw string, out io.Writer) error {
	v, err := sqlupgrade.ParseVersion(raw)
	if err != nil {
		return err
	}
	s, err := openSession(doc, true)
	if err != nil {
		return err
	}
	defer s.Close()
	if _, known := s.up.Registry.Lookup(v); !known {
		sqlupgrade.GetLogger().WithComponent("cli").Warn("version is not in the registry", "version", v.String())
	}
	if err := s.up.SetVersion(v); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "installed version set to %s\n", v)
	return err
}
