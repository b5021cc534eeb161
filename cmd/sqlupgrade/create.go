package main

import (
	"fmt"
	"io"

	"github.com/loykin/sqlupgrade"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create [version]",
	Short: "Create the next <version>.sql script (defaults to bumping the newest version)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := commandConfig()
		if err != nil {
			return err
		}
		ver := ""
		if len(args) > 0 {
			ver = args[0]
		}
		return runCreate(doc, ver, cmd.OutOrStdout())
	},
}

func runCreate(doc *ConfigDoc, ver string, out io.Writer) error {
	p, err := sqlupgrade.CreateScript(sqlupgrade.CreateOptions{Dir: doc.scriptDir(), Version: ver})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, p)
	return err
}
