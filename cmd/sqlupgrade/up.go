package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/loykin/sqlupgrade"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type upOptions struct {
	DryRun bool
	NoLock bool
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending upgrade step in version order",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := commandConfig()
		if err != nil {
			return err
		}
		v := viper.GetViper()
		opts := upOptions{DryRun: v.GetBool("dry_run"), NoLock: v.GetBool("no_lock")}
		return runUp(cmd.Context(), doc, opts, cmd.OutOrStdout())
	},
}

func runUp(ctx context.Context, doc *ConfigDoc, opts upOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(doc, true)
	if err != nil {
		return err
	}
	defer s.Close()
	s.up.DryRun = opts.DryRun
	if opts.NoLock {
		s.up.Lock = false
	}
	if opts.DryRun {
		s.up.Hooks.BeforeStatement = func(_ context.Context, step sqlupgrade.Step, st sqlupgrade.Statement) {
			_, _ = fmt.Fprintf(out, "-- %s #%d (line %d)\n%s;\n", step.Version, st.Index, st.Line, st.SQL)
		}
	}

	res, err := s.up.Up(ctx)
	if res != nil {
		for _, a := range res.Applied {
			_, _ = fmt.Fprintf(out, "applied %s (%d statements, %s)\n", a.Version, a.Statements, a.Duration.Round(time.Millisecond))
		}
	}
	if err != nil {
		if se, ok := sqlupgrade.AsStepError(err); ok && res != nil {
			_, _ = fmt.Fprintf(out, "upgrade to %s failed; installed version remains %s\n", se.Version, displayVersion(res.FinalVersion))
		}
		return err
	}
	switch {
	case res.NoOp():
		_, _ = fmt.Fprintf(out, "already up to date at %s\n", displayVersion(res.FinalVersion))
	case res.DryRun:
		_, _ = fmt.Fprintf(out, "dry run: %d step(s) would be applied\n", len(res.Applied))
	default:
		_, _ = fmt.Fprintf(out, "upgraded to %s\n", res.FinalVersion)
	}
	return nil
}

func displayVersion(v sqlupgrade.Version) string {
	if v.IsZero() {
		return "(none)"
	}
	return v.String()
}
