package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/loykin/sqlupgrade/internal/util"
	"github.com/loykin/sqlupgrade/pkg/status"
	"github.com/spf13/cobra"
)

type statusOptions struct {
	History      bool
	HistoryAll   bool
	HistoryLimit int
	JSON         bool
	Serve        bool
	Addr         string
}

var statusOpts statusOptions

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the installed version, pending steps, and optionally run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := commandConfig()
		if err != nil {
			return err
		}
		if statusOpts.Serve {
			return serveStatus(cmd.Context(), doc, statusOpts)
		}
		return runStatus(doc, statusOpts, cmd.OutOrStdout())
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusOpts.History, "history", false, "show step run history as well")
	statusCmd.Flags().BoolVar(&statusOpts.HistoryAll, "history-all", false, "when used with --history, show all history entries (newest first)")
	statusCmd.Flags().IntVar(&statusOpts.HistoryLimit, "history-limit", 10, "when used with --history, show up to N latest entries")
	statusCmd.Flags().BoolVar(&statusOpts.JSON, "json", false, "print status as JSON")
	statusCmd.Flags().BoolVar(&statusOpts.Serve, "serve", false, "serve status over HTTP until interrupted")
	statusCmd.Flags().StringVar(&statusOpts.Addr, "addr", "", "listen address for --serve (default from config or 127.0.0.1:8089)")
}

func collectStatus(doc *ConfigDoc, limit int) (status.Info, error) {
	s, err := openSession(doc, true)
	if err != nil {
		return status.Info{}, err
	}
	defer s.Close()
	return s.up.Status(limit)
}

func runStatus(doc *ConfigDoc, opts statusOptions, out io.Writer) error {
	limit := opts.HistoryLimit
	if opts.HistoryAll {
		limit = 0
	}
	info, err := collectStatus(doc, limit)
	if err != nil {
		return err
	}
	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	_, err = fmt.Fprint(out, info.FormatHumanWithLimit(opts.History, opts.HistoryLimit, opts.HistoryAll))
	return err
}

func statusServerOptions(doc *ConfigDoc, limit int) status.ServerOptions {
	opts := status.ServerOptions{
		BasePath: doc.Status.BasePath,
		Provider: func(context.Context) (status.Info, error) {
			return collectStatus(doc, limit)
		},
	}
	if secret, ok := util.TrimEmptyCheck(doc.Status.JWTSecret); ok {
		opts.JWT = &status.VerifyConfig{
			Secret:          []byte(secret),
			AllowedIssuer:   doc.Status.JWTIssuer,
			AllowedAudience: doc.Status.JWTAudience,
		}
	}
	return opts
}

func serveStatus(ctx context.Context, doc *ConfigDoc, opts statusOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	addr := util.TrimWithDefault(opts.Addr, doc.Status.Addr)
	return status.Serve(signalContext(ctx), addr, status.NewHandler(statusServerOptions(doc, opts.HistoryLimit)))
}
