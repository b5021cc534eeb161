package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/loykin/sqlupgrade/pkg/status"
	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the status API (uses status.jwt_secret)",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := commandConfig()
		if err != nil {
			return err
		}
		return runToken(doc, tokenSubject, tokenTTL, cmd.OutOrStdout())
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime (0 = no expiry)")
}

func runToken(doc *ConfigDoc, subject string, ttl time.Duration, out io.Writer) error {
	if doc.Status.JWTSecret == "" {
		return errors.New("status.jwt_secret is not configured")
	}
	tok, err := status.NewToken([]byte(doc.Status.JWTSecret), doc.Status.JWTIssuer, subject, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}
