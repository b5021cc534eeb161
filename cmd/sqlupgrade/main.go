package main

import (
	"os"

	"github.com/loykin/sqlupgrade"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfigPath = "./sqlupgrade.yaml"

var rootCmd = &cobra.Command{
	Use:           "sqlupgrade",
	Short:         "Apply versioned SQL upgrade scripts and track the installed schema version",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return upCmd.RunE(cmd, args)
	},
}

// commandConfig loads the config named by --config / SQLUPGRADE_CONFIG and
// applies its logging section.
func commandConfig() (*ConfigDoc, error) {
	v := viper.GetViper()
	path := v.GetString("config")
	doc, err := loadConfig(path, path == defaultConfigPath)
	if err != nil {
		return nil, err
	}
	if err := doc.SetupLogging(); err != nil {
		return nil, err
	}
	if t := v.GetString("to"); t != "" {
		doc.Target = t
	}
	return doc, nil
}

func init() {
	// Defaults
	v := viper.GetViper()
	v.SetDefault("config", defaultConfigPath)
	v.SetDefault("to", "")
	v.SetDefault("dry_run", false)
	v.SetDefault("no_lock", false)

	// Environment variables support: SQLUPGRADE_CONFIG, SQLUPGRADE_TO, ...
	v.SetEnvPrefix("SQLUPGRADE")
	v.AutomaticEnv()

	rootCmd.PersistentFlags().String("config", v.GetString("config"), "path to the config yaml")
	upCmd.Flags().String("to", v.GetString("to"), "highest version to apply (empty = all)")
	upCmd.Flags().Bool("dry-run", v.GetBool("dry_run"), "split and log statements without executing or recording them")
	upCmd.Flags().Bool("no-lock", v.GetBool("no_lock"), "do not take the upgrade lock")

	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("to", upCmd.Flags().Lookup("to"))
	_ = v.BindPFlag("dry_run", upCmd.Flags().Lookup("dry-run"))
	_ = v.BindPFlag("no_lock", upCmd.Flags().Lookup("no-lock"))

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(setVersionCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		sqlupgrade.GetLogger().Error("command failed", "error", err)
		os.Exit(1)
	}
}
