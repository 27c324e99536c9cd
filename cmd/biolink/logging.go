package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/biolink/pkg/config"
)

// configureLogger builds the command's logger from flags. --log-level
// takes precedence over --verbose; without either the logger is
// effectively silent.
func configureLogger(cmd *cobra.Command, verboseFlagName string) (*logrus.Logger, error) {
	level := "panic"
	if s, _ := cmd.Flags().GetString("log-level"); s != "" {
		level = s
	} else if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
		level = "debug"
	}

	cfg := config.DefaultConfig()
	cfg.LogLevel = level
	return cfg.NewLogger()
}
