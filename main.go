package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "docsynth",
		Short:         "Foundational document synthesis service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", os.Getenv("DOCSYNTH_CONFIG"), "config file (.json, .yaml)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.dbType, "db", envOr("DOCSYNTH_DB", "sqlite3"), "database driver (sqlite3, mysql)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(synthesizeCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
