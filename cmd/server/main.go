package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ragdoll",
	Short: "Question answering over a single uploaded PDF",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			return os.Setenv("CONFIG_FILE", cfgFile)
		}
		return nil
	},
	// without a subcommand the HTTP server runs
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is configs/config.toml or $CONFIG_FILE)")
	rootCmd.AddCommand(serveCmd, askCmd)
}

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
