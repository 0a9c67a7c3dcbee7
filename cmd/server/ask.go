package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ragdoll/internal/bootstrap"
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Index one PDF and answer a single question without starting the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		query, _ := cmd.Flags().GetString("query")
		if file == "" || query == "" {
			return errors.New("both --file and --query are required")
		}

		ctx := cmd.Context()
		app, err := bootstrap.New(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		uploaded, err := app.Service.Preload(ctx, file)
		if err != nil {
			return fmt.Errorf("index %s: %w", file, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "indexed %s (%d segments)\n", uploaded.Filename, uploaded.SegmentCount)

		result, err := app.Service.Query(ctx, query)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Response)
		return nil
	},
}

func init() {
	askCmd.Flags().StringP("file", "f", "", "PDF file to index")
	askCmd.Flags().StringP("query", "q", "", "question to ask about the document")
}
