package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/vernacular/internal/preview"
	"github.com/user/vernacular/internal/terminal"
)

var previewRows int

func init() {
	previewCmd.Flags().IntVarP(&previewRows, "rows", "n", 0, "rows to show (default from analysis.preview_rows)")
	rootCmd.AddCommand(previewCmd)
}

var previewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "Show the first rows of a CSV file as the session would load it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows := previewRows
		if rows <= 0 {
			rows = loadConfig().Analysis.PreviewRows
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		tbl, err := preview.New(rows, nil).Parse(string(data))
		if err != nil {
			return fmt.Errorf("%s: %w", preview.Unparseable, err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprint(out, terminal.RenderPreview(terminal.NewStyles(out), tbl))
		return nil
	},
}
