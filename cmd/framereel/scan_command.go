package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"framereel/internal/api"
	"framereel/internal/sequence"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <dir>",
		Short: "Detect image sequences in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			result, err := sequence.Scan(dir, cfg.Scan.Extensions)
			if err != nil {
				return err
			}
			resp := api.FromScan(dir, result, cfg.Preconvert.Extensions)
			if ctx.JSONMode() {
				return writeJSON(cmd, resp)
			}
			printScan(cmd, resp)
			return nil
		},
	}
}

func printScan(cmd *cobra.Command, resp api.ScanResponse) {
	out := cmd.OutOrStdout()
	if len(resp.Sequences) == 0 {
		fmt.Fprintf(out, "No image sequences found in %s\n", resp.Path)
		return
	}
	rows := make([][]string, 0, len(resp.Sequences))
	for _, seq := range resp.Sequences {
		rows = append(rows, []string{
			seq.Pattern,
			seq.Range,
			strconv.Itoa(seq.Count),
			formatHoles(seq.Holes),
			yesNo(seq.Preconvert),
		})
	}
	fmt.Fprintf(out, "Sequences in %s\n", resp.Path)
	fmt.Fprint(out, renderTable(
		[]string{"Pattern", "Range", "Frames", "Missing", "Preconvert"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
	if n := len(resp.Remainder); n > 0 {
		fmt.Fprintf(out, "%d other image file(s) not part of a sequence\n", n)
	}
}

func formatHoles(holes []int) string {
	const shown = 5
	if len(holes) == 0 {
		return "-"
	}
	parts := make([]string, 0, shown)
	for i, h := range holes {
		if i == shown {
			parts = append(parts, fmt.Sprintf("+%d more", len(holes)-shown))
			break
		}
		parts = append(parts, strconv.Itoa(h))
	}
	return strings.Join(parts, ", ")
}
