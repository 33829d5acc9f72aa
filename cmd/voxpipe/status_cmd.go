// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/skeidel/voxpipe/internal/model"
	"github.com/skeidel/voxpipe/internal/store"
)

func newStatusCmd() *cobra.Command {
	var (
		detailed bool
		format   string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print aggregate pipeline counts per stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			summary, err := a.store.SummaryStatistics(ctx)
			if err != nil {
				return fatal(fmt.Errorf("summary: %w", err))
			}

			switch format {
			case "json":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(summary); err != nil {
					return err
				}
			case "markdown":
				printSummaryMarkdown(summary)
			case "text":
				printSummaryText(summary)
			default:
				return fatal(fmt.Errorf("unknown format %q (want text, json or markdown)", format))
			}

			if detailed {
				return a.printDetailed(cmd)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&detailed, "detailed", false, "list every tracked file")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or markdown")
	return cmd
}

func printSummaryText(s *store.Summary) {
	fmt.Printf("Files: %d (%s)\n", s.TotalFiles, humanize.Bytes(uint64(s.TotalBytes))) // #nosec G115 -- sizes are non-negative
	fmt.Printf("Errors logged: %d\n\n", s.ErrorCount)

	fmt.Println("Overall:       " + formatCounts(s.Overall))
	fmt.Println("Transcription: " + formatCounts(s.Transcription))
	for _, lang := range sortedKeys(s.Translation) {
		fmt.Printf("Translation %s: %s\n", lang, formatCounts(s.Translation[lang]))
	}
}

func printSummaryMarkdown(s *store.Summary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Stage", "Pending", "In Progress", "Completed", "Failed"})
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")

	row := func(stage string, counts map[string]int, pendingKey string) {
		table.Append([]string{
			stage,
			fmt.Sprint(counts[pendingKey]),
			fmt.Sprint(counts["in_progress"]),
			fmt.Sprint(counts["completed"]),
			fmt.Sprint(counts["failed"]),
		})
	}
	row("overall", s.Overall, "pending")
	row("transcription", s.Transcription, "not_started")
	for _, lang := range sortedKeys(s.Translation) {
		row("translation_"+lang, s.Translation[lang], "not_started")
	}
	table.Render()
}

func (a *app) printDetailed(cmd *cobra.Command) error {
	ctx := cmd.Context()
	all := []model.OverallStatus{
		model.OverallPending, model.OverallInProgress, model.OverallCompleted, model.OverallFailed,
	}
	files, err := a.store.ListByStatus(ctx, all, 10000)
	if err != nil {
		return fatal(fmt.Errorf("list files: %w", err))
	}

	header := []string{"File", "Type", "Size", "Overall", "Transcription"}
	langs := a.store.Targets()
	for _, lang := range langs {
		header = append(header, strings.ToUpper(lang))
	}
	header = append(header, "Added")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	for _, m := range files {
		st, serr := a.store.GetStatus(ctx, m.FileID)
		if serr != nil {
			return fatal(serr)
		}
		row := []string{
			m.SafeFilename,
			string(m.MediaType),
			humanize.Bytes(uint64(m.FileSize)), // #nosec G115 -- sizes are non-negative
			string(st.Overall),
			string(st.Transcription),
		}
		for _, lang := range langs {
			row = append(row, string(st.Translation[lang]))
		}
		row = append(row, humanize.Time(m.CreatedAt))
		table.Append(row)
	}
	table.Render()
	return nil
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(counts))
	for _, k := range sortedKeys(counts) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
