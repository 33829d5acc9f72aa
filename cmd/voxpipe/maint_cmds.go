// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skeidel/voxpipe/internal/audit"
	"github.com/skeidel/voxpipe/internal/model"
	"github.com/skeidel/voxpipe/internal/pipeline"
	"github.com/skeidel/voxpipe/internal/sanitize"
)

// doctorProblem forces the repeated-failure treatment path for one file.
func doctorProblem(id string) pipeline.Problem {
	return pipeline.Problem{
		FileID: id,
		Stage:  model.StageTranscription,
		Kind:   pipeline.ProblemFailedRepeatedly,
		Detail: "operator request",
	}
}

func newRetryCmd() *cobra.Command {
	var (
		fileIDs           string
		timeoutMultiplier float64
		maxRetries        int
	)
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Diagnose and treat problem files, then drain the backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if timeoutMultiplier > 0 {
				a.cfg.ItemTimeoutMinutes = int(float64(a.cfg.ItemTimeoutMinutes) * timeoutMultiplier)
			}
			if maxRetries > 0 {
				a.cfg.APIRetries = maxRetries
			}

			doctor := a.doctor()
			problems, err := doctor.Identify(ctx)
			if err != nil {
				return fatal(fmt.Errorf("identify: %w", err))
			}
			wanted := idSet(fileIDs)

			treated, treatFailed := 0, 0
			for _, p := range problems {
				if wanted != nil && !wanted[p.FileID] {
					continue
				}
				fmt.Printf("%s %s: %s (%s)\n", p.FileID, p.Stage, p.Kind, p.Detail)
				if terr := doctor.Treat(ctx, p); terr != nil {
					treatFailed++
					fmt.Printf("  treatment failed: %v\n", terr)
					continue
				}
				treated++
			}
			fmt.Printf("Treated %d problem(s), %d failed\n", treated, treatFailed)

			orch := a.orchestrator(ctx)
			orch.Once = true
			if err := orch.Run(ctx); err != nil {
				return recoverable(err)
			}
			if treatFailed > 0 {
				return recoverable(fmt.Errorf("%d treatment(s) failed", treatFailed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fileIDs, "file-ids", "", "comma-separated file ids to restrict to")
	cmd.Flags().Float64Var(&timeoutMultiplier, "timeout-multiplier", 0, "scale the per-item timeout")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "override provider retry attempts")
	return cmd
}

func newSpecialCmd() *cobra.Command {
	var fileIDs string
	cmd := &cobra.Command{
		Use:   "special",
		Short: "Force the problem-file treatment for specific files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fileIDs == "" {
				return fatal(fmt.Errorf("--file-ids is required"))
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			doctor := a.doctor()
			failed := 0
			for id := range idSet(fileIDs) {
				if _, gerr := a.store.GetMedia(ctx, id); gerr != nil {
					failed++
					fmt.Printf("%s: %v\n", id, gerr)
					continue
				}
				p := doctorProblem(id)
				if terr := doctor.Treat(ctx, p); terr != nil {
					failed++
					fmt.Printf("%s: treatment failed: %v\n", id, terr)
					continue
				}
				fmt.Printf("%s: treated\n", id)
			}
			if failed > 0 {
				return recoverable(fmt.Errorf("%d file(s) failed", failed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fileIDs, "file-ids", "", "comma-separated file ids")
	return cmd
}

func newFixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Idempotent maintenance fixes",
	}
	cmd.AddCommand(newFixStalledCmd(), newFixPathsCmd(), newFixTranscriptsCmd(), newFixMarkCmd(), newFixHebrewCmd())
	return cmd
}

func newFixStalledCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stalled",
		Short: "Reset stages stuck in_progress past the stall threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			reset, err := a.sweeper().Sweep(cmd.Context())
			if err != nil {
				return fatal(err)
			}
			fmt.Printf("Reset %d stalled stage(s)\n", reset)
			return nil
		},
	}
}

func newFixPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Re-materialize artifact directories and source links",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			files, err := a.store.ListByStatus(ctx, allOverall(), 10000)
			if err != nil {
				return fatal(err)
			}
			fixed, missing := 0, 0
			for _, m := range files {
				if _, serr := os.Stat(m.OriginalPath); serr != nil {
					missing++
					fmt.Printf("%s: original missing: %s\n", m.FileID, m.OriginalPath)
					continue
				}
				stem := sanitize.Stem(m.SafeFilename)
				ext := filepath.Ext(m.SafeFilename)
				if _, merr := a.layout.MaterializeSource(m.OriginalPath, stem, ext); merr != nil {
					fmt.Printf("%s: %v\n", m.FileID, merr)
					continue
				}
				fixed++
			}
			fmt.Printf("Materialized %d file(s), %d original(s) missing\n", fixed, missing)
			if missing > 0 {
				return recoverable(fmt.Errorf("%d original(s) missing", missing))
			}
			return nil
		},
	}
}

func newFixTranscriptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcripts",
		Short: "Reconcile transcription status with on-disk transcripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			files, err := a.store.ListByStatus(ctx, allOverall(), 10000)
			if err != nil {
				return fatal(err)
			}
			changed := 0
			for _, m := range files {
				st, serr := a.store.GetStatus(ctx, m.FileID)
				if serr != nil {
					return fatal(serr)
				}
				path := a.layout.TranscriptPath(sanitize.Stem(m.SafeFilename))
				onDisk := fileNonEmpty(path)

				var update *model.StageStatus
				switch {
				case onDisk && st.Transcription != model.StageCompleted && st.Transcription != model.StageQAFailed:
					s := model.StageCompleted
					update = &s
				case !onDisk && st.Transcription == model.StageCompleted:
					s := model.StageNotStarted
					update = &s
				}
				if update == nil {
					continue
				}
				if uerr := a.store.UpdateStatus(ctx, m.FileID, model.StatusUpdate{Transcription: update}); uerr != nil {
					return fatal(uerr)
				}
				changed++
				fmt.Printf("%s: transcription -> %s\n", m.FileID, *update)
			}
			fmt.Printf("Reconciled %d file(s)\n", changed)
			return nil
		},
	}
}

func newFixMarkCmd() *cobra.Command {
	var (
		fileIDs string
		stage   string
		status  string
	)
	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Override the status of one stage for specific files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fileIDs == "" || stage == "" || status == "" {
				return fatal(fmt.Errorf("--file-ids, --stage and --status are required"))
			}
			update, err := buildMark(stage, status)
			if err != nil {
				return fatal(err)
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			for id := range idSet(fileIDs) {
				if uerr := a.store.UpdateStatus(ctx, id, update); uerr != nil {
					return fatal(fmt.Errorf("%s: %w", id, uerr))
				}
				fmt.Printf("%s: %s -> %s\n", id, stage, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fileIDs, "file-ids", "", "comma-separated file ids")
	cmd.Flags().StringVar(&stage, "stage", "", "overall, transcription or translation_<lang>")
	cmd.Flags().StringVar(&status, "status", "", "status value for the stage")
	return cmd
}

func newFixHebrewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hebrew",
		Short: "Reset Hebrew artifacts that contain placeholders or no Hebrew text",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			auditor := &audit.Auditor{Store: a.store, Layout: a.layout}
			findings, err := auditor.Run(ctx)
			if err != nil {
				return fatal(err)
			}
			var hebrew []audit.Finding
			for _, f := range findings {
				if f.Stage == model.TranslationStage("he") && f.NeedsFix() {
					hebrew = append(hebrew, f)
				}
			}
			applied, err := auditor.Fix(ctx, hebrew, false)
			if err != nil {
				return fatal(err)
			}
			fmt.Printf("Fixed %d Hebrew artifact(s)\n", applied)
			return nil
		},
	}
}

func newVerifyCmd() *cobra.Command {
	var (
		autoFix    bool
		reportOnly bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Audit artifacts against tracked status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			auditor := &audit.Auditor{Store: a.store, Layout: a.layout}
			findings, err := auditor.Run(ctx)
			if err != nil {
				return fatal(err)
			}

			needFix := 0
			for _, f := range findings {
				if !f.NeedsFix() {
					continue
				}
				needFix++
				fmt.Printf("%s %s: %s (%s)\n", f.FileID, f.Stage, f.Class, f.Path)
			}
			fmt.Printf("Audited %d artifact(s), %d need fixing\n", len(findings), needFix)

			if autoFix && !reportOnly {
				applied, ferr := auditor.Fix(ctx, findings, false)
				if ferr != nil {
					return fatal(ferr)
				}
				fmt.Printf("Applied %d fix(es)\n", applied)
				return nil
			}
			if needFix > 0 {
				return recoverable(fmt.Errorf("%d artifact(s) need fixing", needFix))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&autoFix, "auto-fix", false, "apply fixes for every fixable finding")
	cmd.Flags().BoolVar(&reportOnly, "report-only", false, "never modify anything")
	return cmd
}

func allOverall() []model.OverallStatus {
	return []model.OverallStatus{
		model.OverallPending, model.OverallInProgress, model.OverallCompleted, model.OverallFailed,
	}
}

func idSet(csv string) map[string]bool {
	if csv == "" {
		return nil
	}
	set := map[string]bool{}
	for _, id := range splitCSV(csv) {
		set[id] = true
	}
	return set
}

func buildMark(stage, status string) (model.StatusUpdate, error) {
	if stage == "overall" {
		st := model.OverallStatus(status)
		if !st.Valid() {
			return model.StatusUpdate{}, fmt.Errorf("invalid overall status %q", status)
		}
		return model.StatusUpdate{Overall: &st}, nil
	}

	st := model.StageStatus(status)
	if !st.Valid() {
		return model.StatusUpdate{}, fmt.Errorf("invalid stage status %q", status)
	}
	if stage == "transcription" {
		return model.StatusUpdate{Transcription: &st}, nil
	}
	if lang, ok := model.Stage(stage).IsTranslation(); ok {
		return model.StatusUpdate{Translation: map[string]model.StageStatus{lang: st}}, nil
	}
	return model.StatusUpdate{}, fmt.Errorf("unknown stage %q", stage)
}

func fileNonEmpty(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Size() > 0
}
