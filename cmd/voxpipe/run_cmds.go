// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/skeidel/voxpipe/internal/discovery"
	"github.com/skeidel/voxpipe/internal/log"
	"github.com/skeidel/voxpipe/internal/model"
	"github.com/skeidel/voxpipe/internal/ops"
	"github.com/skeidel/voxpipe/internal/telemetry"
)

// Cooldown long enough that a failed file never re-enters a queue within one
// process lifetime.
const neverRestart = 10 * 365 * 24 * time.Hour

func newMonitorCmd() *cobra.Command {
	var (
		checkInterval   int
		restartInterval int
		noAutoRestart   bool
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the pipeline in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if checkInterval > 0 {
				a.cfg.CheckIntervalSeconds = checkInterval
			}
			if restartInterval > 0 {
				a.cfg.RestartIntervalSeconds = restartInterval
			}

			tracer, err := telemetry.Setup(ctx, a.cfg)
			if err != nil {
				return fatal(fmt.Errorf("telemetry: %w", err))
			}
			defer func() { _ = tracer.Shutdown(context.Background()) }()

			orch := a.orchestrator(ctx)
			if noAutoRestart {
				orch.FailureCooldown = neverRestart
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return orch.Run(ctx) })
			g.Go(func() error {
				a.sweeper().Run(ctx)
				return nil
			})
			if len(a.cfg.WatchDirectories) > 0 {
				w := &discovery.Watcher{Scanner: a.scanner()}
				dirs := a.cfg.WatchDirectories
				g.Go(func() error { return w.Run(ctx, dirs...) })
			}
			if a.cfg.OpsListen != "" {
				srv := &ops.Server{Store: a.store, Listen: a.cfg.OpsListen}
				g.Go(func() error { return srv.Run(ctx) })
			}

			if err := g.Wait(); err != nil {
				return recoverable(err)
			}
			log.WithComponent("main").Info().Msg("monitor stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&checkInterval, "check-interval", 0, "seconds between queue polls")
	cmd.Flags().IntVar(&restartInterval, "restart-interval", 0, "seconds a failed file stays out of its queue")
	cmd.Flags().BoolVar(&noAutoRestart, "no-auto-restart", false, "never requeue a failed file")
	return cmd
}

func newRestartCmd() *cobra.Command {
	var (
		timeoutMin    int
		noAutoRestart bool
	)
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Reset stalled stages and drain the resulting backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			sweeper := a.sweeper()
			if timeoutMin > 0 {
				sweeper.Conf.StalledAfter = time.Duration(timeoutMin) * time.Minute
			}
			reset, err := sweeper.Sweep(ctx)
			if err != nil {
				return fatal(fmt.Errorf("sweep: %w", err))
			}
			fmt.Printf("Reset %d stalled stage(s)\n", reset)

			if noAutoRestart {
				return nil
			}
			orch := a.orchestrator(ctx)
			orch.Once = true
			if err := orch.Run(ctx); err != nil {
				return recoverable(err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&timeoutMin, "timeout", 0, "stall threshold in minutes")
	cmd.Flags().BoolVar(&noAutoRestart, "no-auto-restart", false, "only reset stalled stages, do not run pools")
	return cmd
}

func newStartCmd() *cobra.Command {
	var (
		transcription bool
		translation   string
		workers       int
		batchSize     int
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run a one-shot batch of the named stages and exit when drained",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !transcription && translation == "" {
				return fatal(fmt.Errorf("nothing to do: pass --transcription and/or --translation LANGS"))
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if workers > 0 {
				a.cfg.TranscriptionWorkers = workers
				a.cfg.TranslationWorkers = workers
			}
			if batchSize > 0 {
				a.cfg.BatchSize = batchSize
			}

			var stages []model.Stage
			if transcription {
				stages = append(stages, model.StageExtraction, model.StageTranscription)
			}
			if translation != "" {
				for _, lang := range splitCSV(translation) {
					if !contains(a.cfg.TargetLanguages, lang) {
						return fatal(fmt.Errorf("language %q is not in target_languages", lang))
					}
					stages = append(stages, model.TranslationStage(lang))
				}
			}

			orch := a.orchestrator(ctx)
			orch.Once = true
			orch.Stages = stages

			var done, failed atomic.Int64
			bar := newProgressBar()
			orch.OnItemDone = func(stage model.Stage, fileID string, err error) {
				done.Add(1)
				if err != nil {
					failed.Add(1)
				}
				if bar != nil {
					_ = bar.Add(1)
				}
			}

			if err := orch.Run(ctx); err != nil {
				return recoverable(err)
			}
			if bar != nil {
				_ = bar.Finish()
				fmt.Println()
			}
			fmt.Printf("Processed %d item(s), %d failed\n", done.Load(), failed.Load())
			if failed.Load() > 0 {
				return recoverable(fmt.Errorf("%d item(s) failed", failed.Load()))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&transcription, "transcription", false, "run extraction and transcription")
	cmd.Flags().StringVar(&translation, "translation", "", "comma-separated target languages to translate")
	cmd.Flags().IntVar(&workers, "workers", 0, "workers per pool")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "files claimed per queue poll")
	return cmd
}

// newProgressBar returns a spinner when stdout is a terminal, nil otherwise.
func newProgressBar() *progressbar.ProgressBar {
	fi, err := os.Stdout.Stat()
	if err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return nil
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("processing"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
	)
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
