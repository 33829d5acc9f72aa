// SPDX-License-Identifier: MIT

// Package pipeline schedules pending work onto per-stage worker pools and
// recovers stages that stop making progress.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skeidel/voxpipe/internal/config"
	"github.com/skeidel/voxpipe/internal/log"
	"github.com/skeidel/voxpipe/internal/model"
	"github.com/skeidel/voxpipe/internal/store"
	"github.com/skeidel/voxpipe/internal/transcribe"
	"github.com/skeidel/voxpipe/internal/translate"
)

// Orchestrator runs one worker pool per stage: extraction, transcription and
// one per target language. Each pool has a feeder that claims pending files
// from the store and a set of workers that process them, each item under its
// own timeout.
type Orchestrator struct {
	Store      *store.Store
	Transcribe *transcribe.Engine
	Translate  *translate.Engine
	Conf       config.Config

	// PollInterval is how long a feeder sleeps when no work is pending.
	// Zero means the configured check interval.
	PollInterval time.Duration
	// FailureCooldown keeps a file that just failed a stage out of that
	// stage's queue, so a bad file cannot monopolize a pool between restarts.
	// Zero means the configured restart interval.
	FailureCooldown time.Duration
	// Once drains the current backlog and returns instead of polling forever.
	Once bool
	// Stages, when non-empty, limits which pools run. Empty means all.
	Stages []model.Stage

	// OnItemDone, when set, is called after every finished item. Tests and
	// progress reporting hook in here.
	OnItemDone func(stage model.Stage, fileID string, err error)

	mu       sync.Mutex
	inflight map[string]struct{}
	cooldown map[string]time.Time
}

// Run starts all pools and blocks until the context is canceled (or, with
// Once, until the backlog is drained).
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.inflight == nil {
		o.inflight = make(map[string]struct{})
		o.cooldown = make(map[string]time.Time)
	}
	o.mu.Unlock()

	logger := log.WithComponent("pipeline")
	logger.Info().
		Int("transcription_workers", o.Conf.TranscriptionWorkers).
		Int("translation_workers", o.Conf.TranslationWorkers).
		Strs("targets", o.Conf.TargetLanguages).
		Bool("once", o.Once).
		Msg("orchestrator starting")

	g, ctx := errgroup.WithContext(ctx)

	if o.wantStage(model.StageExtraction) {
		o.runPool(ctx, g, model.StageExtraction, o.Conf.TranscriptionWorkers, o.processExtraction)
	}
	if o.wantStage(model.StageTranscription) {
		o.runPool(ctx, g, model.StageTranscription, o.Conf.TranscriptionWorkers, o.Transcribe.Process)
	}
	for _, lang := range o.Conf.TargetLanguages {
		lang := lang
		if !o.wantStage(model.TranslationStage(lang)) {
			continue
		}
		o.runPool(ctx, g, model.TranslationStage(lang), o.Conf.TranslationWorkers,
			func(ctx context.Context, m model.MediaFile) error {
				return o.Translate.Process(ctx, m, lang)
			})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (o *Orchestrator) wantStage(stage model.Stage) bool {
	if len(o.Stages) == 0 {
		return true
	}
	for _, s := range o.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// runPool wires one feeder and its workers into the group.
func (o *Orchestrator) runPool(ctx context.Context, g *errgroup.Group, stage model.Stage, workers int, fn func(context.Context, model.MediaFile) error) {
	if workers <= 0 {
		workers = 1
	}
	items := make(chan model.MediaFile)

	g.Go(func() error {
		defer close(items)
		return o.feed(ctx, stage, items)
	})
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for m := range items {
				o.runItem(ctx, stage, m, fn)
			}
			return nil
		})
	}
}

// feed claims pending files for one stage in batches. Files already in flight
// or cooling down after a failure are skipped; claimed files are handed to the
// workers. With Once set the feeder returns when a full pass finds nothing
// left to do.
func (o *Orchestrator) feed(ctx context.Context, stage model.Stage, items chan<- model.MediaFile) error {
	logger := log.WithComponent("pipeline").With().Str(log.FieldStage, string(stage)).Logger()

	poll := o.PollInterval
	if poll <= 0 {
		poll = time.Duration(o.Conf.CheckIntervalSeconds) * time.Second
	}
	if poll <= 0 {
		poll = time.Minute
	}

	for {
		pending, err := o.Store.ListPendingForStage(ctx, stage, o.Conf.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error().Err(err).Msg("listing pending work failed")
		}

		sent := 0
		for _, it := range pending {
			if !o.claim(stage, it.Media.FileID) {
				continue
			}
			select {
			case items <- it.Media:
				sent++
			case <-ctx.Done():
				o.release(stage, it.Media.FileID, nil)
				return nil
			}
		}

		if sent == 0 {
			// Drained means: nothing claimable for this stage and no item of
			// any stage still running. The idle check can race a finishing
			// upstream item, so the decision is confirmed with a second look.
			if o.Once && o.idle() && !o.claimable(pending) {
				again, lerr := o.Store.ListPendingForStage(ctx, stage, o.Conf.BatchSize)
				if lerr == nil && o.idle() && !o.claimable(again) {
					return nil
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(poll):
			}
		}
	}
}

// runItem processes one claimed file under the per-item timeout and records
// the outcome.
func (o *Orchestrator) runItem(ctx context.Context, stage model.Stage, m model.MediaFile, fn func(context.Context, model.MediaFile) error) {
	ictx := log.ContextWithFileID(ctx, m.FileID)
	ictx = log.ContextWithStage(ictx, string(stage))
	if t := o.Conf.ItemTimeout(); t > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ictx, t)
		defer cancel()
	}

	start := time.Now()
	err := fn(ictx, m)
	o.release(stage, m.FileID, err)

	result := "success"
	if err != nil {
		result = "failure"
	}
	stageJobsTotal.WithLabelValues(string(stage), result).Inc()
	stageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())

	if o.OnItemDone != nil {
		o.OnItemDone(stage, m.FileID, err)
	}
}

// claimKey folds extraction and transcription onto one key: both write the
// same file's audio artifact, so the two pools must never hold the same file
// at once. Translation stages are independent per language.
func claimKey(stage model.Stage, fileID string) string {
	if _, ok := stage.IsTranslation(); ok {
		return string(stage) + "/" + fileID
	}
	return "audio/" + fileID
}

func (o *Orchestrator) claim(stage model.Stage, fileID string) bool {
	key := claimKey(stage, fileID)
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[key]; busy {
		return false
	}
	if until, cooling := o.cooldown[key]; cooling {
		if time.Now().Before(until) {
			return false
		}
		delete(o.cooldown, key)
	}
	o.inflight[key] = struct{}{}
	return true
}

func (o *Orchestrator) release(stage model.Stage, fileID string, err error) {
	key := claimKey(stage, fileID)
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, key)
	if err != nil {
		cd := o.FailureCooldown
		if cd <= 0 {
			cd = time.Duration(o.Conf.RestartIntervalSeconds) * time.Second
		}
		o.cooldown[key] = time.Now().Add(cd)
	}
}

// claimable reports whether any listed item could actually be claimed right
// now. Items in flight or cooling down after a failure do not count.
func (o *Orchestrator) claimable(items []store.Item) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now()
	for _, it := range items {
		key := claimKey(it.Stage, it.Media.FileID)
		if _, busy := o.inflight[key]; busy {
			continue
		}
		if until, cooling := o.cooldown[key]; cooling && now.Before(until) {
			continue
		}
		return true
	}
	return false
}

func (o *Orchestrator) idle() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight) == 0
}

// processExtraction materializes the audio artifact for a video source ahead
// of transcription. It is idempotent; transcription failures are what gate
// retries, so extraction errors are only logged here.
func (o *Orchestrator) processExtraction(ctx context.Context, m model.MediaFile) error {
	_, err := o.Transcribe.EnsureAudio(ctx, m)
	if err != nil {
		if lerr := o.Store.LogError(ctx, m.FileID, model.StageExtraction, err.Error(), ""); lerr != nil {
			logger := log.WithComponentFromContext(ctx, "pipeline")
			logger.Warn().Err(lerr).Msg("failed to log extraction error")
		}
		failed := model.StageFailed
		if serr := o.Store.UpdateStatus(ctx, m.FileID, model.StatusUpdate{Transcription: &failed}); serr != nil {
			logger := log.WithComponentFromContext(ctx, "pipeline")
			logger.Warn().Err(serr).Msg("failed to mark transcription failed")
		}
	}
	return err
}
