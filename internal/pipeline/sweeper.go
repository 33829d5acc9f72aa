// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/skeidel/voxpipe/internal/log"
	"github.com/skeidel/voxpipe/internal/model"
	"github.com/skeidel/voxpipe/internal/store"
)

// SweeperConfig tunes stall recovery.
type SweeperConfig struct {
	Interval     time.Duration
	StalledAfter time.Duration
}

// Sweeper periodically resets stages stuck in_progress past the stall
// threshold to failed, so the orchestrator can pick them up again. Crashed or
// killed workers leave exactly this state behind.
type Sweeper struct {
	Store *store.Store
	Conf  SweeperConfig
}

// Run sweeps on a ticker until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Conf.Interval)
	defer ticker.Stop()

	logger := log.WithComponent("sweeper")
	logger.Info().
		Dur("interval", s.Conf.Interval).
		Dur("stalled_after", s.Conf.StalledAfter).
		Msg("stall sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Sweep resets all currently stalled stages and returns how many it reset.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stalled, err := s.Store.ListStalled(ctx, s.Conf.StalledAfter)
	if err != nil {
		return 0, fmt.Errorf("list stalled: %w", err)
	}

	reset := 0
	for _, st := range stalled {
		if err := s.resetStage(ctx, st); err != nil {
			logger := log.WithComponent("sweeper")
			logger.Warn().Err(err).
				Str(log.FieldFileID, st.FileID).
				Str(log.FieldStage, string(st.Stage)).
				Msg("failed to reset stalled stage")
			continue
		}
		stalledResetsTotal.Inc()
		reset++
		logger := log.WithComponent("sweeper")
		logger.Info().
			Str(log.FieldFileID, st.FileID).
			Str(log.FieldStage, string(st.Stage)).
			Time("last_updated", st.LastUpdated).
			Msg("stalled stage reset to failed")
	}
	return reset, nil
}

func (s *Sweeper) resetStage(ctx context.Context, st store.StalledStage) error {
	msg := fmt.Sprintf("stalled: no progress since %s", st.LastUpdated.Format(time.RFC3339))
	if err := s.Store.LogError(ctx, st.FileID, st.Stage, msg, ""); err != nil {
		return err
	}

	failed := model.StageFailed
	update := model.StatusUpdate{}
	if lang, ok := st.Stage.IsTranslation(); ok {
		update.Translation = map[string]model.StageStatus{lang: failed}
	} else {
		update.Transcription = &failed
	}
	return s.Store.UpdateStatus(ctx, st.FileID, update)
}
