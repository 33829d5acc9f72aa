// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"

	"github.com/skeidel/voxpipe/internal/avtool"
	"github.com/skeidel/voxpipe/internal/config"
	"github.com/skeidel/voxpipe/internal/discovery"
	"github.com/skeidel/voxpipe/internal/layout"
	"github.com/skeidel/voxpipe/internal/log"
	"github.com/skeidel/voxpipe/internal/pipeline"
	"github.com/skeidel/voxpipe/internal/store"
	"github.com/skeidel/voxpipe/internal/transcribe"
	"github.com/skeidel/voxpipe/internal/translate"
)

// app holds the composed services every subcommand works with. Leaf services
// are built first (store, layout, avtool), engines compose them.
type app struct {
	cfg    config.Config
	creds  config.Credentials
	store  *store.Store
	layout layout.Layout
	tool   *avtool.Tool
	cache  *translate.BadgerCache
}

func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fatal(fmt.Errorf("load config: %w", err))
	}

	st, err := store.Open(cfg.DatabaseFile, cfg.TargetLanguages)
	if err != nil {
		return nil, fatal(fmt.Errorf("open store: %w", err))
	}

	a := &app{
		cfg:    cfg,
		creds:  config.ReadCredentials(),
		store:  st,
		layout: layout.New(cfg.OutputDirectory),
		tool:   avtool.New(cfg.FFmpegPath, cfg.FFprobePath),
	}

	if cfg.TranslationCache {
		cache, cerr := translate.OpenCache(cfg.CacheDir)
		if cerr != nil {
			log.WithComponent("main").Warn().Err(cerr).Msg("translation cache disabled")
		} else {
			a.cache = cache
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.WithComponent("main").Warn().Err(err).Msg("cache close failed")
		}
	}
	if err := a.store.Close(); err != nil {
		log.WithComponent("main").Warn().Err(err).Msg("store close failed")
	}
}

func (a *app) transcribeEngine() *transcribe.Engine {
	return &transcribe.Engine{
		Store:  a.store,
		Layout: a.layout,
		Tool:   a.tool,
		Client: transcribe.NewClient(a.creds.ElevenLabsKey, a.cfg.APITimeout(), a.cfg.ProviderRateLimit),
		Conf: transcribe.Config{
			Model:             a.cfg.TranscriptionModel,
			DefaultLanguage:   a.cfg.DefaultSourceLanguage,
			ForceLanguage:     a.cfg.ForceLanguage,
			AutoDetect:        a.cfg.AutoDetectLanguage,
			ForceReprocess:    a.cfg.ForceReprocess,
			MaxAudioBytes:     a.cfg.MaxAudioBytes(),
			MaxSegmentSeconds: a.cfg.MaxSegmentSeconds,
			MaxRetries:        a.cfg.APIRetries,
			APITimeout:        a.cfg.APITimeout(),
			SegmentPause:      a.cfg.SegmentPause(),
			ExtractFormat:     a.cfg.ExtractAudioFormat,
			ExtractQuality:    a.cfg.ExtractAudioQuality,
		},
	}
}

func (a *app) translateEngine(ctx context.Context) *translate.Engine {
	e := &translate.Engine{
		Store:    a.store,
		Layout:   a.layout,
		Registry: translate.NewRegistry(ctx, a.creds, a.cfg),
		Conf: translate.Config{
			DefaultProvider: a.cfg.DefaultProvider,
			DefaultTarget:   "en",
			Force:           a.cfg.ForceReprocess,
			MaxRetries:      a.cfg.APIRetries,
			ChunkPause:      a.cfg.SegmentPause(),
			Formality:       translate.FormalityDefault,
		},
	}
	if a.cfg.AutoDetectLanguage {
		codes := append([]string{}, a.cfg.TargetLanguages...)
		codes = append(codes, translate.ToISO1(a.cfg.DefaultSourceLanguage))
		if d := translate.NewLinguaDetector(codes); d != nil {
			e.Detector = d
		}
	}
	if a.cache != nil {
		e.Cache = a.cache
	}
	if a.creds.OpenAIKey != "" {
		e.Polisher = translate.NewPolisher(a.creds.OpenAIKey, a.cfg.PolishModel, a.cfg.GlossaryFile)
	}
	return e
}

func (a *app) orchestrator(ctx context.Context) *pipeline.Orchestrator {
	return &pipeline.Orchestrator{
		Store:      a.store,
		Transcribe: a.transcribeEngine(),
		Translate:  a.translateEngine(ctx),
		Conf:       a.cfg,
	}
}

func (a *app) sweeper() *pipeline.Sweeper {
	return &pipeline.Sweeper{
		Store: a.store,
		Conf: pipeline.SweeperConfig{
			Interval:     a.cfg.SweepInterval(),
			StalledAfter: a.cfg.StalledTimeout(),
		},
	}
}

func (a *app) doctor() *pipeline.Doctor {
	return &pipeline.Doctor{Store: a.store, Layout: a.layout, Tool: a.tool, Conf: a.cfg}
}

func (a *app) scanner() *discovery.Scanner {
	return &discovery.Scanner{Store: a.store, Layout: a.layout, Tool: a.tool, Conf: a.cfg}
}
