// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/demeterhq/demeter/pkg/capability"
	"github.com/demeterhq/demeter/pkg/config"
	"github.com/demeterhq/demeter/pkg/history"
	"github.com/demeterhq/demeter/pkg/llm"
	"github.com/demeterhq/demeter/pkg/orchestrator"
	"github.com/demeterhq/demeter/pkg/providers"
	"github.com/demeterhq/demeter/pkg/retrieval"
	qollama "github.com/demeterhq/demeter/pkg/retrieval/ollama"
	"github.com/demeterhq/demeter/pkg/retrieval/qdrant"
	"github.com/demeterhq/demeter/pkg/router"
	"github.com/demeterhq/demeter/pkg/telemetry"
	qtrace "github.com/demeterhq/demeter/pkg/trace"
)

// app bundles the wired core for one CLI invocation.
type app struct {
	cfg          *config.Config
	log          *slog.Logger
	registry     *capability.Registry
	retriever    *retrieval.Retriever
	orchestrator *orchestrator.Orchestrator
	traces       *qtrace.SQLiteStore
	shutdown     telemetry.ShutdownFunc
}

// buildApp loads configuration and wires the registry, providers and
// orchestrator. withTelemetry controls whether the OTel SDK is
// started; listing commands skip it.
func buildApp(withTelemetry bool, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	a := &app{cfg: cfg, log: log}

	if withTelemetry {
		shutdown, err := telemetry.InitWithConfig("demeter", version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			return nil, err
		}
		a.shutdown = shutdown
	}

	retriever, err := a.buildRetriever()
	if err != nil {
		return nil, err
	}
	a.retriever = retriever

	reg := capability.NewRegistry()
	if err := providers.RegisterAll(reg, providers.Deps{
		Retriever:          retriever,
		RetrievalTopK:      cfg.Retrieval.TopK,
		Generator:          llm.NewOllama(cfg.Generation.BaseURL),
		GenerationModel:    cfg.Generation.Model,
		ClassifierEndpoint: cfg.Classifier.Endpoint,
	}); err != nil {
		return nil, err
	}
	a.registry = reg

	opts := []orchestrator.Option{
		orchestrator.WithRouter(router.New(reg, router.WithFloor(cfg.Router.Floor), router.WithLogger(log))),
		orchestrator.WithHistory(history.NewBuffer(cfg.History.Capacity)),
		orchestrator.WithFastPathThreshold(cfg.Router.FastPathThreshold),
		orchestrator.WithMaxIterations(cfg.React.MaxIterations),
		orchestrator.WithCallTimeout(cfg.React.CallTimeout),
		orchestrator.WithLogger(log),
	}
	if cfg.Trace.Enabled {
		store, err := qtrace.Open(cfg.Trace.DBPath)
		if err != nil {
			return nil, err
		}
		a.traces = store
		opts = append(opts, orchestrator.WithTraceStore(store))
	}
	a.orchestrator = orchestrator.New(reg, opts...)
	return a, nil
}

func (a *app) buildRetriever() (*retrieval.Retriever, error) {
	store, err := qdrant.New(a.cfg.Retrieval.QdrantAddr)
	if err != nil {
		return nil, err
	}
	embedder := qollama.NewEmbedder(a.cfg.Retrieval.EmbedderBaseURL, a.cfg.Retrieval.EmbedderModel)
	return retrieval.NewRetriever(embedder, store, a.cfg.Retrieval.Collection), nil
}

func (a *app) close(ctx context.Context) {
	if a.traces != nil {
		if err := a.traces.Close(); err != nil {
			a.log.Warn("trace store close failed", slog.String("error", err.Error()))
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			a.log.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}
}
