package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log        LogConfig        `koanf:"log"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Router     RouterConfig     `koanf:"router"`
	React      ReactConfig      `koanf:"react"`
	History    HistoryConfig    `koanf:"history"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Generation GenerationConfig `koanf:"generation"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Trace      TraceConfig      `koanf:"trace"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type RouterConfig struct {
	Floor             float64 `koanf:"floor"`
	FastPathThreshold float64 `koanf:"fast_path_threshold"`
}

type ReactConfig struct {
	MaxIterations int           `koanf:"max_iterations"`
	CallTimeout   time.Duration `koanf:"call_timeout"`
}

type HistoryConfig struct {
	Capacity int `koanf:"capacity"`
}

type RetrievalConfig struct {
	QdrantAddr      string `koanf:"qdrant_addr"`
	Collection      string `koanf:"collection"`
	EmbedderBaseURL string `koanf:"embedder_base_url"`
	EmbedderModel   string `koanf:"embedder_model"`
	TopK            int    `koanf:"top_k"`
}

type GenerationConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

type ClassifierConfig struct {
	Endpoint string `koanf:"endpoint"`
}

type TraceConfig struct {
	Enabled bool   `koanf:"enabled"`
	DBPath  string `koanf:"db_path"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("telemetry.exporter", "stdout")

	k.Set("router.floor", 0.05)
	k.Set("router.fast_path_threshold", 0.7)
	k.Set("react.max_iterations", 5)
	k.Set("react.call_timeout", "30s")
	k.Set("history.capacity", 20)

	k.Set("retrieval.qdrant_addr", "localhost:6334")
	k.Set("retrieval.collection", "agri_docs")
	k.Set("retrieval.embedder_base_url", "http://localhost:11434")
	k.Set("retrieval.embedder_model", "nomic-embed-text")
	k.Set("retrieval.top_k", 4)

	k.Set("generation.base_url", "http://localhost:11434")
	k.Set("generation.model", "llama3.1:8b-instruct-q5_K_M")

	k.Set("classifier.endpoint", "http://localhost:8600/classify")

	k.Set("trace.enabled", false)
	k.Set("trace.db_path", "demeter-traces.db")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (DEMETER_ROUTER_FLOOR -> router.floor)
	if err := k.Load(env.Provider("DEMETER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "DEMETER_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
