// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/demeterhq/demeter/pkg/capability"
	"github.com/demeterhq/demeter/pkg/llm"
	"github.com/demeterhq/demeter/pkg/retrieval"
)

func TestPredictionEstimates(t *testing.T) {
	p := NewPrediction()
	invoke := p.Descriptor().Invoke

	tests := []struct {
		name  string
		query string
		want  float64
	}{
		{"reference rainfall", "Predict yield for wheat in Punjab with 800mm rainfall", 3.5},
		{"capped wet season", "rice harvest with 1200mm rainfall", 4.0 * 1.25},
		{"floored dry season", "maize production at 300mm", 5.5 * 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := invoke.Invoke(context.Background(), map[string]any{"query": tt.query})
			if !res.Success {
				t.Fatalf("expected success, got %+v", res)
			}
			payload := res.Payload.(map[string]any)
			got := payload["yield_t_ha"].(float64)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %.2f t/ha, got %.2f", tt.want, got)
			}
			if payload["answer"] == "" {
				t.Error("expected a textual answer")
			}
		})
	}
}

func TestPredictionExplicitArgs(t *testing.T) {
	invoke := NewPrediction().Descriptor().Invoke
	res := invoke.Invoke(context.Background(), map[string]any{
		"crop":        "rice",
		"rainfall_mm": 800.0,
	})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	payload := res.Payload.(map[string]any)
	if payload["crop"] != "rice" || payload["yield_t_ha"].(float64) != 4.0 {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestPredictionMissingRainfall(t *testing.T) {
	invoke := NewPrediction().Descriptor().Invoke
	res := invoke.Invoke(context.Background(), map[string]any{"query": "predict wheat yield"})
	if res.Success {
		t.Fatal("expected failure without a rainfall figure")
	}
	if res.Error == "" {
		t.Error("expected an error message")
	}
}

func TestGenerationBuildsPrompt(t *testing.T) {
	var captured llm.ChatRequest
	mock := &llm.MockProvider{
		ChatFunc: func(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			captured = req
			return &llm.ChatResponse{Content: "grounded answer"}, nil
		},
	}
	invoke := NewGeneration(mock, "llama3.1:8b-instruct-q5_K_M").Descriptor().Invoke

	res := invoke.Invoke(context.Background(), map[string]any{
		"query":   "Why rotate crops?",
		"context": "Crop rotation restores nitrogen.",
	})
	if !res.Success || res.Payload != "grounded answer" {
		t.Fatalf("unexpected result %+v", res)
	}
	if captured.Model != "llama3.1:8b-instruct-q5_K_M" {
		t.Errorf("unexpected model %q", captured.Model)
	}
	user := captured.Messages[len(captured.Messages)-1].Content
	if !strings.Contains(user, "Context:") || !strings.Contains(user, "Why rotate crops?") {
		t.Errorf("context not folded into prompt: %q", user)
	}
}

func TestGenerationMapsProviderError(t *testing.T) {
	mock := &llm.FailingMockProvider{Err: fmt.Errorf("connection refused")}
	invoke := NewGeneration(mock, "m").Descriptor().Invoke

	res := invoke.Invoke(context.Background(), map[string]any{"query": "q"})
	if res.Success {
		t.Fatal("expected failure result")
	}
	if !strings.Contains(res.Error, "connection refused") {
		t.Errorf("expected provider error in result, got %q", res.Error)
	}
}

func TestTranslationDetectsTarget(t *testing.T) {
	var captured llm.ChatRequest
	mock := &llm.MockProvider{
		ChatFunc: func(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			captured = req
			return &llm.ChatResponse{Content: "अनुवादित पाठ"}, nil
		},
	}
	invoke := NewTranslation(mock, "m").Descriptor().Invoke

	res := invoke.Invoke(context.Background(), map[string]any{"query": "translate this advice to hindi"})
	if !res.Success {
		t.Fatalf("unexpected result %+v", res)
	}
	payload := res.Payload.(map[string]any)
	if payload["target_language"] != "Hindi" {
		t.Errorf("expected Hindi target, got %v", payload["target_language"])
	}
	if !strings.Contains(captured.Messages[0].Content, "Hindi") {
		t.Errorf("system prompt should name the target language: %q", captured.Messages[0].Content)
	}
}

func TestTranslationMissingText(t *testing.T) {
	invoke := NewTranslation(&llm.MockProvider{Response: "x"}, "m").Descriptor().Invoke
	res := invoke.Invoke(context.Background(), nil)
	if res.Success {
		t.Fatal("expected failure without text")
	}
}

func TestClassificationSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req classifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.ImageURL != "http://example.com/leaf.jpg" {
			t.Errorf("unexpected image url %q", req.ImageURL)
		}
		_ = json.NewEncoder(w).Encode(classifyResponse{Label: "leaf_blight", Confidence: 0.93})
	}))
	defer srv.Close()

	invoke := NewClassification(srv.URL).Descriptor().Invoke
	res := invoke.Invoke(context.Background(), map[string]any{"image_url": "http://example.com/leaf.jpg"})
	if !res.Success {
		t.Fatalf("unexpected result %+v", res)
	}
	payload := res.Payload.(map[string]any)
	if payload["label"] != "leaf_blight" {
		t.Errorf("unexpected label %v", payload["label"])
	}
}

func TestClassificationServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	invoke := NewClassification(srv.URL).Descriptor().Invoke
	res := invoke.Invoke(context.Background(), map[string]any{"image_url": "http://example.com/leaf.jpg"})
	if res.Success {
		t.Fatal("expected failure result")
	}
}

func TestClassificationMissingImage(t *testing.T) {
	invoke := NewClassification("http://localhost:0").Descriptor().Invoke
	res := invoke.Invoke(context.Background(), map[string]any{"query": "what disease is this"})
	if res.Success {
		t.Fatal("expected failure without an image")
	}
}

type staticEmbedder struct{}

func (staticEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type staticVectorStore struct{}

func (staticVectorStore) Upsert(_ context.Context, _ string, _ []retrieval.Point) error { return nil }

func (staticVectorStore) CreateCollection(_ context.Context, _ string, _ uint64) error { return nil }

func (staticVectorStore) Search(_ context.Context, _ string, _ []float32, _ int, _ float32) ([]retrieval.SearchResult, error) {
	return []retrieval.SearchResult{
		{ID: "doc-1", Score: 0.88, Point: retrieval.Point{ID: "doc-1", Payload: map[string]any{"text": "mulching conserves moisture"}}},
	}, nil
}

func TestRetrievalProvider(t *testing.T) {
	r := retrieval.NewRetriever(staticEmbedder{}, staticVectorStore{}, "agri_docs")
	invoke := NewRetrieval(r, 0).Descriptor().Invoke

	res := invoke.Invoke(context.Background(), map[string]any{"query": "moisture conservation"})
	if !res.Success {
		t.Fatalf("unexpected result %+v", res)
	}
	payload := res.Payload.([]any)
	if len(payload) != 1 {
		t.Fatalf("expected 1 snippet, got %d", len(payload))
	}
	snippet := payload[0].(map[string]any)
	if snippet["text"] != "mulching conserves moisture" {
		t.Errorf("unexpected snippet %v", snippet)
	}

	if res := invoke.Invoke(context.Background(), nil); res.Success {
		t.Error("expected failure without query")
	}
}

type limitCapturingStore struct {
	staticVectorStore
	limit int
}

func (s *limitCapturingStore) Search(ctx context.Context, collection string, vec []float32, limit int, threshold float32) ([]retrieval.SearchResult, error) {
	s.limit = limit
	return s.staticVectorStore.Search(ctx, collection, vec, limit, threshold)
}

func TestRetrievalTopK(t *testing.T) {
	cases := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{"configured", 3, 3},
		{"default on zero", 0, DefaultRetrievalLimit},
		{"default on negative", -1, DefaultRetrievalLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &limitCapturingStore{}
			r := retrieval.NewRetriever(staticEmbedder{}, store, "agri_docs")
			invoke := NewRetrieval(r, tc.limit).Descriptor().Invoke

			if res := invoke.Invoke(context.Background(), map[string]any{"query": "q"}); !res.Success {
				t.Fatalf("unexpected result %+v", res)
			}
			if store.limit != tc.wantLimit {
				t.Errorf("expected search limit %d, got %d", tc.wantLimit, store.limit)
			}
		})
	}
}

func TestGenerationDegradesToContext(t *testing.T) {
	mock := &llm.FailingMockProvider{Err: fmt.Errorf("connection refused")}
	invoke := NewGeneration(mock, "m").Descriptor().Invoke

	res := invoke.Invoke(context.Background(), map[string]any{
		"query":   "Why mulch?",
		"context": "Mulching conserves soil moisture.",
	})
	if !res.Success {
		t.Fatalf("expected degraded success, got %+v", res)
	}
	answer, _ := res.Payload.(string)
	if !strings.Contains(answer, "Mulching conserves soil moisture.") {
		t.Errorf("degraded answer should carry the retrieved context: %q", answer)
	}
	if !strings.Contains(answer, "unavailable") {
		t.Errorf("degraded answer should state the model is unavailable: %q", answer)
	}
}

func TestRegisterAll(t *testing.T) {
	reg := capability.NewRegistry()
	err := RegisterAll(reg, Deps{
		Retriever:          retrieval.NewRetriever(staticEmbedder{}, staticVectorStore{}, "agri_docs"),
		Generator:          &llm.MockProvider{Response: "answer"},
		GenerationModel:    "m",
		ClassifierEndpoint: "http://localhost:8600/classify",
	})
	if err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	if reg.Len() != 5 {
		t.Fatalf("expected 5 capabilities, got %d", reg.Len())
	}

	reg = capability.NewRegistry()
	if err := RegisterAll(reg, Deps{}); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	if reg.Len() != 1 || !reg.Has("yield_prediction") {
		t.Fatalf("expected only the local prediction model, got %d", reg.Len())
	}
}
