// SPDX-License-Identifier: Apache-2.0

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/demeterhq/demeter/pkg/capability"
	"github.com/demeterhq/demeter/pkg/resilience"
)

// Classification wraps a remote image-classification service as the
// disease_classification capability. A circuit breaker shields the
// core from a flapping model server.
type Classification struct {
	endpoint string
	client   *http.Client
	breaker  *resilience.CircuitBreaker
}

// NewClassification creates the classification provider for the given
// endpoint, e.g. "http://localhost:8600/classify".
func NewClassification(endpoint string) *Classification {
	return &Classification{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "disease_classifier",
			FailureThreshold: 3,
			SuccessThreshold: 1,
			Timeout:          30 * time.Second,
		}),
	}
}

// Descriptor returns the registry entry for this provider.
func (p *Classification) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		Name:        "disease_classification",
		Invoke:      capability.InvokerFunc(p.invoke),
		Description: "Identifies crop diseases and pests from a leaf image",
		Category:    capability.CategoryClassification,
		Keywords:    []string{"disease", "leaf", "image", "identify", "pest"},
	}
}

type classifyRequest struct {
	ImageURL string `json:"image_url"`
	Query    string `json:"query,omitempty"`
}

type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func (p *Classification) invoke(ctx context.Context, args map[string]any) capability.Result {
	imageURL := stringArg(args, "image_url")
	if imageURL == "" {
		imageURL = stringArg(args, "image")
	}
	if imageURL == "" {
		return capability.Fail("no image provided for classification")
	}

	var out classifyResponse
	err := p.breaker.Call(ctx, func() error {
		return p.classify(ctx, classifyRequest{ImageURL: imageURL, Query: stringArg(args, "query")}, &out)
	})
	if err != nil {
		return capability.Fail(err.Error())
	}

	return capability.Ok(map[string]any{
		"label":      out.Label,
		"confidence": out.Confidence,
		"answer":     fmt.Sprintf("Detected %s (confidence %.2f)", out.Label, out.Confidence),
	})
}

func (p *Classification) classify(ctx context.Context, req classifyRequest, out *classifyResponse) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal classify request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("classifier call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("classifier returned status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode classifier response: %w", err)
	}
	return nil
}
