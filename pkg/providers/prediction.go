// SPDX-License-Identifier: Apache-2.0

package providers

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/demeterhq/demeter/pkg/capability"
)

// baselineYields holds per-crop baseline yields in tonnes per hectare
// at the reference rainfall.
var baselineYields = map[string]float64{
	"wheat":     3.5,
	"rice":      4.0,
	"maize":     5.5,
	"cotton":    2.0,
	"soybean":   2.8,
	"sugarcane": 70.0,
}

const (
	referenceRainfallMM  = 800.0
	defaultBaselineYield = 3.0
	minRainfallFactor    = 0.6
	maxRainfallFactor    = 1.25
)

// cropNames keeps detection order deterministic.
var cropNames = []string{"cotton", "maize", "rice", "soybean", "sugarcane", "wheat"}

var rainfallPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*mm`)

// Prediction is a local deterministic yield model registered as the
// yield_prediction capability. It scales a per-crop baseline by a
// bounded rainfall factor.
type Prediction struct{}

// NewPrediction creates the prediction provider.
func NewPrediction() *Prediction {
	return &Prediction{}
}

// Descriptor returns the registry entry for this provider.
func (p *Prediction) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		Name:        "yield_prediction",
		Invoke:      capability.InvokerFunc(p.invoke),
		Description: "Estimates crop yield from crop type and seasonal rainfall",
		Category:    capability.CategoryStructuredPrediction,
		Keywords:    []string{"yield", "predict", "rainfall", "harvest", "production"},
	}
}

func (p *Prediction) invoke(_ context.Context, args map[string]any) capability.Result {
	query := stringArg(args, "query")

	crop := strings.ToLower(stringArg(args, "crop"))
	if crop == "" {
		crop = detectCrop(query)
	}
	base, known := baselineYields[crop]
	if !known {
		base = defaultBaselineYield
	}

	rainfall, ok := floatArg(args, "rainfall_mm")
	if !ok {
		rainfall, ok = parseRainfall(query)
	}
	if !ok {
		return capability.Fail("no rainfall figure found; expected a quantity like 800mm")
	}

	factor := rainfall / referenceRainfallMM
	if factor < minRainfallFactor {
		factor = minRainfallFactor
	}
	if factor > maxRainfallFactor {
		factor = maxRainfallFactor
	}
	estimate := base * factor

	label := crop
	if label == "" || !known {
		label = "the crop"
	}
	return capability.Ok(map[string]any{
		"crop":        crop,
		"rainfall_mm": rainfall,
		"yield_t_ha":  estimate,
		"answer":      fmt.Sprintf("Estimated yield for %s at %.0f mm rainfall: %.1f t/ha", label, rainfall, estimate),
	})
}

func detectCrop(query string) string {
	lowered := strings.ToLower(query)
	for _, crop := range cropNames {
		if strings.Contains(lowered, crop) {
			return crop
		}
	}
	return ""
}

func parseRainfall(query string) (float64, bool) {
	m := rainfallPattern.FindStringSubmatch(query)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func floatArg(args map[string]any, key string) (float64, bool) {
	if args == nil {
		return 0, false
	}
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
