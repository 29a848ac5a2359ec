// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"regexp"

	"github.com/demeterhq/demeter/pkg/capability"
)

// Structural trigger patterns per category. A query matching any pattern of
// the selected capability's category earns the structural bonus. The tables
// are declarative so the scoring policy stays auditable and testable.
var defaultStructuralPatterns = map[capability.Category][]string{
	capability.CategoryStructuredPrediction: {
		// Numeric quantity followed by an agronomic unit.
		`(?i)\d+(\.\d+)?\s*(mm|cm|kg|g|ha|hectares?|acres?|tons?|tonnes?|quintals?|°c|celsius|%)`,
		`(?i)(predict|estimate|forecast)\b.*\d`,
	},
	capability.CategoryClassification: {
		`(?i)\b(image|photo|picture|leaf|leaves)\b`,
		`(?i)\.(jpe?g|png|bmp|webp)\b`,
		`(?i)\b(identify|diagnose|classify)\b.*\b(disease|pest|infection)\b`,
	},
	capability.CategoryTranslation: {
		`(?i)\btranslate\b`,
		`(?i)\b(in|into|to)\s+(hindi|punjabi|bengali|tamil|telugu|marathi|urdu|spanish|french|german)\b`,
	},
	capability.CategoryRetrieval: {
		`(?i)\b(find|search|look\s*up)\b.*\b(doc(ument)?s?|articles?|papers?|guides?)\b`,
		`"[^"]+"`,
	},
	// Generation carries no structural pattern: it is the universal fallback.
	capability.CategoryGeneration: nil,
}

type patternTable map[capability.Category][]*regexp.Regexp

func compilePatterns(src map[capability.Category][]string) patternTable {
	table := make(patternTable, len(src))
	for cat, exprs := range src {
		for _, expr := range exprs {
			table[cat] = append(table[cat], regexp.MustCompile(expr))
		}
	}
	return table
}

func (t patternTable) matches(cat capability.Category, query string) bool {
	for _, re := range t[cat] {
		if re.MatchString(query) {
			return true
		}
	}
	return false
}
