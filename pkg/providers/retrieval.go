// SPDX-License-Identifier: Apache-2.0

package providers

import (
	"context"

	"github.com/demeterhq/demeter/pkg/capability"
	"github.com/demeterhq/demeter/pkg/retrieval"
)

// DefaultRetrievalLimit bounds the snippets returned per query.
const DefaultRetrievalLimit = 5

// Retrieval exposes semantic document search as the rag_retrieval
// capability.
type Retrieval struct {
	retriever *retrieval.Retriever
	limit     int
}

// NewRetrieval creates the retrieval provider. A non-positive limit
// falls back to DefaultRetrievalLimit.
func NewRetrieval(r *retrieval.Retriever, limit int) *Retrieval {
	if limit <= 0 {
		limit = DefaultRetrievalLimit
	}
	return &Retrieval{retriever: r, limit: limit}
}

// Descriptor returns the registry entry for this provider.
func (p *Retrieval) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		Name:        "rag_retrieval",
		Invoke:      capability.InvokerFunc(p.invoke),
		Description: "Searches the agricultural knowledge base for relevant document snippets",
		Category:    capability.CategoryRetrieval,
		Keywords:    []string{"find", "search", "docs", "document", "information", "lookup"},
	}
}

func (p *Retrieval) invoke(ctx context.Context, args map[string]any) capability.Result {
	query := stringArg(args, "query")
	if query == "" {
		return capability.Fail("missing query argument")
	}

	snippets, err := p.retriever.Retrieve(ctx, query, p.limit)
	if err != nil {
		return capability.Fail(err.Error())
	}

	payload := make([]any, 0, len(snippets))
	for _, s := range snippets {
		payload = append(payload, map[string]any{
			"doc_id": s.DocID,
			"text":   s.Text,
			"source": s.Source,
			"score":  s.Score,
		})
	}
	return capability.Ok(payload)
}
