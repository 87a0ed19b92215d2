// ABOUTME: Best-effort similarity lookup that never fails its caller
// ABOUTME: Query errors are logged and reported as an empty result
package store

import (
	"context"

	"github.com/charmbracelet/log"
)

// SimilarBodies returns the bodies of up to k records nearest to embedding.
// A failing query yields an empty slice.
func SimilarBodies(ctx context.Context, s Store, logger *log.Logger, embedding []float32, k int, f Filter) []string {
	matches, err := SimilarMatches(ctx, s, logger, embedding, k, f)
	if err != nil {
		return []string{}
	}
	bodies := make([]string, 0, len(matches))
	for _, m := range matches {
		bodies = append(bodies, m.Message.Body)
	}
	return bodies
}

// SimilarMatches is QuerySimilar with the failure logged, for callers that degrade on error
func SimilarMatches(ctx context.Context, s Store, logger *log.Logger, embedding []float32, k int, f Filter) ([]Match, error) {
	if k <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	matches, err := s.QuerySimilar(ctx, embedding, k, f)
	if err != nil {
		if logger != nil {
			logger.Warn("similarity query failed", "k", k, "filter", f.String(), "err", err)
		}
		return nil, err
	}
	return matches, nil
}
