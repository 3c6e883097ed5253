// Package similarity implements the cosine-similarity ranker: a plain
// O(n·d) scan over stored embeddings, not an approximate index.
package similarity

import (
	"math"
	"sort"

	"github.com/marmos91/docstore/pkg/record"
)

// Source provides the population the ranker scans.
type Source interface {
	AllIDs() []string
	Get(id string) (*record.Record, error)
}

// Match is one ranked result.
type Match struct {
	ID         string
	Similarity float64
}

// Rank returns the top-k record ids by cosine similarity to query among
// records whose embedding is present and whose folder matches keep (pass a
// predicate that always returns true for no folder restriction). Ties are
// broken by most-recent updated_at, then lexicographic id.
func Rank(src Source, query []float32, k int, keep func(folder string) bool) []Match {
	type candidate struct {
		id         string
		similarity float64
		updatedAt  int64
	}

	var candidates []candidate
	for _, id := range src.AllIDs() {
		r, err := src.Get(id)
		if err != nil || len(r.Embedding) == 0 {
			continue
		}
		if keep != nil && !keep(r.Folder) {
			continue
		}
		if len(r.Embedding) != len(query) {
			continue
		}
		candidates = append(candidates, candidate{
			id:         id,
			similarity: cosine(query, r.Embedding),
			updatedAt:  r.UpdatedAt.UnixNano(),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.similarity != b.similarity {
			return a.similarity > b.similarity
		}
		if a.updatedAt != b.updatedAt {
			return a.updatedAt > b.updatedAt
		}
		return a.id < b.id
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]Match, k)
	for i := 0; i < k; i++ {
		out[i] = Match{ID: candidates[i].id, Similarity: candidates[i].similarity}
	}
	return out
}

func cosine(a []float32, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
