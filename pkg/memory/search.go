package memory

import (
	"github.com/jrhatch/mnemo/pkg/vecmath"
)

// SearchConfig holds semantic search tunables. The similarity threshold and
// result count are inherited defaults from the embedding model, not inherent
// to the design, so both are configuration.
type SearchConfig struct {
	// TopK is the default maximum number of matches. Default: 8.
	TopK int

	// MinSimilarity discards matches below this cosine similarity.
	// Default: 0.7.
	MinSimilarity float64
}

// DefaultSearchConfig returns the stock search tunables.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		TopK:          8,
		MinSimilarity: 0.7,
	}
}

// SearchEngine ranks candidate messages against a query vector by cosine
// similarity. A linear scan is used; at the supported scale (a few thousand
// messages) this completes in tens of milliseconds without an index.
type SearchEngine struct {
	cfg SearchConfig

	// modelVersion, when set, restricts matching to embeddings produced by
	// the same model version; vectors from different versions are never
	// compared.
	modelVersion string
}

// NewSearchEngine creates an engine with defaults applied.
func NewSearchEngine(cfg SearchConfig, modelVersion string) *SearchEngine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultSearchConfig().TopK
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = DefaultSearchConfig().MinSimilarity
	}
	return &SearchEngine{cfg: cfg, modelVersion: modelVersion}
}

// Search ranks candidates against queryVec and returns up to topK matches
// with similarity >= minSimilarity, most similar first. Ties are broken by
// more recent message timestamp. Zero-norm vectors score 0 and are never
// matches. Pass topK <= 0 or minSimilarity < 0 to use the engine defaults.
func (e *SearchEngine) Search(queryVec []float32, candidates []Candidate, topK int, minSimilarity float64) []Match {
	if topK <= 0 {
		topK = e.cfg.TopK
	}
	if minSimilarity < 0 {
		minSimilarity = e.cfg.MinSimilarity
	}

	var matches []Match
	for _, c := range candidates {
		if e.modelVersion != "" && c.Embedding.Tags[TagModelVersion] != e.modelVersion {
			continue
		}
		sim := vecmath.CosineSimilarity(queryVec, c.Embedding.Vector)
		if sim < minSimilarity {
			continue
		}
		matches = append(matches, Match{
			Message:        c.Message,
			Similarity:     sim,
			ConversationID: c.Message.ConversationID,
		})
	}

	sortMatches(matches)

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// sortMatches orders matches by similarity descending, breaking ties with
// the more recent message first. This is the single ordering point; change
// the tie-break here if a different rule is ever needed.
func sortMatches(matches []Match) {
	// Insertion sort - candidate sets are small.
	for i := 1; i < len(matches); i++ {
		key := matches[i]
		j := i - 1
		for j >= 0 && lessMatch(matches[j], key) {
			matches[j+1] = matches[j]
			j--
		}
		matches[j+1] = key
	}
}

func lessMatch(a, b Match) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity < b.Similarity
	}
	return a.Message.Timestamp.Before(b.Message.Timestamp)
}
