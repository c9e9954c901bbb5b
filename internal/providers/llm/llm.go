package llm

import "context"

// Concept is a short extracted topic: a 2-6 word title plus a one-sentence summary.
type Concept struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// ClusterSummary is a human-facing label for one conversation cluster.
type ClusterSummary struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Provider interface {
	// ExtractConcepts returns 0-3 concepts discussed in a single message.
	// An empty result is valid; malformed upstream output is an error.
	ExtractConcepts(ctx context.Context, content string) ([]Concept, error)

	// SummarizeCluster turns the top concepts of a cluster into a short
	// title and a two-sentence description.
	SummarizeCluster(ctx context.Context, topConcepts []string) (*ClusterSummary, error)

	Close() error
}
