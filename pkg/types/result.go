package types

// SearchResult represents a single nearest-neighbor hit
type SearchResult struct {
	// Identification
	ID   string
	Rank int // Position in result set (1-based)

	// Scoring
	Score    float64 // Cosine similarity, 1 - Distance
	Distance float64 // Cosine distance reported by the index

	// Metadata
	Payload map[string]any
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.ID == "" {
		return ErrInvalidPointID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	// Cosine similarity lives in [-1, 1]; allow a little float slack.
	if sr.Score < -1.0001 || sr.Score > 1.0001 {
		return ErrInvalidRelevanceScore
	}

	return nil
}
