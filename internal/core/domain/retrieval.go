package domain

const (
	DefaultTopK = 5
	MaxTopK     = 50

	// MinCandidatePool is the floor for how many candidates each channel
	// contributes before fusion.
	MinCandidatePool = 20

	ExcerptLength = 300

	NoRelevantContentMessage = "no relevant content found"
)

// ScoredChunk is a single hit from one retrieval channel.
type ScoredChunk struct {
	Chunk DocumentChunk
	Score float64
}

// RetrievalCandidate merges the lexical and semantic views of one chunk.
// A nil score means the chunk was not returned by that channel.
type RetrievalCandidate struct {
	Chunk         DocumentChunk
	LexicalScore  *float64
	SemanticScore *float64
	CombinedScore float64
}

type RetrievedPassage struct {
	ChunkID       string   `json:"chunk_id"`
	DocumentID    string   `json:"document_id"`
	ChunkIndex    int      `json:"chunk_index"`
	Content       string   `json:"content"`
	SourceExcerpt string   `json:"source_excerpt"`
	StartChar     int      `json:"start_char"`
	EndChar       int      `json:"end_char"`
	CombinedScore float64  `json:"combined_score"`
	LexicalScore  *float64 `json:"lexical_score,omitempty"`
	SemanticScore *float64 `json:"semantic_score,omitempty"`
}

type RetrievalResult struct {
	TenantID string             `json:"tenant_id"`
	Query    string             `json:"query"`
	Items    []RetrievedPassage `json:"items"`
	// Empty is set when neither channel produced a candidate, so callers can
	// tell "no match" apart from a failure.
	Empty    bool     `json:"empty"`
	Message  string   `json:"message,omitempty"`
	Degraded []string `json:"degraded_channels,omitempty"`
}
