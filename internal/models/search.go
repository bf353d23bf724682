package models

// SearchDocument is the read-side projection of an indexed chunk: the fields
// a caller needs to show or act on a hit, independent of which store shape
// produced it.
type SearchDocument struct {
	FilePath                   string                 `json:"file_path"`
	FunctionName               string                 `json:"function_name,omitempty"`
	ClassName                  string                 `json:"class_name,omitempty"`
	StartLine                  int                    `json:"start_line"`
	EndLine                    int                    `json:"end_line"`
	Language                   string                 `json:"language"`
	NaturalLanguageDescription string                 `json:"natural_language_description,omitempty"`
	OriginalCode               string                 `json:"original_code"`
	Context                    string                 `json:"context,omitempty"`
	Metadata                   map[string]interface{} `json:"metadata,omitempty"`
}

// SearchResult is one ranked hit. Score is normalised to [0,1] where the
// store shape permits it (see vectorstore package docs for which shapes do).
type SearchResult struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Document SearchDocument `json:"document"`
}

// Metadata keys SearchResult.Document.Metadata may carry, populated by the
// search pipeline and the reranker.
const (
	MetaOriginalScore   = "original_score"
	MetaRerankingScore  = "reranking_score"
	MetaVectorRank      = "vector_rank"
	MetaTextRank        = "text_rank"
	MetaDistance        = "distance"
)
