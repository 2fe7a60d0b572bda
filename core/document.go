package core

// Document is a unit of knowledge base input. Source is the identity key used
// for upserts: re-ingesting a document with the same source overwrites it.
type Document struct {
	Text     string         `json:"text"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Passage is a ranked knowledge base search hit.
type Passage struct {
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
