// Package models defines core data structures for pages, chunks, documents, and chat.
package models

// Chunk is a contiguous, token-bounded span of a page's lines, the unit of
// embedding and retrieval. Identity is the exact Text; Title only records
// which page the chunk came from.
type Chunk struct {
	Text  string `json:"text"`
	Title string `json:"title"`
}

// SimilarityResult is a single similarity-search hit. Score is the raw dot
// product of the query vector and the stored vector.
type SimilarityResult struct {
	Score float64 `json:"score"`
	Text  string  `json:"text"`
	Title string  `json:"title"`
}
