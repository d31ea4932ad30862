package model

import "strconv"

// Chunk is a bounded unit of source-document text.
type Chunk struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// ChunkID returns the identifier for the n-th chunk (1-based).
func ChunkID(n int) string {
	return "chunk_" + strconv.Itoa(n)
}

// Candidate is one mapping proposed by the extraction client.
type Candidate struct {
	Key           string `json:"key"`
	ExtractedData string `json:"extracted_data"`
}
