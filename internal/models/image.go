// Package models defines core data structures for images, duplicate pairs, and run results.
package models

import "time"

// ImageRef is one image taking part in a run. Row is its position in the
// embedding matrix built for the list it belongs to.
type ImageRef struct {
	Path string `json:"path"`
	ID   string `json:"id"`
	Row  int    `json:"row"`
}

// DuplicatePair links a dropped image to the image it was found to duplicate.
type DuplicatePair struct {
	Duplicate  string  `json:"duplicate"`
	Original   string  `json:"original"`
	Similarity float32 `json:"similarity"`
}

// RunStats summarises the work done by a run.
type RunStats struct {
	Targets     int           `json:"targets"`
	Comparisons int           `json:"comparisons"`
	CacheHits   int           `json:"cache_hits"`
	Computed    int           `json:"computed"`
	Batches     int           `json:"batches"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}

// Result is the outcome of one deduplication run.
type Result struct {
	RunID   string          `json:"run_id"`
	Mode    string          `json:"mode"`
	Keep    []string        `json:"keep"`
	Dropped []string        `json:"dropped"`
	Pairs   []DuplicatePair `json:"pairs,omitempty"`
	Stats   RunStats        `json:"stats"`
}
