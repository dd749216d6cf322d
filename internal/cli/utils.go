// Package cli provides report and status output for the imgdedup commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/hyperjump/imgdedup/internal/cache"
	"github.com/hyperjump/imgdedup/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output-format value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json)", s)
	}
}

// WriteResult writes a run result to w in the given format.
func WriteResult(w io.Writer, res *models.Result, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	writeResultText(w, res)
	return nil
}

func writeResultText(w io.Writer, res *models.Result) {
	s := res.Stats
	fmt.Fprintf(w, "\nRun %s (%s): kept %d of %d images, dropped %d in %s\n",
		res.RunID, res.Mode, len(res.Keep), s.Targets, len(res.Dropped), s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Embeddings: %d from cache, %d computed in %d batches\n", s.CacheHits, s.Computed, s.Batches)
	if len(res.Pairs) == 0 {
		return
	}
	fmt.Fprintln(w, "\n--- Dropped duplicates ---")
	for _, p := range res.Pairs {
		fmt.Fprintf(w, "%s\n    duplicates %s (similarity %.4f)\n", p.Duplicate, relTo(p.Duplicate, p.Original), p.Similarity)
	}
	fmt.Fprintln(w)
}

// relTo shortens original to a path relative to duplicate's directory when
// they share one.
func relTo(duplicate, original string) string {
	if filepath.Dir(duplicate) == filepath.Dir(original) {
		return filepath.Base(original)
	}
	return original
}

// WriteCacheStatus writes the cache status to w in the given format.
func WriteCacheStatus(w io.Writer, st *cache.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Backend:    %s\n", st.Backend)
	fmt.Fprintf(w, "Entries:    %d\n", st.Entries)
	fmt.Fprintf(w, "Dimensions: %d\n", st.Dimensions)
	fmt.Fprintf(w, "Disk usage: %s\n", FormatBytes(st.DiskBytes))
	for _, p := range st.Paths {
		fmt.Fprintf(w, "  %s\n", p)
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
