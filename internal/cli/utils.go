// Package cli provides output formatting for the pawmatch command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/pawmatch/internal/models"
	"github.com/hyperjump/pawmatch/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// maxLocatorWidth bounds locators in text output.
const maxLocatorWidth = 100

// WriteSearchResults writes a similarity search response to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d live results in %dms (top_k %d, window %d, probed %d)\n\n",
		len(response.Similar), response.QueryTime, response.TopK, response.Window, response.Probed)
	if len(response.Similar) < response.TopK {
		fmt.Fprintf(w, "note: only %d of %d requested results were reachable\n\n", len(response.Similar), response.TopK)
	}
	for rank, c := range response.Similar {
		fmt.Fprintf(w, "%2d. [%d] sim=%.4f  %s\n", rank+1, c.Index, c.Similarity, utils.Truncate(c.Locator, maxLocatorWidth))
	}
	return nil
}

// WriteStatus writes a server status response to w in the given format.
func WriteStatus(w io.Writer, status *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "Corpus:        %d entries x %d dimensions (%s index)\n", status.CorpusSize, status.Dimensions, status.IndexType)
	fmt.Fprintf(w, "Over-fetch:    %dx\n", status.OverFetchFactor)
	fmt.Fprintf(w, "Embedder:      %s\n", status.Embedder)
	fmt.Fprintf(w, "Recommender:   %t\n", status.Recommender)
	if p := status.Probes; p != nil {
		fmt.Fprintf(w, "Probes:        %d total, %d dead (%.1f%%), %d distinct locators\n",
			p.Total, p.Dead, p.DeadRate*100, p.Locators)
	}
	if status.DiskUsageBytes > 0 {
		fmt.Fprintf(w, "Disk usage:    %s\n", FormatBytes(status.DiskUsageBytes))
		for _, u := range status.DiskUsage {
			fmt.Fprintf(w, "  %-12s %s\n", u.Name, FormatBytes(u.Bytes))
		}
	}
	if len(status.RecentDead) > 0 {
		fmt.Fprintln(w, "Recently dead:")
		for _, rec := range status.RecentDead {
			fmt.Fprint(w, "  ")
			WriteProbe(w, rec)
		}
	}
	return nil
}

// WriteProbe writes one probe outcome as a single line.
func WriteProbe(w io.Writer, rec *models.ProbeRecord) {
	state := "DEAD"
	if rec.Alive {
		state = "LIVE"
	}
	line := fmt.Sprintf("%-4s %s", state, rec.Locator)
	if rec.Method != "" {
		line += fmt.Sprintf(" (%s %d", rec.Method, rec.Status)
		if rec.Reason != "" {
			line += ", " + rec.Reason
		}
		line += ")"
	} else if rec.Reason != "" {
		line += " (" + rec.Reason + ")"
	}
	fmt.Fprintf(w, "%s %dms\n", line, rec.Duration.Milliseconds())
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

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
