package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/pawmatch/internal/models"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		RequestID: "req-1",
		Similar: []models.Candidate{
			{Index: 7, Similarity: 0.91, Locator: "https://images.example/beagle.jpg"},
			{Index: 2, Similarity: 0.85, Locator: "https://images.example/corgi.jpg"},
		},
		TopK:      3,
		Window:    9,
		Probed:    9,
		QueryTime: 42,
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	response := sampleResponse()
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.RequestID != "req-1" || decoded.QueryTime != 42 {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(decoded.Similar) != 2 || decoded.Similar[0].Index != 7 {
		t.Errorf("decoded similar = %+v", decoded.Similar)
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Found 2 live results in 42ms",
		"window 9",
		"only 2 of 3 requested results were reachable",
		" 1. [7] sim=0.9100  https://images.example/beagle.jpg",
		" 2. [2] sim=0.8500  https://images.example/corgi.jpg",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_TextNoShortfall(t *testing.T) {
	resp := sampleResponse()
	resp.TopK = 2
	var buf bytes.Buffer
	_ = WriteSearchResults(&buf, resp, OutputText)
	if strings.Contains(buf.String(), "note:") {
		t.Errorf("unexpected shortfall note:\n%s", buf.String())
	}
}

func TestWriteStatus(t *testing.T) {
	status := &models.StatusResponse{
		CorpusSize:      20580,
		Dimensions:      512,
		IndexType:       "memory",
		OverFetchFactor: 3,
		Embedder:        "onnx",
		Probes:          &models.ProbeStats{Total: 10, Dead: 2, DeadRate: 0.2, Locators: 8},
		RecentDead: []*models.ProbeRecord{
			{Locator: "http://a/gone.jpg", Status: 404, Method: "GET"},
		},
		DiskUsage: []models.PathUsage{
			{Name: "probe_log", Bytes: 1 << 20},
			{Name: "vectors", Bytes: 2 << 20},
		},
		DiskUsageBytes: 3 << 20,
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, status, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"20580 entries x 512 dimensions",
		"2 dead (20.0%)",
		"Disk usage:    3.0 MiB",
		"  probe_log    1.0 MiB",
		"  vectors      2.0 MiB",
		"  DEAD http://a/gone.jpg (GET 404) 0ms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteProbe(t *testing.T) {
	tests := []struct {
		rec  models.ProbeRecord
		want string
	}{
		{models.ProbeRecord{Locator: "http://a/1.jpg", Alive: true, Status: 200, Method: "HEAD", Duration: 12 * time.Millisecond},
			"LIVE http://a/1.jpg (HEAD 200) 12ms\n"},
		{models.ProbeRecord{Locator: "http://a/2.jpg", Status: 404, Method: "GET", Reason: "status 404"},
			"DEAD http://a/2.jpg (GET 404, status 404) 0ms\n"},
		{models.ProbeRecord{Locator: "bogus", Reason: "invalid locator"},
			"DEAD bogus (invalid locator) 0ms\n"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		WriteProbe(&buf, &tt.rec)
		if buf.String() != tt.want {
			t.Errorf("WriteProbe = %q, want %q", buf.String(), tt.want)
		}
	}
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": OutputText, "text": OutputText, "json": OutputJSON} {
		got, err := ParseOutputFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseOutputFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:       "0 B",
		1023:    "1023 B",
		1024:    "1.0 KiB",
		1536:    "1.5 KiB",
		5 << 30: "5.0 GiB",
	}
	for n, want := range tests {
		if got := FormatBytes(n); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
