package search

import (
	"context"
	"errors"
	"image"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperjump/pawmatch/internal/corpus"
	"github.com/hyperjump/pawmatch/internal/liveness"
	"github.com/hyperjump/pawmatch/internal/metrics"
	"go.uber.org/zap"
)

// fixedEmbedder returns the same vector for every image.
type fixedEmbedder struct {
	vec []float32
	err error
}

func (f *fixedEmbedder) Embed(context.Context, image.Image) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.vec...), nil
}
func (f *fixedEmbedder) Dimensions() int { return len(f.vec) }
func (f *fixedEmbedder) Name() string    { return "fixed" }
func (f *fixedEmbedder) Close() error    { return nil }

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/live/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
	})
	mux.HandleFunc("/dead/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// scenarioCorpus has four entries; entry 3 is the closest neighbour of entry 2 but is unreachable.
func scenarioCorpus(t *testing.T, base string) (*corpus.Corpus, [][]float32) {
	t.Helper()
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 0.6, 0.8, 0},
		{0, 0, 1, 0},
		{0, 0.3, 0.95, 0},
	}
	locators := []string{
		base + "/live/0.jpg",
		base + "/live/1.jpg",
		base + "/live/2.jpg",
		base + "/dead/3.jpg",
	}
	c, err := corpus.New(vectors, locators)
	if err != nil {
		t.Fatal(err)
	}
	return c, vectors
}

func newTestEngine(t *testing.T, c *corpus.Corpus, emb *fixedEmbedder, concurrency int, m *metrics.Metrics) *Engine {
	t.Helper()
	r, err := NewRanker(c, 3)
	if err != nil {
		t.Fatal(err)
	}
	prober := liveness.NewProber()
	filter := liveness.NewFilter(prober, liveness.WithConcurrency(concurrency), liveness.WithMetrics(m))
	return NewEngine(emb, r, filter, WithLogger(zap.NewNop()), WithMetrics(m))
}

func TestEngine_SearchSkipsDeadLocators(t *testing.T) {
	srv := imageServer(t)
	for _, conc := range []int{1, 4} {
		c, vectors := scenarioCorpus(t, srv.URL)
		e := newTestEngine(t, c, &fixedEmbedder{vec: vectors[2]}, conc, metrics.New("test", false))

		resp, err := e.Search(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)), 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Similar) != 2 {
			t.Fatalf("concurrency %d: got %d results, want 2", conc, len(resp.Similar))
		}
		first, second := resp.Similar[0], resp.Similar[1]
		if first.Index != 2 || math.Abs(first.Similarity-1) > 1e-5 {
			t.Errorf("first = %+v, want idx 2 with sim 1", first)
		}
		if second.Index != 1 {
			t.Errorf("second = %+v, want idx 1 (idx 3 is dead)", second)
		}
		if second.Similarity > first.Similarity {
			t.Error("results not in descending order")
		}
		if resp.Window != 4 {
			t.Errorf("window = %d, want 4 (capped at corpus size)", resp.Window)
		}
		if resp.Probed != 3 {
			t.Errorf("probed = %d, want 3", resp.Probed)
		}
		if resp.RequestID == "" || resp.TopK != 2 {
			t.Errorf("response metadata = %+v", resp)
		}
	}
}

func TestEngine_SearchShortfall(t *testing.T) {
	srv := imageServer(t)
	c, vectors := scenarioCorpus(t, srv.URL)
	e := newTestEngine(t, c, &fixedEmbedder{vec: vectors[2]}, 1, nil)

	resp, err := e.Search(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Similar) != 3 {
		t.Errorf("got %d results, want the 3 live entries", len(resp.Similar))
	}
}

func TestEngine_SearchEmbeddingError(t *testing.T) {
	c, _ := scenarioCorpus(t, "http://example.invalid")
	e := newTestEngine(t, c, &fixedEmbedder{err: errors.New("backend down")}, 1, nil)

	_, err := e.Search(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)), 2)
	var ee *EmbeddingError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EmbeddingError, got %v", err)
	}
	if ErrorClass(err) != "embedding_error" {
		t.Errorf("ErrorClass = %s", ErrorClass(err))
	}
}

func TestEngine_SearchDimensionError(t *testing.T) {
	c, _ := scenarioCorpus(t, "http://example.invalid")
	e := newTestEngine(t, c, &fixedEmbedder{vec: []float32{1, 0}}, 1, nil)

	_, err := e.Search(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)), 2)
	var de *DimensionError
	if !errors.As(err, &de) {
		t.Fatalf("expected DimensionError, got %v", err)
	}
	if ErrorClass(err) != "dimension_error" {
		t.Errorf("ErrorClass = %s", ErrorClass(err))
	}
}

func TestEngine_invalidTopK(t *testing.T) {
	c, vectors := scenarioCorpus(t, "http://example.invalid")
	e := newTestEngine(t, c, &fixedEmbedder{vec: vectors[0]}, 1, nil)
	if _, err := e.Search(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)), 0); !errors.Is(err, ErrInvalidTopK) {
		t.Errorf("Search topK=0: %v", err)
	}
	if _, err := e.SearchVector(context.Background(), vectors[0], -1); !errors.Is(err, ErrInvalidTopK) {
		t.Errorf("SearchVector topK=-1: %v", err)
	}
}

func TestEngine_SearchVectorDeterministic(t *testing.T) {
	srv := imageServer(t)
	c, vectors := scenarioCorpus(t, srv.URL)
	e := newTestEngine(t, c, &fixedEmbedder{vec: vectors[0]}, 2, nil)

	first, err := e.SearchVector(context.Background(), vectors[1], 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := e.SearchVector(context.Background(), vectors[1], 3)
		if err != nil {
			t.Fatal(err)
		}
		for j := range first.Similar {
			if first.Similar[j] != again.Similar[j] {
				t.Fatalf("run %d differs: %v vs %v", i, first.Similar, again.Similar)
			}
		}
	}
}

func TestErrorClass(t *testing.T) {
	if ErrorClass(nil) != "ok" {
		t.Error("nil should be ok")
	}
	if ErrorClass(&RankError{Err: errors.New("x")}) != "rank_error" {
		t.Error("rank error class")
	}
	if ErrorClass(errors.New("other")) != "error" {
		t.Error("generic error class")
	}
}

// slowImageServer answers every request as a live image after delay.
func slowImageServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEngine_SearchDeadlineDuringLivenessIsAnError(t *testing.T) {
	srv := slowImageServer(t, 300*time.Millisecond)
	vectors := [][]float32{{1, 0}, {0.9, 0.1}, {0.8, 0.2}, {0.7, 0.3}}
	locators := []string{srv.URL + "/0.jpg", srv.URL + "/1.jpg", srv.URL + "/2.jpg", srv.URL + "/3.jpg"}
	c, err := corpus.New(vectors, locators)
	if err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t, c, &fixedEmbedder{vec: []float32{1, 0}}, 1, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 450*time.Millisecond)
	defer cancel()
	resp, err := e.Search(ctx, image.NewRGBA(image.Rect(0, 0, 1, 1)), 3)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if resp != nil {
		t.Errorf("partial response returned: %+v", resp)
	}
	if ErrorClass(err) != "timeout" {
		t.Errorf("ErrorClass = %s, want timeout", ErrorClass(err))
	}
}

func TestEngine_SearchQuotaMetBeforeDeadline(t *testing.T) {
	srv := slowImageServer(t, 50*time.Millisecond)
	c, err := corpus.New([][]float32{{1, 0}, {0, 1}}, []string{srv.URL + "/0.jpg", srv.URL + "/1.jpg"})
	if err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t, c, &fixedEmbedder{vec: []float32{1, 0}}, 1, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := e.Search(ctx, image.NewRGBA(image.Rect(0, 0, 1, 1)), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Similar) != 1 || resp.Similar[0].Index != 0 {
		t.Errorf("similar = %+v", resp.Similar)
	}
}
