package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/pawmatch/internal/embedding"
	"github.com/hyperjump/pawmatch/internal/models"
	"github.com/hyperjump/pawmatch/internal/search"
	"github.com/hyperjump/pawmatch/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultLookupLimit = 20
	maxLookupLimit     = 200
	recommendJPEGQual  = 90
	recentDeadLimit    = 10
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRecommendAndSearch(w http.ResponseWriter, r *http.Request) {
	if err := s.parseUpload(w, r); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	userText := strings.TrimSpace(r.FormValue("user_text"))
	if userText == "" {
		s.respondError(w, http.StatusBadRequest, "user_text is required")
		return
	}
	query, err := s.parseQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	img, err := s.readImage(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	recommendation := ""
	if s.recommender != nil {
		jpegImage, err := embedding.EncodeJPEG(img, recommendJPEGQual)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		recommendation, err = s.recommender.Recommend(r.Context(), userText, jpegImage)
		if err != nil {
			s.logger.Error("recommendation failed", zap.Error(err))
			s.respondError(w, http.StatusBadGateway, "recommendation error: "+err.Error())
			return
		}
	}

	resp, err := s.engine.Search(r.Context(), img, query.TopK)
	if err != nil {
		s.logger.Error("similarity search failed", zap.Error(err))
		s.respondError(w, searchErrorStatus(err), "similarity search error: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, &models.RecommendResponse{
		Recommendation: recommendation,
		Similar:        resp.Similar,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if err := s.parseUpload(w, r); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	query, err := s.parseQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	img, err := s.readImage(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.Int("top_k", query.TopK))
	resp, err := s.engine.Search(r.Context(), img, query.TopK)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, searchErrorStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ranker := s.engine.Ranker()
	resp := &models.StatusResponse{
		CorpusSize:      s.corpus.Len(),
		Dimensions:      s.corpus.Dimensions(),
		IndexType:       ranker.Index().Type(),
		OverFetchFactor: ranker.OverFetchFactor(),
		Embedder:        s.engine.Embedder().Name(),
		Recommender:     s.recommender != nil,
	}
	if s.probeLog != nil {
		stats, err := s.probeLog.Stats(r.Context())
		if err != nil {
			s.logger.Error("status: probe stats failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Probes = stats
		dead, err := s.probeLog.RecentDead(r.Context(), recentDeadLimit)
		if err != nil {
			s.logger.Error("status: recent dead probes failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.RecentDead = dead
	}
	usage, err := storage.DiskUsage(map[string]string{
		"vectors":   s.config.Corpus.VectorsPath,
		"locators":  s.config.Corpus.LocatorsPath,
		"model":     s.config.Embedding.ModelPath,
		"probe_log": s.config.Storage.ProbeLogPath,
	})
	if err != nil {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	} else {
		for _, name := range usage.Names() {
			resp.DiskUsage = append(resp.DiskUsage, models.PathUsage{Name: name, Bytes: usage.ByName[name]})
		}
		resp.DiskUsageBytes = usage.Total
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type corpusEntryResponse struct {
	models.CorpusEntry
	LastProbe *models.ProbeRecord `json:"last_probe,omitempty"`
}

func (s *Server) handleCorpusEntry(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "idx must be an integer")
		return
	}
	loc, ok := s.corpus.Locator(idx)
	if !ok {
		s.respondError(w, http.StatusNotFound, "corpus entry not found")
		return
	}
	resp := corpusEntryResponse{CorpusEntry: models.CorpusEntry{Index: idx, Locator: loc}}
	if s.probeLog != nil {
		last, err := s.probeLog.LastProbe(r.Context(), loc)
		switch {
		case err == nil:
			resp.LastProbe = last
		case !errors.Is(err, storage.ErrNotFound):
			s.logger.Warn("last probe lookup failed", zap.Int("idx", idx), zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCorpusLookup(w http.ResponseWriter, r *http.Request) {
	if s.locators == nil {
		s.respondError(w, http.StatusNotImplemented, "locator lookup not enabled")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := defaultLookupLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLookupLimit)
	}
	entries, err := s.locators.Lookup(r.Context(), q, limit)
	if err != nil {
		s.logger.Error("locator lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": q, "entries": entries})
}

// parseUpload bounds the body and parses the multipart form.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.Server.MaxUploadBytes); err != nil {
		return fmt.Errorf("invalid multipart form: %w", err)
	}
	return nil
}

func (s *Server) parseQuery(r *http.Request) (*models.SearchQuery, error) {
	q := &models.SearchQuery{}
	if v := strings.TrimSpace(r.FormValue("top_k")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("top_k must be an integer")
		}
		q.TopK = n
	}
	if err := q.Validate(s.config.Search.DefaultTopK, s.config.Search.MaxTopK); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Server) readImage(r *http.Request) (image.Image, error) {
	f, _, err := r.FormFile("image")
	if err != nil {
		return nil, fmt.Errorf("image is required")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	img, _, err := embedding.DecodeImage(data, s.config.Server.MaxImagePixels)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// searchErrorStatus maps search failures to HTTP status codes.
func searchErrorStatus(err error) int {
	var (
		dimErr *search.DimensionError
		embErr *search.EmbeddingError
	)
	switch {
	case errors.Is(err, search.ErrInvalidTopK):
		return http.StatusBadRequest
	case errors.As(err, &dimErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &embErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
