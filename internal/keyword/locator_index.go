// Package keyword provides term lookup over corpus locators with Bleve.
package keyword

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/pawmatch/internal/models"
)

// batchSize is the number of locators indexed per Bleve batch.
const batchSize = 1000

// LocatorIndex is an in-memory Bleve index over corpus locators, keyed by corpus index.
// It is built once and only read afterwards.
type LocatorIndex struct {
	index bleve.Index
}

type locatorDoc struct {
	URL   string `json:"url"`
	Host  string `json:"host"`
	Terms string `json:"terms"`
}

// NewLocatorIndex creates an empty in-memory index.
func NewLocatorIndex() (*LocatorIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	termsMapping := bleve.NewTextFieldMapping()
	// Standard analyzer lowercases without stemming, so breed names match as written.
	termsMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("terms", termsMapping)
	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keywordanalyzer.Name
	docMapping.AddFieldMappingsAt("url", exact)
	docMapping.AddFieldMappingsAt("host", exact)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &LocatorIndex{index: index}, nil
}

// IndexLocators adds every locator under its position in the slice.
func (l *LocatorIndex) IndexLocators(ctx context.Context, locators []string) error {
	batch := l.index.NewBatch()
	for i, loc := range locators {
		if err := batch.Index(strconv.Itoa(i), newLocatorDoc(loc)); err != nil {
			return fmt.Errorf("index locator %d: %w", i, err)
		}
		if batch.Size() >= batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := l.index.Batch(batch); err != nil {
				return fmt.Errorf("Bleve batch failed: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := l.index.Batch(batch); err != nil {
			return fmt.Errorf("Bleve batch failed: %w", err)
		}
	}
	return nil
}

// Lookup returns up to limit corpus entries whose locator contains every term of query,
// best match first and ties by ascending index.
func (l *LocatorIndex) Lookup(ctx context.Context, query string, limit int) ([]models.CorpusEntry, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []models.CorpusEntry{}, nil
	}
	mq := bleve.NewMatchQuery(strings.Join(splitTerms(query), " "))
	mq.SetField("terms")
	mq.SetOperator(blevequery.MatchQueryOperatorAnd)

	req := bleve.NewSearchRequest(mq)
	req.Size = limit
	req.Fields = []string{"url"}
	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]models.CorpusEntry, 0, len(res.Hits))
	for _, hit := range res.Hits {
		idx, err := strconv.Atoi(hit.ID)
		if err != nil {
			continue
		}
		loc, _ := hit.Fields["url"].(string)
		out = append(out, models.CorpusEntry{Index: idx, Locator: loc, Score: hit.Score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

// DocCount returns the number of indexed locators.
func (l *LocatorIndex) DocCount() (uint64, error) {
	return l.index.DocCount()
}

// Close releases the index.
func (l *LocatorIndex) Close() error {
	return l.index.Close()
}

func newLocatorDoc(loc string) locatorDoc {
	doc := locatorDoc{URL: loc, Terms: strings.Join(splitTerms(loc), " ")}
	if u, err := url.Parse(loc); err == nil {
		doc.Host = u.Hostname()
	}
	return doc
}

// splitTerms breaks a locator into lowercase alphanumeric runs.
func splitTerms(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
