// Package corpus loads the precomputed reference corpus: a matrix of image embeddings and the
// parallel list of resource locators they were computed from.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hyperjump/pawmatch/pkg/utils"
)

// Vector file formats understood by Load.
const (
	FormatNPY = "npy"
	FormatRaw = "raw"
)

// ReasonCountMismatch is the LoadError reason when vector rows and locators differ in number.
const ReasonCountMismatch = "count mismatch"

// ReasonNonFinite is the LoadError reason when a vector holds NaN or an infinity.
const ReasonNonFinite = "non-finite value"

// LoadError reports an inconsistent or unreadable corpus. It is fatal at startup.
type LoadError struct {
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corpus load: %s: %v", e.Reason, e.Err)
	}
	return "corpus load: " + e.Reason
}

func (e *LoadError) Unwrap() error { return e.Err }

// Corpus is the immutable, index-aligned pair of unit vectors and locators.
// It is safe for concurrent readers; nothing mutates it after construction.
type Corpus struct {
	vectors  [][]float32
	locators []string
	dim      int
}

// LoadOptions configures Load.
type LoadOptions struct {
	// Format is FormatNPY (default) or FormatRaw.
	Format string
	// Dimensions is required for FormatRaw and checked against the file for FormatNPY when > 0.
	Dimensions int
}

// Load reads the vector file and the JSON locator array, validates that their counts match,
// and L2-normalizes every row.
func Load(vectorPath, locatorPath string, opts LoadOptions) (*Corpus, error) {
	vectors, err := readVectors(vectorPath, opts)
	if err != nil {
		return nil, err
	}
	locators, err := readLocators(locatorPath)
	if err != nil {
		return nil, err
	}
	return New(vectors, locators)
}

// New builds a corpus from in-memory rows. Rows are copied before normalization.
func New(vectors [][]float32, locators []string) (*Corpus, error) {
	if len(vectors) != len(locators) {
		return nil, &LoadError{
			Reason: ReasonCountMismatch,
			Err:    fmt.Errorf("%d vectors, %d locators", len(vectors), len(locators)),
		}
	}
	if len(vectors) == 0 {
		return nil, &LoadError{Reason: "empty corpus"}
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, &LoadError{Reason: "zero-dimensional vectors"}
	}
	rows := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, &LoadError{
				Reason: "inconsistent dimensions",
				Err:    fmt.Errorf("row %d has %d values, expected %d", i, len(v), dim),
			}
		}
		if j := utils.FirstNonFinite(v); j >= 0 {
			return nil, &LoadError{
				Reason: ReasonNonFinite,
				Err:    fmt.Errorf("row %d column %d is %v", i, j, v[j]),
			}
		}
		row := make([]float32, dim)
		copy(row, v)
		utils.NormalizeL2(row)
		rows[i] = row
	}
	return &Corpus{
		vectors:  rows,
		locators: append([]string(nil), locators...),
		dim:      dim,
	}, nil
}

// Len returns the number of entries.
func (c *Corpus) Len() int { return len(c.vectors) }

// Dimensions returns the vector dimensionality.
func (c *Corpus) Dimensions() int { return c.dim }

// Vector returns row i. Callers must not modify the returned slice.
func (c *Corpus) Vector(i int) []float32 { return c.vectors[i] }

// Locator returns the locator of entry i.
func (c *Corpus) Locator(i int) (string, bool) {
	if i < 0 || i >= len(c.locators) {
		return "", false
	}
	return c.locators[i], true
}

// Locators returns a copy of all locators in corpus order.
func (c *Corpus) Locators() []string {
	return append([]string(nil), c.locators...)
}

func readVectors(path string, opts LoadOptions) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Reason: "open vectors", Err: err}
	}
	defer f.Close()

	var rows [][]float32
	switch opts.Format {
	case FormatNPY, "":
		rows, err = ReadNPY(f)
	case FormatRaw:
		rows, err = ReadRaw(f, opts.Dimensions)
	default:
		return nil, &LoadError{Reason: "unknown vector format", Err: fmt.Errorf("%q (supported: npy, raw)", opts.Format)}
	}
	if err != nil {
		return nil, &LoadError{Reason: "read vectors", Err: err}
	}
	if opts.Dimensions > 0 && len(rows) > 0 && len(rows[0]) != opts.Dimensions {
		return nil, &LoadError{
			Reason: "dimension mismatch",
			Err:    fmt.Errorf("file has %d, configured %d", len(rows[0]), opts.Dimensions),
		}
	}
	return rows, nil
}

func readLocators(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Reason: "open locators", Err: err}
	}
	var locators []string
	if err := json.Unmarshal(data, &locators); err != nil {
		return nil, &LoadError{Reason: "locators must be a JSON array of strings", Err: err}
	}
	return locators, nil
}
