// Package catalogue is the client for the MODEL CATALOGUE contract of
// spec.md §6: a JSON document naming brands and models, each model
// optionally carrying slicer-profile-name synonyms for §4.I's model
// matcher.
package catalogue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/fetch"
)

// Model is one catalogue entry.
type Model struct {
	ID                 int      `json:"id"`
	Brand              string   `json:"brand"`
	Name               string   `json:"name"`
	SlicerProfileNames []string `json:"slicerProfileNames"`
}

// Catalogue is the decoded document, with brand and model names
// lowercased before use per spec.md §6.
type Catalogue struct {
	Brands []string `json:"-"`
	Models []Model  `json:"-"`
}

type wireDocument struct {
	Brands []string `json:"brands"`
	Models []Model  `json:"models"`
}

// Decode reads and lowercases a catalogue document from r.
func Decode(r io.Reader) (*Catalogue, error) {
	var doc wireDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("catalogue: decode: %w", err)
	}
	c := &Catalogue{}
	for _, b := range doc.Brands {
		c.Brands = append(c.Brands, strings.ToLower(b))
	}
	for _, m := range doc.Models {
		m.Brand = strings.ToLower(m.Brand)
		m.Name = strings.ToLower(m.Name)
		c.Models = append(c.Models, m)
	}
	return c, nil
}

// ModelsByBrand returns every model belonging to the given
// (already-lowercased) brand.
func (c *Catalogue) ModelsByBrand(brand string) []Model {
	var out []Model
	for _, m := range c.Models {
		if m.Brand == brand {
			out = append(out, m)
		}
	}
	return out
}

// HasBrand reports whether brand is a known catalogue brand.
func (c *Catalogue) HasBrand(brand string) bool {
	for _, b := range c.Brands {
		if b == brand {
			return true
		}
	}
	return false
}

// Fetch retrieves and decodes the catalogue document at url using f.
func Fetch(ctx context.Context, f fetch.Fetcher, dstDir, url string) (*Catalogue, error) {
	path, err := fetch.Locate(ctx, f, url, dstDir, "catalogue.json")
	if err != nil {
		return nil, fmt.Errorf("catalogue: locate: %w", err)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalogue: open: %w", err)
	}
	defer file.Close()
	return Decode(file)
}
