// Package vocab loads the master item vocabulary: the authoritative lists of
// item names that may appear on a waste form, split by waste category. The
// vocabulary is a static configuration artifact loaded once at startup; there
// is no write path.
package vocab

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed master_items.json
var embeddedMasterItems []byte

// Category selects which vocabulary list a lookup runs against.
type Category int

const (
	// RawWaste covers the ingredient-level tables (buns, sauces, meat, ...).
	RawWaste Category = iota
	// CompletedWaste covers finished menu items.
	CompletedWaste
)

func (c Category) String() string {
	if c == CompletedWaste {
		return "completedWaste"
	}
	return "rawWaste"
}

// Vocabulary holds the canonical item lists for both waste categories.
type Vocabulary struct {
	CompletedWaste []string `json:"completedWaste" yaml:"completedWaste"`
	RawWaste       []string `json:"rawWaste" yaml:"rawWaste"`
}

// Load returns the vocabulary from path, or the embedded default list when
// path is empty. JSON and YAML files are supported, keyed by extension.
func Load(path string) (*Vocabulary, error) {
	if path == "" {
		return parse(embeddedMasterItems, ".json")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary file: %w", err)
	}
	v, err := parse(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("parse vocabulary file %s: %w", path, err)
	}
	return v, nil
}

func parse(data []byte, ext string) (*Vocabulary, error) {
	var v Vocabulary
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
	}
	if len(v.CompletedWaste) == 0 && len(v.RawWaste) == 0 {
		return nil, fmt.Errorf("vocabulary contains no items")
	}
	return &v, nil
}

// Items returns the list for the given category. The returned slice is a
// copy; callers may not mutate the vocabulary.
func (v *Vocabulary) Items(c Category) []string {
	var src []string
	if c == CompletedWaste {
		src = v.CompletedWaste
	} else {
		src = v.RawWaste
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
