package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/hashicorp/go-hclog"
)

type legacyMovie struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	FileID     string  `json:"file_id"`
	Desc       string  `json:"desc"`
	ParentCode *string `json:"parent_code"`
	Views      int64   `json:"views"`
}

// LoadLegacyJSON reads a movies.json snapshot keyed by code. A missing file
// yields no movies and no error.
func LoadLegacyJSON(path string) ([]Movie, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var data map[string]legacyMovie
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	codes := make([]string, 0, len(data))
	for code := range data {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	movies := make([]Movie, 0, len(codes))
	for _, code := range codes {
		lm := data[code]
		kind := lm.Type
		if kind == "" {
			kind = string(KindVideo)
		}
		var parent *string
		if lm.ParentCode != nil {
			parent = NormalizeParent(*lm.ParentCode)
		}
		if parent != nil && *parent == NormalizeCode(code) {
			parent = nil
		}
		movies = append(movies, Movie{
			Code:        NormalizeCode(code),
			Name:        lm.Name,
			Kind:        KindOf(kind),
			FileRef:     lm.FileID,
			Description: lm.Desc,
			ParentCode:  parent,
			Views:       lm.Views,
		})
	}
	return movies, nil
}

// ImportLegacyJSON loads path into the store without overwriting existing codes.
// A broken snapshot is logged and skipped so startup continues.
func ImportLegacyJSON(ctx context.Context, store MovieStore, path string, log hclog.Logger) (int64, error) {
	movies, err := LoadLegacyJSON(path)
	if err != nil {
		log.Error("legacy import skipped", "path", path, "error", err)
		return 0, nil
	}
	if len(movies) == 0 {
		return 0, nil
	}
	n, err := store.ImportMovies(ctx, movies)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", path, err)
	}
	log.Info("legacy movies imported", "path", path, "inserted", n, "total", len(movies))
	return n, nil
}
