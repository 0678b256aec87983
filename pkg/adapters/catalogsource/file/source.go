// Package file loads a schema catalog from a YAML document.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/datagenie-engine/pkg/adapters/catalogsource"
	"github.com/ekaya-inc/datagenie-engine/pkg/catalog"
	"github.com/ekaya-inc/datagenie-engine/pkg/models"
)

// Config contains file source options.
type Config struct {
	Path string
	// InferTags fills semantic tags from column types when a column declares none.
	InferTags bool
}

// FromMap creates a Config from the catalog source settings.
func FromMap(config map[string]any) (*Config, error) {
	settings := catalogsource.Settings(config)
	path, err := settings.Require("path")
	if err != nil {
		return nil, err
	}
	return &Config{Path: path, InferTags: settings.Bool("infer_tags", true)}, nil
}

type document struct {
	Tables []models.Table `yaml:"tables"`
}

// Source reads the catalog file on every Load so edits are picked up by reloads.
type Source struct {
	config *Config
	logger *zap.Logger
}

var _ catalogsource.Source = (*Source)(nil)

// NewSource creates a file source. If logger is nil, a no-op logger is used.
func NewSource(cfg *Config, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{config: cfg, logger: logger.Named("catalog-file")}
}

// Load implements catalogsource.Source.
func (s *Source) Load(ctx context.Context) (*catalog.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.config.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	cat, err := Parse(bytes.NewReader(data), s.config.InferTags)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.config.Path, err)
	}
	s.logger.Debug("Loaded catalog file",
		zap.String("path", s.config.Path),
		zap.Int("tables", cat.Len()),
		zap.String("fingerprint", cat.Fingerprint()))
	return cat, nil
}

// Close implements catalogsource.Source.
func (s *Source) Close() error { return nil }

// Parse decodes a YAML catalog document. Unknown fields are rejected so that
// misspelled keys do not silently drop columns.
func Parse(r io.Reader, inferTags bool) (*catalog.Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("catalog document is empty")
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("catalog declares no tables")
	}

	if inferTags {
		for ti := range doc.Tables {
			cols := doc.Tables[ti].Columns
			for ci := range cols {
				if len(cols[ci].SemanticTags) == 0 {
					cols[ci].SemanticTags = catalogsource.InferTags(cols[ci], false)
				}
			}
		}
	}
	return catalog.New(doc.Tables)
}

func init() {
	catalogsource.Register(catalogsource.Registration{
		Info: catalogsource.SourceInfo{
			Type:        "file",
			DisplayName: "YAML file",
			Description: "Catalog described in a YAML document",
		},
		Factory: func(ctx context.Context, config map[string]any, logger *zap.Logger) (catalogsource.Source, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewSource(cfg, logger), nil
		},
	})
}
