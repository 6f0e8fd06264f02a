package templates

import (
	"context"
	_ "embed"
	"fmt"
	"os"
)

// Source produces the template table.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	Load(ctx context.Context) (LoadResult, error)
}

//go:embed data/caribbean.yaml
var embeddedData []byte

// FileSource reads a YAML or JSON data file from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Load(_ context.Context) (LoadResult, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return LoadResult{}, fmt.Errorf("read templates: %w", err)
	}
	return Parse(data)
}

type embeddedSource struct{}

// EmbeddedSource returns the data set compiled into the binary.
func EmbeddedSource() Source { return embeddedSource{} }

func (embeddedSource) Name() string { return "embedded" }

func (embeddedSource) Load(_ context.Context) (LoadResult, error) {
	return Parse(embeddedData)
}

// StoreSource reads templates previously imported into a Store.
type StoreSource struct {
	Store *Store
}

func (s StoreSource) Name() string { return "sqlite:" + s.Store.Path() }

func (s StoreSource) Load(ctx context.Context) (LoadResult, error) {
	records, err := s.Store.List(ctx)
	if err != nil {
		return LoadResult{}, err
	}
	return Build(records), nil
}
