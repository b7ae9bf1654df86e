// Package trackfile loads stitched storm track files from disk.
package trackfile

import (
	"context"
	"fmt"
	"os"

	"github.com/couchcryptid/storm-track-tagger/internal/domain"
)

// Loader returns the parsed track table for a file.
type Loader interface {
	Load(ctx context.Context, path string, mode domain.MeshMode) (domain.TrackTable, error)
}

// FileLoader parses the file on every call.
type FileLoader struct{}

func (FileLoader) Load(ctx context.Context, path string, mode domain.MeshMode) (domain.TrackTable, error) {
	if err := ctx.Err(); err != nil {
		return domain.TrackTable{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return domain.TrackTable{}, fmt.Errorf("open track file: %w", err)
	}
	defer f.Close()

	table, err := domain.ParseTracks(f, mode)
	if err != nil {
		return domain.TrackTable{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return table, nil
}
