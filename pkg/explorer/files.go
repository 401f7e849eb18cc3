package explorer

import (
	"context"
	"io"
	"path/filepath"

	"github.com/marmos91/cascview/pkg/catalog"
	"github.com/marmos91/cascview/pkg/export"
	"github.com/marmos91/cascview/pkg/storage"
)

// ExportListing writes the resolved-name listing to path. An empty path
// uses the default name for the backend in the working directory.
//
// Returns the number of lines written.
func (s *Session) ExportListing(ctx context.Context, path string) (int, error) {
	if path == "" {
		path = export.DefaultListingName(s.backend)
	}
	n, err := export.ToFile(path, func(w io.Writer) (int, error) {
		return export.Listing(ctx, w, s.catalog, s.backend)
	})
	s.metrics.ObserveExport("listing", n, err)
	return n, err
}

// ExportDirectories writes the unique parent directories of the resolved
// files to path, export.DirectoriesListing when empty.
func (s *Session) ExportDirectories(ctx context.Context, path string) (int, error) {
	if path == "" {
		path = export.DirectoriesListing
	}
	n, err := export.ToFile(path, func(w io.Writer) (int, error) {
		return export.Directories(ctx, w, s.catalog, s.backend)
	})
	s.metrics.ObserveExport("directories", n, err)
	return n, err
}

// Extract saves files under dir at their catalog paths.
func (s *Session) Extract(ctx context.Context, files []*catalog.File, dir string, progress storage.Progress) error {
	return storage.ExtractFiles(ctx, s.backend, files, dir, progress)
}

// ExtractInstallFiles saves the install manifest's files under
// dir/<build>/<platform>_install_files.
func (s *Session) ExtractInstallFiles(ctx context.Context, dir string, progress storage.Progress) error {
	return storage.ExtractInstallFiles(ctx, s.backend, filepath.Clean(dir), progress)
}
