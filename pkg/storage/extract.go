package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/marmos91/cascview/internal/logger"
	"github.com/marmos91/cascview/pkg/catalog"
)

// Progress receives a completion percentage in [0, 100].
type Progress func(percent int)

// InstallPlatforms are the platforms install files are extracted for.
var InstallPlatforms = []string{"Windows", "OSX"}

// InstallTags narrow the install entries of each platform.
var InstallTags = []string{"x86_64", "US"}

// SaveTo copies the bytes of hash to dir/name. name may use either path
// separator; missing directories are created.
func SaveTo(ctx context.Context, b Backend, hash catalog.Hash, dir, name string) error {
	parts := catalog.SplitPath(name)
	for _, p := range parts {
		if p == ".." {
			return fmt.Errorf("refusing to write outside %s: %q", dir, name)
		}
	}

	rc, err := b.OpenFile(ctx, hash)
	if err != nil {
		return err
	}
	defer rc.Close()

	target := filepath.Join(append([]string{dir}, parts...)...)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return f.Close()
}

// ExtractFiles saves every file under dir at its full catalog path.
func ExtractFiles(ctx context.Context, b Backend, files []*catalog.File, dir string, progress Progress) error {
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := SaveTo(ctx, b, f.Hash(), dir, f.FullPath()); err != nil {
			return fmt.Errorf("extract %s: %w", f.FullPath(), err)
		}
		report(progress, i+1, len(files))
	}
	return nil
}

// ExtractInstallFiles saves the install files of every platform in
// InstallPlatforms under dir/<build>/<platform>_install_files.
//
// Entries whose bytes the backend does not hold are skipped. Progress is
// reported per platform, after each file.
func ExtractInstallFiles(ctx context.Context, b Backend, dir string, progress Progress) error {
	install, ok := b.(catalog.InstallSource)
	if !ok {
		return fmt.Errorf("backend has no install manifest: %w", ErrNotFound)
	}

	build := "unknown"
	if info, ok := b.(BuildInfo); ok && info.BuildName() != "" {
		build = info.BuildName()
	}

	for _, platform := range InstallPlatforms {
		tags := append([]string{platform}, InstallTags...)
		entries := install.InstallEntries(tags...)
		target := filepath.Join(dir, build, platform+"_install_files")

		for i, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := SaveTo(ctx, b, e.Hash, target, e.Name)
			switch {
			case errors.Is(err, ErrNotFound):
				logger.Warn("Install file %s (%s) not in storage, skipping", e.Name, e.Hash)
			case err != nil:
				return fmt.Errorf("extract install file %s: %w", e.Name, err)
			}
			report(progress, i+1, len(entries))
		}
		logger.Info("Extracted %d %s install files to %s", len(entries), platform, target)
	}
	return nil
}

func report(progress Progress, done, total int) {
	if progress == nil || total == 0 {
		return
	}
	progress(done * 100 / total)
}
