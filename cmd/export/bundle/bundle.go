// Package bundle packs stem sets into archives and unpacks them again.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

var ErrUnsupportedFormat = errors.New("unsupported archive format")

// Format returns the archive format for name, or for override when set.
func Format(name, override string) (archives.Format, error) {
	if override != "" {
		return parseFormat(override)
	}
	return formatFromExtension(name)
}

// IsBundle reports whether path looks like an archive by its extension.
func IsBundle(path string) bool {
	_, err := formatFromExtension(path)
	return err == nil
}

func parseFormat(format string) (archives.Format, error) {
	switch strings.ToLower(format) {
	case "tar":
		return archives.Tar{}, nil
	case "tar.gz", "tgz":
		return archives.CompressedArchive{
			Archival:    archives.Tar{},
			Compression: archives.Gz{},
		}, nil
	case "tar.xz", "txz":
		return archives.CompressedArchive{
			Archival:    archives.Tar{},
			Compression: archives.Xz{},
		}, nil
	case "tar.zst", "tar.zstd":
		return archives.CompressedArchive{
			Archival:    archives.Tar{},
			Compression: archives.Zstd{},
		}, nil
	case "zip":
		return archives.Zip{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func formatFromExtension(name string) (archives.Format, error) {
	lower := strings.ToLower(name)
	for _, compound := range []string{"tar.gz", "tgz", "tar.xz", "txz", "tar.zst", "tar.zstd"} {
		if strings.HasSuffix(lower, "."+compound) {
			return parseFormat(compound)
		}
	}
	switch ext := strings.TrimPrefix(filepath.Ext(lower), "."); ext {
	case "tar", "zip":
		return parseFormat(ext)
	default:
		return nil, fmt.Errorf("%w: cannot tell from %q", ErrUnsupportedFormat, filepath.Base(name))
	}
}

// Create writes an archive to out. files maps paths on disk to their names
// inside the archive. A failed write leaves no partial file behind.
func Create(ctx context.Context, out string, format archives.Format, files map[string]string) error {
	archiver, ok := format.(archives.Archiver)
	if !ok {
		return fmt.Errorf("%w: cannot create %T", ErrUnsupportedFormat, format)
	}

	entries, err := archives.FilesFromDisk(ctx, nil, files)
	if err != nil {
		return fmt.Errorf("failed to collect files: %w", err)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", out, err)
	}
	if err := archiver.Archive(ctx, f, entries); err != nil {
		f.Close()
		os.Remove(out)
		return fmt.Errorf("failed to create archive: %w", err)
	}
	return f.Close()
}

// Extract unpacks every regular file of the archive at path below dir and
// returns the written paths. Entries that would land outside dir are
// rejected.
func Extract(ctx context.Context, path, dir string) ([]string, error) {
	archiveFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open archive: %w", err)
	}
	defer archiveFile.Close()

	format, reader, err := archives.Identify(ctx, path, archiveFile)
	if err != nil {
		return nil, fmt.Errorf("cannot identify archive format: %w", err)
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return nil, fmt.Errorf("%w: cannot extract %T", ErrUnsupportedFormat, format)
	}

	// Zip needs the file itself for seeking.
	var src io.Reader = reader
	if _, isZip := format.(archives.Zip); isZip {
		if _, err := archiveFile.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		src = archiveFile
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid output directory: %s", dir)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("cannot create output directory: %w", err)
	}

	var written []string
	err = extractor.Extract(ctx, src, func(ctx context.Context, f archives.FileInfo) error {
		dest := filepath.Join(root, filepath.Clean(f.NameInArchive))
		if dest != root && !strings.HasPrefix(dest, root+string(filepath.Separator)) {
			return fmt.Errorf("invalid file path: %s", f.NameInArchive)
		}
		if f.IsDir() {
			return os.MkdirAll(dest, 0755)
		}
		if !f.Mode().IsRegular() {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}

		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer out.Close()

		in, err := f.Open()
		if err != nil {
			return err
		}
		defer in.Close()

		if _, err := io.Copy(out, in); err != nil {
			return err
		}
		written = append(written, dest)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", filepath.Base(path), err)
	}
	return written, nil
}
