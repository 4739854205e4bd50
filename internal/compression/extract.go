// Package compression extracts plugin bundles.
package compression

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/shutter/internal/security"
)

const (
	// MaxFileSize limits each extracted file.
	MaxFileSize = 100 * 1024 * 1024

	// MaxEntries limits the number of entries in a bundle.
	MaxEntries = 1024
)

// ErrUnsupportedArchive is returned for bundle names with an unknown extension.
var ErrUnsupportedArchive = errors.New("unsupported archive format")

// Format is a supported bundle archive format.
type Format string

// Supported formats.
const (
	FormatTarGz  Format = "tar.gz"
	FormatTarXz  Format = "tar.xz"
	FormatTarBz2 Format = "tar.bz2"
	FormatZip    Format = "zip"
)

var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", FormatTarGz},
	{".tgz", FormatTarGz},
	{".tar.xz", FormatTarXz},
	{".txz", FormatTarXz},
	{".tar.bz2", FormatTarBz2},
	{".tbz", FormatTarBz2},
	{".tbz2", FormatTarBz2},
	{".zip", FormatZip},
}

// DetectFormat returns the archive format for a bundle filename.
func DetectFormat(filename string) (Format, error) {
	lower := strings.ToLower(filename)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Base(filename))
}

// GetArchiveBaseName extracts the base name from an archive filename.
// For example: "shutter-plugin-imgur_0.0.1_linux_amd64.tar.gz" -> "shutter-plugin-imgur".
func GetArchiveBaseName(filename string) string {
	base := filepath.Base(filename)
	lower := strings.ToLower(base)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			base = base[:len(base)-len(s.suffix)]
			break
		}
	}

	if idx := strings.Index(base, "_"); idx > 0 {
		return base[:idx]
	}
	return base
}

// ExtractFile extracts the bundle at path into destDir and returns the
// relative paths of the regular files written.
func ExtractFile(path, destDir string) ([]string, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path) // #nosec G304 - bundle path supplied by the user
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer f.Close()

	if format == FormatZip {
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat bundle: %w", err)
		}
		return extractZip(f, info.Size(), destDir)
	}

	return Extract(f, format, destDir)
}

// Extract extracts a tar based bundle from r into destDir. Zip bundles
// need random access and go through ExtractFile.
func Extract(r io.Reader, format Format, destDir string) ([]string, error) {
	switch format {
	case FormatTarGz:
		return extractTarGz(r, destDir)
	case FormatTarXz:
		return extractTarXz(r, destDir)
	case FormatTarBz2:
		return extractTarBz2(r, destDir)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArchive, format)
	}
}

// writeFile copies one archive entry to destDir/name, enforcing the size limit.
func writeFile(r io.Reader, name string, mode os.FileMode, destDir string) error {
	destPath := filepath.Join(destDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Keep the execute bits; nothing else from the archive is trusted.
	perm := os.FileMode(0o644)
	if mode&0o111 != 0 {
		perm = 0o755
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm) // #nosec G304 - validated against destDir
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}

	_, copyErr := io.Copy(out, security.NewLimitedReader(r, MaxFileSize))
	closeErr := out.Close()

	if copyErr != nil {
		return fmt.Errorf("failed to extract %s: %w", name, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", name, closeErr)
	}
	return nil
}

// cleanName normalises an archive entry name and validates it against destDir.
// The archive root comes back as an empty name.
func cleanName(name, destDir string) (string, error) {
	name = strings.TrimPrefix(name, "./")
	if name == "" || name == "." {
		return "", nil
	}
	if err := security.ValidateFilePath(name, destDir); err != nil {
		return "", fmt.Errorf("invalid archive entry %q: %w", name, err)
	}
	return name, nil
}
