package compression

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
)

func extractTarGz(r io.Reader, destDir string) ([]string, error) {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	return extractTar(gzr, destDir)
}

func extractTarXz(r io.Reader, destDir string) ([]string, error) {
	xzr, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create xz reader: %w", err)
	}
	return extractTar(xzr, destDir)
}

func extractTarBz2(r io.Reader, destDir string) ([]string, error) {
	return extractTar(bzip2.NewReader(r), destDir)
}

// extractTar writes directories and regular files. Links and devices are rejected.
func extractTar(r io.Reader, destDir string) ([]string, error) {
	tr := tar.NewReader(r)

	var files []string
	for entries := 0; ; entries++ {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar archive: %w", err)
		}
		if entries >= MaxEntries {
			return nil, fmt.Errorf("archive has more than %d entries", MaxEntries)
		}

		name, err := cleanName(header.Name, destDir)
		if err != nil {
			return nil, err
		}
		if name == "" {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(filepath.Join(destDir, filepath.FromSlash(name)), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := writeFile(tr, name, header.FileInfo().Mode(), destDir); err != nil {
				return nil, err
			}
			files = append(files, name)
		default:
			return nil, fmt.Errorf("unsupported archive entry %q of type %c", header.Name, header.Typeflag)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files found in archive")
	}
	return files, nil
}
