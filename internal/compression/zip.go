package compression

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func extractZip(r io.ReaderAt, size int64, destDir string) ([]string, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to create zip reader: %w", err)
	}
	if len(zr.File) > MaxEntries {
		return nil, fmt.Errorf("archive has more than %d entries", MaxEntries)
	}

	var files []string
	for _, f := range zr.File {
		name, err := cleanName(f.Name, destDir)
		if err != nil {
			return nil, err
		}
		if name == "" {
			continue
		}

		mode := f.FileInfo().Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(filepath.Join(destDir, filepath.FromSlash(name)), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		case !mode.IsRegular():
			return nil, fmt.Errorf("unsupported archive entry %q", f.Name)
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
		}
		err = writeFile(rc, name, mode, destDir)
		rc.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, name)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files found in archive")
	}
	return files, nil
}
