package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/shutter/internal/imaging"
	httputil "github.com/jmylchreest/shutter/internal/util/http"
)

// requireImageFile rejects local paths whose extension no decoder handles.
func requireImageFile(path string) error {
	if imaging.IsImageFile(path) {
		return nil
	}
	return fmt.Errorf("%s is not a supported image file (want one of %s)",
		path, strings.Join(imaging.SupportedImageExtensions(), ", "))
}

// download fetches url into a new private directory under tempDir. The
// returned cleanup removes that directory and everything in it.
func download(ctx context.Context, logger hclog.Logger, url, tempDir, prefix string) (string, func(), error) {
	if err := os.MkdirAll(tempDir, 0o700); err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp(tempDir, prefix)
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(dir) }

	logger.Info("downloading", "url", url)
	path, err := httputil.Download(ctx, url, dir, httputil.FetchOptions{})
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}
