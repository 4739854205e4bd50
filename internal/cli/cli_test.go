package cli

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/jmylchreest/shutter/internal/host"
	"github.com/jmylchreest/shutter/internal/imaging"
	"github.com/jmylchreest/shutter/internal/plugin/manager"
	"github.com/jmylchreest/shutter/internal/version"
	"github.com/jmylchreest/shutter/pkg/plugin"
)

type testDirs struct {
	output  string
	plugins string
	work    string
	tmp     string
}

// setupEnv points every configured directory at a fresh temp dir.
func setupEnv(t *testing.T) testDirs {
	t.Helper()
	dirs := testDirs{
		output:  filepath.Join(t.TempDir(), "out"),
		plugins: filepath.Join(t.TempDir(), "plugins"),
		work:    t.TempDir(),
		tmp:     t.TempDir(),
	}
	t.Setenv("SHUTTER_OUTPUT_DIR", dirs.output)
	t.Setenv("SHUTTER_PLUGIN_DIR", dirs.plugins)
	t.Setenv("SHUTTER_TMP_DIR", dirs.tmp)
	t.Setenv("SHUTTER_DESTINATIONS", "file")
	t.Setenv("SHUTTER_FILENAME_PATTERN", "${title}")
	t.Setenv("SHUTTER_OUTPUT_FORMAT", "png")
	t.Setenv("SHUTTER_ENABLED_PLUGINS", "")
	t.Setenv("SHUTTER_DISABLED_PLUGINS", "")
	return dirs
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "shutter version ") {
		t.Errorf("output = %q", out)
	}

	out, err = run(t, "version", "--json")
	if err != nil {
		t.Fatalf("version --json error = %v", err)
	}
	var info version.Info
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if info.ProtocolVersion != plugin.ProtocolVersion {
		t.Errorf("ProtocolVersion = %q", info.ProtocolVersion)
	}
}

func TestDestinationsCmd(t *testing.T) {
	dirs := setupEnv(t)

	out, err := run(t, "destinations")
	if err != nil {
		t.Fatalf("destinations error = %v", err)
	}
	if !strings.Contains(out, "file *") {
		t.Errorf("default destination not marked:\n%s", out)
	}
	if !strings.Contains(out, "Save to "+dirs.output) {
		t.Errorf("description missing:\n%s", out)
	}
}

func TestPluginsListEmpty(t *testing.T) {
	dirs := setupEnv(t)

	out, err := run(t, "plugins", "list")
	if err != nil {
		t.Fatalf("plugins list error = %v", err)
	}
	if !strings.Contains(out, "No plugins found in "+dirs.plugins) {
		t.Errorf("output = %q", out)
	}
}

func TestPluginsConfigureUnknown(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "plugins", "configure", "imgur")
	if !errors.Is(err, manager.ErrUnknownPlugin) {
		t.Errorf("error = %v, want ErrUnknownPlugin", err)
	}
}

func TestPluginsInfo(t *testing.T) {
	dirs := setupEnv(t)
	t.Setenv("SHUTTER_DISABLED_PLUGINS", "imgur")
	dir := filepath.Join(dirs.plugins, "imgur")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "name: imgur\ncreatedBy: tests\nversion: 1.2.0\nentryType: go-plugin\nbinary: shutter-plugin-imgur\nconfigurable: true\n"
	if err := os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "plugins", "info", "imgur")
	if err != nil {
		t.Fatalf("plugins info error = %v", err)
	}
	for _, want := range []string{"imgur", "1.2.0", "tests", "go-plugin", "true", "disabled", filepath.Join(dir, "shutter-plugin-imgur")} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "plugins", "info", "box"); !errors.Is(err, manager.ErrUnknownPlugin) {
		t.Errorf("unknown plugin error = %v, want ErrUnknownPlugin", err)
	}
}

func TestPluginsInstall(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("plugin binary is a shell script")
	}
	dirs := setupEnv(t)

	bundle := filepath.Join(dirs.work, "demo.zip")
	f, err := os.Create(bundle)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	files := []struct {
		name, body string
		mode       os.FileMode
	}{
		{"demo/plugin.yaml", "name: demo\ncreatedBy: tests\nversion: 0.3.0\nentryType: go-plugin\nbinary: demo\n", 0o644},
		{"demo/demo", "#!/bin/sh\necho '{\"name\":\"demo\",\"version\":\"0.3.0\",\"protocol_version\":\"" + plugin.ProtocolVersion + "\"}'\n", 0o755},
	}
	for _, file := range files {
		hdr := &zip.FileHeader{Name: file.name, Method: zip.Deflate}
		hdr.SetMode(file.mode)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(file.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out, err := run(t, "plugins", "install", bundle)
	if err != nil {
		t.Fatalf("plugins install error = %v", err)
	}
	if !strings.Contains(out, "Installed demo 0.3.0") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dirs.plugins, "demo", "plugin.yaml")); err != nil {
		t.Errorf("manifest not installed: %v", err)
	}

	if _, err := run(t, "plugins", "install", bundle); err == nil {
		t.Error("second install without --force expected error")
	}
	if _, err := run(t, "plugins", "install", bundle, "--force"); err != nil {
		t.Errorf("install --force error = %v", err)
	}
}

func TestImportCmd(t *testing.T) {
	dirs := setupEnv(t)
	in := filepath.Join(dirs.work, "diagram.png")
	writePNG(t, in, 8, 6)

	out, err := run(t, "import", in)
	if err != nil {
		t.Fatalf("import error = %v", err)
	}

	want := filepath.Join(dirs.output, "diagram.png")
	if !strings.Contains(out, "file: "+want) {
		t.Errorf("output = %q", out)
	}
	img, err := imaging.Load(want)
	if err != nil {
		t.Fatalf("exported file: %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("exported width = %d", img.Bounds().Dx())
	}
}

func TestImportURL(t *testing.T) {
	dirs := setupEnv(t)
	src := filepath.Join(dirs.work, "source.png")
	writePNG(t, src, 5, 5)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/charts/weekly.png" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, src)
	}))
	defer srv.Close()

	// A temp file with the same name as the download must survive.
	unrelated := filepath.Join(dirs.tmp, "weekly.png")
	if err := os.WriteFile(unrelated, []byte("keep"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "import", srv.URL+"/charts/weekly.png")
	if err != nil {
		t.Fatalf("import error = %v", err)
	}
	if !strings.Contains(out, filepath.Join(dirs.output, "weekly.png")) {
		t.Errorf("output = %q", out)
	}

	if data, err := os.ReadFile(unrelated); err != nil || string(data) != "keep" {
		t.Errorf("unrelated temp file = %q, %v", data, err)
	}
	entries, err := os.ReadDir(dirs.tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp dir has %d entries after import, want only the unrelated file", len(entries))
	}

	if _, err := run(t, "import", srv.URL+"/missing.png"); err == nil {
		t.Error("import of missing URL expected error")
	}
}

func TestImportRejectsNonImage(t *testing.T) {
	dirs := setupEnv(t)
	notes := filepath.Join(dirs.work, "notes.txt")
	if err := os.WriteFile(notes, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := run(t, "import", notes)
	if err == nil || !strings.Contains(err.Error(), "not a supported image file") {
		t.Fatalf("import error = %v", err)
	}
	if _, err := os.Stat(dirs.output); !os.IsNotExist(err) {
		t.Error("file destination was used")
	}
}

func TestImportUnknownDestination(t *testing.T) {
	dirs := setupEnv(t)
	in := filepath.Join(dirs.work, "diagram.png")
	writePNG(t, in, 2, 2)

	out, err := run(t, "import", in, "--destination", "nope")
	if err == nil {
		t.Fatal("import to unknown destination expected error")
	}
	if !strings.Contains(out, "nope: failed") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(dirs.output); !os.IsNotExist(err) {
		t.Error("file destination was used")
	}
}

func TestCaptureCmd(t *testing.T) {
	dirs := setupEnv(t)
	screen := filepath.Join(dirs.work, "screen.png")
	cursor := filepath.Join(dirs.work, "arrow.png")
	writePNG(t, screen, 10, 10)
	writePNG(t, cursor, 1, 1)

	out, err := run(t, "capture", "--from", screen, "--cursor", "--cursor-image", cursor, "--cursor-pos", "3,4", "-d", "file")
	if err != nil {
		t.Fatalf("capture error = %v", err)
	}
	if !strings.Contains(out, filepath.Join(dirs.output, "screen.png")) {
		t.Errorf("output = %q", out)
	}
}

func TestCaptureCmdErrors(t *testing.T) {
	dirs := setupEnv(t)
	screen := filepath.Join(dirs.work, "screen.png")
	writePNG(t, screen, 4, 4)

	if _, err := run(t, "capture"); err == nil {
		t.Error("capture without --from expected error")
	}
	if _, err := run(t, "capture", "--from", screen, "-d", "nope"); !errors.Is(err, host.ErrUnknownDestination) {
		t.Errorf("unknown destination error = %v", err)
	}
	if _, err := run(t, "capture", "--from", screen, "--cursor-image", "x.png", "--cursor-pos", "1"); err == nil {
		t.Error("single cursor coordinate expected error")
	}
	if _, err := run(t, "capture", "--from", filepath.Join(dirs.work, "screen.txt")); err == nil || !strings.Contains(err.Error(), "not a supported image file") {
		t.Errorf("non-image --from error = %v", err)
	}
	if _, err := run(t, "capture", "--from", screen, "--cursor-image", "arrow.svg", "--cursor-pos", "1,1"); err == nil || !strings.Contains(err.Error(), "not a supported image file") {
		t.Errorf("non-image --cursor-image error = %v", err)
	}
}

func TestThumbnailCmd(t *testing.T) {
	dirs := setupEnv(t)
	in := filepath.Join(dirs.work, "wide.png")
	writePNG(t, in, 40, 20)
	out := filepath.Join(dirs.work, "thumb.jpg")

	stdout, err := run(t, "thumbnail", in, out, "-W", "10", "-H", "10")
	if err != nil {
		t.Fatalf("thumbnail error = %v", err)
	}
	if !strings.Contains(stdout, "(10x5)") {
		t.Errorf("output = %q", stdout)
	}
	img, err := imaging.Load(out)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 10 || b.Dy() != 5 {
		t.Errorf("thumbnail bounds = %v", b)
	}

	if _, err := run(t, "thumbnail", in, filepath.Join(dirs.work, "thumb.webp")); err == nil {
		t.Error("unsupported output format expected error")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	if !newLogger("debug", &buf).IsDebug() {
		t.Error("debug logger is not at debug level")
	}
	logger := newLogger("bogus", &buf)
	if logger.IsDebug() || !logger.IsInfo() {
		t.Error("unknown level should fall back to info")
	}

	logger.Info("hello", "key", "value")
	if !strings.Contains(buf.String(), "shutter: hello: key=value") {
		t.Errorf("log line = %q", buf.String())
	}
}

func TestPrintExports(t *testing.T) {
	var buf bytes.Buffer
	err := printExports(&buf, []plugin.ExportInformation{
		plugin.ExportSucceeded("file", "/tmp/a.png"),
		{Success: true, DestinationDesignation: "imgur", URI: "https://i.example/a"},
		plugin.ExportFailed("printer", errors.New("offline")),
	})
	if err == nil || err.Error() != "1 of 3 exports failed" {
		t.Errorf("error = %v", err)
	}

	want := "file: /tmp/a.png\nimgur: https://i.example/a\nprinter: failed: offline\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
