package security

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePluginPath(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "inside", path: filepath.Join(base, "imgur", "shutter-plugin-imgur")},
		{name: "base itself", path: base},
		{name: "traversal", path: filepath.Join(base, "imgur", "..", "..", "etc", "passwd"), wantErr: true},
		{name: "sibling prefix", path: base + "-evil/bin", wantErr: true},
		{name: "empty", path: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePluginPath(tt.path, base)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePluginPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFilePath(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		path    string
		wantErr bool
	}{
		{path: "plugin.yaml"},
		{path: "imgur/shutter-plugin-imgur"},
		{path: "../escape", wantErr: true},
		{path: "a/../../escape", wantErr: true},
		{path: "/etc/passwd", wantErr: true},
		{path: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidateFilePath(tt.path, base)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFilePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestLimitedReader(t *testing.T) {
	t.Run("under limit", func(t *testing.T) {
		data, err := io.ReadAll(NewLimitedReader(strings.NewReader("hello"), 10))
		if err != nil || string(data) != "hello" {
			t.Errorf("ReadAll() = %q, %v", data, err)
		}
	})

	t.Run("exactly at limit", func(t *testing.T) {
		data, err := io.ReadAll(NewLimitedReader(strings.NewReader("hello"), 5))
		if err != nil || string(data) != "hello" {
			t.Errorf("ReadAll() = %q, %v", data, err)
		}
	})

	t.Run("over limit", func(t *testing.T) {
		_, err := io.Copy(io.Discard, NewLimitedReader(bytes.NewReader(make([]byte, 64)), 16))
		if !errors.Is(err, ErrSizeLimit) {
			t.Errorf("Copy() error = %v, want ErrSizeLimit", err)
		}
	})
}
