package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinDir(t *testing.T) {
	tmpDir := t.TempDir()
	site := filepath.Join(tmpDir, "site")
	elsewhere := filepath.Join(tmpDir, "elsewhere")
	require.NoError(t, os.MkdirAll(site, 0o755))
	require.NoError(t, os.MkdirAll(elsewhere, 0o755))
	require.NoError(t, os.Symlink(elsewhere, filepath.Join(site, "link")))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(site, "index.html"), false},
		{"nested new file", filepath.Join(site, "png", "fig.png"), false},
		{"dir itself", site, false},
		{"parent traversal", filepath.Join(site, "..", "elsewhere", "x"), true},
		{"sibling", filepath.Join(elsewhere, "x"), true},
		{"symlink escape", filepath.Join(site, "link", "x"), true},
		{"symlink escape to new file", filepath.Join(site, "link", "new", "x"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithinDir(tt.path, site)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Error(t, WithinDir(filepath.Join(site, "x"), filepath.Join(tmpDir, "missing")))
}

func TestValidateOutputPath(t *testing.T) {
	assert.NoError(t, ValidateOutputPath("site"))
	assert.NoError(t, ValidateOutputPath(filepath.Join(t.TempDir(), "out.feather")))
	assert.Error(t, ValidateOutputPath("/etc/accidents.feather"))
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"custom_fig":       "custom_fig",
		"summary lineplot": "summary_lineplot",
		"../../etc/passwd": "etc_passwd",
		"Gràcia/2020":      "Gr_cia_2020",
		"":                 "unnamed",
		"...":              "unnamed",
	}
	for in, want := range tests {
		assert.Equal(t, want, FileName(in), "FileName(%q)", in)
	}
}
