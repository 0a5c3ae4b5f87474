package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harpoon-proxy/harpoon/http/mime"
	"github.com/stretchr/testify/require"
)

func TestLoadGlobalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
excluded_domains = ["*.google.com", "reddit.com"]
excluded_content_types = ["img", "video"]
excluded_extensions = ["png", "woff2"]
with_ws = true

[addons.ffuf]
prefix = "f"
request_flag = "-request"
https_flag = "-request-proto https"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	global, err := loadGlobalFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"*.google.com", "reddit.com"}, global.ExcludedDomains)
	require.Equal(t, []mime.ContentType{mime.Image, mime.Video}, global.ExcludedContentTypes)
	require.NotNil(t, global.WithWS)
	require.True(t, *global.WithWS)
	require.Contains(t, global.Addons, "ffuf")
	require.Equal(t, "f", global.Addons["ffuf"].Prefix)
}

func TestLoadGlobalMissingFile(t *testing.T) {
	global, err := loadGlobalFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	require.Nil(t, global)
}

func TestLoadSession(t *testing.T) {
	dir := t.TempDir()
	data := `
port = 8083
included_domains = ["target.example"]
no_ws = true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(data), 0o644))

	args, err := LoadSession(dir)
	require.NoError(t, err)
	require.Equal(t, 8083, args.Port)
	require.Equal(t, []string{"target.example"}, args.IncludedDomains)
	require.NotNil(t, args.NoWS)
	require.True(t, *args.NoWS)
}
