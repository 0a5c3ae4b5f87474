// Package config holds the proxy's two configuration layers: the global
// user config (~/.config/harpoon/config.toml) and the per-session proxy
// arguments, plus the compiled Policy the commander consults per request.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/harpoon-proxy/harpoon/http/mime"
)

// Global is the user-wide configuration. All fields are optional.
type Global struct {
	ExcludedDomains      []string           `toml:"excluded_domains"`
	ExcludedContentTypes []mime.ContentType `toml:"excluded_content_types"`
	ExcludedExtensions   []string           `toml:"excluded_extensions"`
	WithWS               *bool              `toml:"with_ws"`
	Addons               map[string]Addon   `toml:"addons"`
}

// Addon describes one external command-line tool requests can be handed to.
type Addon struct {
	Prefix      string `toml:"prefix"`
	RequestFlag string `toml:"request_flag"`
	HTTPFlag    string `toml:"http_flag"`
	HTTPSFlag   string `toml:"https_flag"`
	AddFlag     string `toml:"add_flag"`
}

// ProxyArgs is the per-session configuration. Include and exclude lists are
// mutually exclusive; include wins on conflict with the global config.
type ProxyArgs struct {
	Port            int      `toml:"port"`
	IncludedDomains []string `toml:"included_domains"`
	ExcludedDomains []string `toml:"excluded_domains"`
	NoWS            *bool    `toml:"no_ws"`
}

// GlobalDir returns the directory holding config.toml and the CA material.
func GlobalDir() (string, error) {
	home, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, "harpoon"), nil
}

// LoadGlobal reads the global config. A missing file is not an error: the
// proxy runs unfiltered without one.
func LoadGlobal() (*Global, error) {
	dir, err := GlobalDir()
	if err != nil {
		return nil, err
	}

	return loadGlobalFile(filepath.Join(dir, "config.toml"))
}

func loadGlobalFile(path string) (*Global, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	var global Global
	if err := toml.Unmarshal(data, &global); err != nil {
		return nil, err
	}

	return &global, nil
}

// LoadSession reads the session config.toml from the session directory.
// Missing file means defaults.
func LoadSession(dir string) (*ProxyArgs, error) {
	data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	var args ProxyArgs
	if err := toml.Unmarshal(data, &args); err != nil {
		return nil, err
	}

	return &args, nil
}
