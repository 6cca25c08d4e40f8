// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

func loadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Masked returns a copy of c with every password replaced by "***".
func (c *Config) Masked() *Config {
	out := *c
	out.Email.Password = mask(out.Email.Password)
	out.SVN.Password = mask(out.SVN.Password)
	out.Repositories = make([]Repository, len(c.Repositories))
	for i, r := range c.Repositories {
		r.Password = mask(r.Password)
		out.Repositories[i] = r
	}
	return &out
}

// Marshal renders cfg as YAML. Passwords are masked unless reveal is set.
func Marshal(cfg *Config, reveal bool) ([]byte, error) {
	out := cfg
	if !reveal {
		out = cfg.Masked()
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// Sample returns a starter configuration with one placeholder repository.
func Sample() *Config {
	cfg := Default()
	cfg.Email.SMTPServer = "smtp.example.com"
	cfg.Email.Username = "svnmonitor@example.com"
	cfg.Email.Password = "change-me"
	cfg.Email.From = "svnmonitor@example.com"
	cfg.Email.To = []string{"team@example.com"}
	notify := true
	cfg.Repositories = []Repository{{
		ID:              "1",
		Name:            "Main Repository",
		Path:            "svn://svn.example.com/repos/main",
		URL:             "svn://svn.example.com/repos/main",
		CheckInterval:   int(DefaultCheckInterval.Seconds()),
		WorkingCopy:     filepath.Join("svn_wc", "1"),
		NotifyOnChanges: &notify,
		Recipients:      []string{"team@example.com"},
	}}
	return cfg
}

// WriteDefault writes a starter configuration to path, as a workbook or
// YAML depending on the extension. An existing file is never overwritten.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s: %w", path, fs.ErrExist)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	cfg := Sample()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		return writeWorkbook(path, cfg)
	case ".yaml", ".yml":
		data, err := Marshal(cfg, true)
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o600)
	default:
		return fmt.Errorf("unsupported config format %q (want .xlsx, .yaml or .yml)", ext)
	}
}
