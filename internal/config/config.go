// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates the svnmonitor configuration.
//
// Two on-disk formats are supported and selected by file extension: an
// .xlsx workbook with "Repository Configs" and "Global Configs" sheets,
// and a YAML document with the same fields.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	_ "time/tzdata" // the default timezone must resolve on hosts without zoneinfo
)

const (
	// DefaultCheckInterval is used for repositories without a positive interval.
	DefaultCheckInterval = 300 * time.Second

	// RepoPrefix is stripped from workbook repository identifiers, so
	// REPO_1 is stored in last_revisions.json as "1".
	RepoPrefix = "REPO_"

	DefaultFileName = "svn_monitor_config.xlsx"
)

// ErrNotFound is returned by Load when the configuration file does not exist.
var ErrNotFound = errors.New("configuration file not found")

type Config struct {
	// Path is the absolute path the configuration was loaded from.
	Path string `yaml:"-"`
	// BaseDir anchors every relative path in the configuration.
	BaseDir string `yaml:"-"`
	// Warnings collects non-fatal problems found while loading.
	Warnings []string `yaml:"-"`

	Email        EmailConfig   `yaml:"email"`
	Logging      LoggingConfig `yaml:"logging"`
	System       SystemConfig  `yaml:"system"`
	SVN          SVNConfig     `yaml:"svn"`
	Repositories []Repository  `yaml:"repositories" validate:"required,min=1,dive"`
}

type EmailConfig struct {
	SMTPServer       string   `yaml:"smtp_server"`
	SMTPPort         int      `yaml:"smtp_port" validate:"gte=0,lte=65535"`
	UseSSL           bool     `yaml:"use_ssl"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	From             string   `yaml:"from_email" validate:"omitempty,email"`
	To               []string `yaml:"to_emails" validate:"dive,email"`
	RecipientsExcel  string   `yaml:"recipients_excel,omitempty"`
	StatusRecipients []string `yaml:"status_recipients,omitempty" validate:"dive,email"`
}

// HasCredentials reports whether both SMTP username and password are set.
func (e EmailConfig) HasCredentials() bool {
	return strings.TrimSpace(e.Username) != "" && strings.TrimSpace(e.Password) != ""
}

type LoggingConfig struct {
	File  string `yaml:"log_file"`
	Level string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
}

type SystemConfig struct {
	Mode           string `yaml:"mode"`
	UseRemoteCheck bool   `yaml:"use_remote_check"`
	Timezone       string `yaml:"timezone"`
	StatusReport   bool   `yaml:"status_report"`
	StateFile      string `yaml:"state_file"`
	PageSize       int    `yaml:"page_size" validate:"gte=0"`
}

// Location returns the configured timezone, falling back to the local zone.
func (s SystemConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// SVNConfig holds global fallbacks for every repository.
type SVNConfig struct {
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	TrustServerCert bool   `yaml:"trust_server_cert"`
}

type Repository struct {
	ID              string   `yaml:"id" validate:"required"`
	Name            string   `yaml:"name"`
	Path            string   `yaml:"repository_path" validate:"required_without=URL"`
	URL             string   `yaml:"url"`
	Username        string   `yaml:"username,omitempty"`
	Password        string   `yaml:"password,omitempty"`
	CheckInterval   int      `yaml:"check_interval" validate:"gt=0"`
	WorkingCopy     string   `yaml:"local_working_copy"`
	NotifyOnChanges *bool    `yaml:"notify_on_changes,omitempty"`
	Recipients      []string `yaml:"recipients" validate:"dive,email"`
	Aliases         []string `yaml:"aliases,omitempty"`
}

// DisplayName returns the human name, or the ID when no name is set.
func (r Repository) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// Target returns the URL svn commands address for the repository itself:
// repository_path when it is a URL, else url, else repository_path as a
// file:// URL.
func (r Repository) Target() string {
	for _, s := range []string{r.Path, r.URL} {
		if IsURL(s) {
			return s
		}
	}
	p := filepath.ToSlash(r.Path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p
}

// Notify reports whether change notifications are enabled. Unset means yes.
func (r Repository) Notify() bool {
	return r.NotifyOnChanges == nil || *r.NotifyOnChanges
}

// Interval returns the polling interval for the repository.
func (r Repository) Interval() time.Duration {
	if r.CheckInterval <= 0 {
		return DefaultCheckInterval
	}
	return time.Duration(r.CheckInterval) * time.Second
}

// Default returns a configuration holding only defaults and no repositories.
func Default() *Config {
	return &Config{
		Email: EmailConfig{
			SMTPPort: 465,
			UseSSL:   true,
		},
		Logging: LoggingConfig{
			File:  "svn_monitor.log",
			Level: "info",
		},
		System: SystemConfig{
			Mode:         "monitor",
			Timezone:     "Asia/Shanghai",
			StatusReport: true,
			StateFile:    "last_revisions.json",
			PageSize:     500,
		},
		SVN: SVNConfig{
			TrustServerCert: true,
		},
	}
}

// Load reads the configuration at path, resolves relative paths against
// its directory and fills defaults. It does not validate; call Validate.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, abs)
		}
		return nil, fmt.Errorf("accessing config %s: %w", abs, err)
	}

	var cfg *Config
	switch ext := strings.ToLower(filepath.Ext(abs)); ext {
	case ".xlsx", ".xlsm":
		cfg, err = loadWorkbook(abs)
	case ".yaml", ".yml":
		cfg, err = loadYAML(abs)
	default:
		return nil, fmt.Errorf("unsupported config format %q (want .xlsx, .yaml or .yml)", ext)
	}
	if err != nil {
		return nil, err
	}

	cfg.Path = abs
	cfg.BaseDir = filepath.Dir(abs)

	if cfg.Email.RecipientsExcel != "" {
		legacy := cfg.resolve(cfg.Email.RecipientsExcel)
		if err := cfg.applyLegacyRecipients(legacy); err != nil {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("legacy recipients %s: %v", legacy, err))
		}
	}

	cfg.finalize()
	return cfg, nil
}

// Repository looks up a repository by ID, key or name.
func (c *Config) Repository(id string) (Repository, bool) {
	for _, r := range c.Repositories {
		if r.ID == id || RepoPrefix+r.ID == id || (r.Name != "" && r.Name == id) {
			return r, true
		}
	}
	return Repository{}, false
}

// RepositoryIDs returns the IDs of all configured repositories in order.
func (c *Config) RepositoryIDs() []string {
	ids := make([]string, 0, len(c.Repositories))
	for _, r := range c.Repositories {
		ids = append(ids, r.ID)
	}
	return ids
}

// MinCheckInterval returns the shortest polling interval across repositories.
func (c *Config) MinCheckInterval() time.Duration {
	if len(c.Repositories) == 0 {
		return DefaultCheckInterval
	}
	min := c.Repositories[0].Interval()
	for _, r := range c.Repositories[1:] {
		if d := r.Interval(); d < min {
			min = d
		}
	}
	return min
}

// Credentials returns the svn credentials for a repository. Both the
// username and the password must be present for a pair to be used; the
// repository's own pair wins over the global SVN section.
func (c *Config) Credentials(r Repository) (username, password string) {
	if r.Username != "" && r.Password != "" {
		return r.Username, r.Password
	}
	if c.SVN.Username != "" && c.SVN.Password != "" {
		return c.SVN.Username, c.SVN.Password
	}
	return "", ""
}

// AllRecipients returns the sorted union of every repository's recipients.
func (c *Config) AllRecipients() []string {
	var all []string
	for _, r := range c.Repositories {
		all = append(all, r.Recipients...)
	}
	return uniqueSorted(all)
}

func (c *Config) finalize() {
	def := Default()
	if c.Logging.File == "" {
		c.Logging.File = def.Logging.File
	}
	if c.System.StateFile == "" {
		c.System.StateFile = def.System.StateFile
	}
	if c.System.PageSize <= 0 {
		c.System.PageSize = def.System.PageSize
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = def.Email.SMTPPort
	}

	c.Logging.File = c.resolve(c.Logging.File)
	c.System.StateFile = c.resolve(c.System.StateFile)
	c.Email.To = uniqueSorted(c.Email.To)
	c.Email.StatusRecipients = uniqueSorted(c.Email.StatusRecipients)

	for i := range c.Repositories {
		r := &c.Repositories[i]
		r.ID = strings.TrimPrefix(strings.TrimSpace(r.ID), RepoPrefix)
		if r.Path == "" {
			r.Path = r.URL
		}
		r.Path = c.resolve(r.Path)
		if r.URL == "" {
			r.URL = r.Path
		}
		if r.CheckInterval <= 0 {
			r.CheckInterval = int(DefaultCheckInterval / time.Second)
		}
		if r.WorkingCopy == "" {
			r.WorkingCopy = filepath.Join("svn_wc", r.ID)
			c.Warnings = append(c.Warnings, fmt.Sprintf("repository %s has no local_working_copy, using %s", r.ID, r.WorkingCopy))
		}
		r.WorkingCopy = c.resolve(r.WorkingCopy)
		r.Recipients = uniqueSorted(r.Recipients)
	}
}

// resolve anchors a relative filesystem path at BaseDir. URLs pass through.
func (c *Config) resolve(p string) string {
	if p == "" || IsURL(p) || filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(c.BaseDir, p))
}

// IsURL reports whether s is a repository URL rather than a filesystem path.
func IsURL(s string) bool {
	for _, scheme := range []string{"http://", "https://", "svn://", "svn+ssh://", "file://"} {
		if strings.HasPrefix(strings.ToLower(s), scheme) {
			return true
		}
	}
	return false
}

// ParseBool accepts true/1/yes/on in any case; everything else is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// SplitAddresses splits a recipient list on ';' and ','. Blank entries and
// the "nan" placeholder produced by spreadsheet exports are dropped.
func SplitAddresses(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || strings.EqualFold(f, "nan") {
			continue
		}
		out = append(out, f)
	}
	return out
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
