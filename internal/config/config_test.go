package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildWorkbook writes a workbook with the given sheets. A nil sheet is omitted.
func buildWorkbook(t *testing.T, path string, repos, global [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	first := "Sheet1"
	if repos != nil {
		require.NoError(t, f.SetSheetName(first, SheetRepositories))
		require.NoError(t, setRows(f, SheetRepositories, repos))
		first = ""
	}
	if global != nil {
		if first != "" {
			require.NoError(t, f.SetSheetName(first, SheetGlobal))
		} else {
			_, err := f.NewSheet(SheetGlobal)
			require.NoError(t, err)
		}
		require.NoError(t, setRows(f, SheetGlobal, global))
	}
	require.NoError(t, f.SaveAs(path))
}

func TestLoad_Workbook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monitor.xlsx")

	buildWorkbook(t, path,
		[][]any{
			toAny(repositoryColumns),
			{"REPO_1", "Core", "svn://svn.example.com/core", "", "alice", "secret", "120.0", "wc/core", "FALSE", "a@example.com; b@example.com,a@example.com"},
			{"", "skipped", "svn://svn.example.com/none"},
			{"REPO_2", "nan", "/srv/svn/tools", "", "", "", "", "", "", "nan"},
		},
		[][]any{
			{"Section", "Key", "Value"},
			{"EMAIL", "smtp_server", "smtp.example.com"},
			{"EMAIL", "smtp_port", "587"},
			{"EMAIL", "use_ssl", "False"},
			{"EMAIL", "to_emails", "ops@example.com;dev@example.com"},
			{"LOGGING", "log_level", "DEBUG"},
			{"SYSTEM", "use_remote_check", "yes"},
			{"SVN", "username", "svc"},
			{"SVN", "password", "pw"},
			{"SYSTEM", "colour", "blue"},
		},
	)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, dir, cfg.BaseDir)
	require.Len(t, cfg.Repositories, 2)

	core := cfg.Repositories[0]
	assert.Equal(t, "1", core.ID)
	assert.Equal(t, "Core", core.DisplayName())
	assert.Equal(t, "svn://svn.example.com/core", core.Path)
	assert.Equal(t, "svn://svn.example.com/core", core.URL)
	assert.Equal(t, 120*time.Second, core.Interval())
	assert.Equal(t, filepath.Join(dir, "wc", "core"), core.WorkingCopy)
	assert.False(t, core.Notify())
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, core.Recipients)

	tools := cfg.Repositories[1]
	assert.Equal(t, "2", tools.ID)
	assert.Equal(t, "2", tools.DisplayName())
	assert.Equal(t, "/srv/svn/tools", tools.Path)
	assert.Equal(t, DefaultCheckInterval, tools.Interval())
	assert.Equal(t, filepath.Join(dir, "svn_wc", "2"), tools.WorkingCopy)
	assert.True(t, tools.Notify())
	assert.Empty(t, tools.Recipients)

	assert.Equal(t, "smtp.example.com", cfg.Email.SMTPServer)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.False(t, cfg.Email.UseSSL)
	assert.Equal(t, []string{"dev@example.com", "ops@example.com"}, cfg.Email.To)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, filepath.Join(dir, "svn_monitor.log"), cfg.Logging.File)
	assert.Equal(t, filepath.Join(dir, "last_revisions.json"), cfg.System.StateFile)
	assert.True(t, cfg.System.UseRemoteCheck)
	assert.Contains(t, cfg.Warnings, "unknown setting SYSTEM.colour ignored")

	user, pass := cfg.Credentials(core)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "secret", pass)
	user, pass = cfg.Credentials(tools)
	assert.Equal(t, "svc", user)
	assert.Equal(t, "pw", pass)

	assert.Equal(t, 120*time.Second, cfg.MinCheckInterval())
}

func TestLoad_WorkbookMissingGlobalSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos-only.xlsx")
	buildWorkbook(t, path,
		[][]any{
			toAny(repositoryColumns),
			{"REPO_7", "Seven", "svn://svn.example.com/seven"},
		},
		nil,
	)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Repositories, 1)
	assert.Equal(t, 465, cfg.Email.SMTPPort)
	assert.True(t, cfg.Email.UseSSL)
	assert.Contains(t, cfg.Warnings, `sheet "Global Configs" not found`)
}

func TestLoad_WorkbookWithoutKnownSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has neither")
}

func TestLoad_WorkbookBadInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	buildWorkbook(t, path,
		[][]any{
			toAny(repositoryColumns),
			{"REPO_1", "One", "svn://svn.example.com/one", "", "", "", "often"},
		},
		nil,
	)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
email:
  smtp_server: smtp.example.com
  from_email: monitor@example.com
  to_emails: [ops@example.com]
system:
  timezone: UTC
  state_file: state/revs.json
repositories:
  - id: REPO_web
    name: Website
    repository_path: repos/web
    check_interval: 60
    aliases: [site]
  - id: api
    url: https://svn.example.com/api
    local_working_copy: /var/wc/api
    notify_on_changes: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 465, cfg.Email.SMTPPort)
	assert.True(t, cfg.System.StatusReport, "status reports are on unless disabled")
	assert.Equal(t, time.UTC, cfg.System.Location())
	assert.Equal(t, filepath.Join(dir, "state", "revs.json"), cfg.System.StateFile)

	require.Len(t, cfg.Repositories, 2)
	web := cfg.Repositories[0]
	assert.Equal(t, "web", web.ID)
	assert.Equal(t, filepath.Join(dir, "repos", "web"), web.Path)
	assert.Equal(t, []string{"site"}, web.Aliases)

	api := cfg.Repositories[1]
	assert.Equal(t, "https://svn.example.com/api", api.Path)
	assert.Equal(t, "/var/wc/api", api.WorkingCopy)
	assert.False(t, api.Notify())

	assert.Equal(t, 60*time.Second, cfg.MinCheckInterval())
	assert.Equal(t, []string{"web", "api"}, cfg.RepositoryIDs())

	got, ok := cfg.Repository("REPO_web")
	require.True(t, ok)
	assert.Equal(t, "web", got.ID)
	got, ok = cfg.Repository("Website")
	require.True(t, ok)
	assert.Equal(t, "web", got.ID)
	_, ok = cfg.Repository("missing")
	assert.False(t, ok)
}

func TestLoad_YAMLUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("systen:\n  mode: monitor\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.xlsx"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.ini")
	require.NoError(t, os.WriteFile(path, []byte("[EMAIL]\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config format")
}

func TestLoad_LegacyRecipients(t *testing.T) {
	dir := t.TempDir()

	legacy := filepath.Join(dir, "recipients.xlsx")
	lf := excelize.NewFile()
	require.NoError(t, setRows(lf, "Sheet1", [][]any{
		{"Repository", "Recipients"},
		{"REPO_1", "legacy@example.com"},
		{"Tools", "tools@example.com;more@example.com"},
		{"REPO_3", "ignored@example.com"},
	}))
	require.NoError(t, lf.SaveAs(legacy))
	require.NoError(t, lf.Close())

	path := filepath.Join(dir, "monitor.xlsx")
	buildWorkbook(t, path,
		[][]any{
			toAny(repositoryColumns),
			{"REPO_1", "Core", "svn://h/core"},
			{"REPO_2", "Tools", "svn://h/tools"},
			{"REPO_3", "Docs", "svn://h/docs", "", "", "", "", "", "", "own@example.com"},
		},
		[][]any{
			{"Section", "Key", "Value"},
			{"EMAIL", "recipients_excel", "recipients.xlsx"},
		},
	)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Repositories, 3)
	assert.Equal(t, []string{"legacy@example.com"}, cfg.Repositories[0].Recipients)
	assert.Equal(t, []string{"more@example.com", "tools@example.com"}, cfg.Repositories[1].Recipients)
	assert.Equal(t, []string{"own@example.com"}, cfg.Repositories[2].Recipients)
	assert.Equal(t, []string{"legacy@example.com", "more@example.com", "own@example.com", "tools@example.com"}, cfg.AllRecipients())
}

func TestLoad_LegacyRecipientsMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
email:
  recipients_excel: nowhere.xlsx
repositories:
  - id: "1"
    url: svn://h/one
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Warnings, 2)
	assert.Contains(t, cfg.Warnings[0], "legacy recipients")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "sample is valid", mutate: func(*Config) {}},
		{
			name:    "no repositories",
			mutate:  func(c *Config) { c.Repositories = nil },
			wantErr: "repositories: is required",
		},
		{
			name: "missing path and url",
			mutate: func(c *Config) {
				c.Repositories[0].Path = ""
				c.Repositories[0].URL = ""
			},
			wantErr: "repository_path or url is required",
		},
		{
			name:    "bad recipient",
			mutate:  func(c *Config) { c.Repositories[0].Recipients = []string{"not-an-address"} },
			wantErr: `"not-an-address" is not a valid email address`,
		},
		{
			name:    "bad level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.log_level",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.System.Timezone = "Mars/Olympus" },
			wantErr: "unknown zone",
		},
		{
			name: "duplicate id",
			mutate: func(c *Config) {
				c.Repositories = append(c.Repositories, c.Repositories[0])
			},
			wantErr: "defined more than once",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Sample()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWriteDefault(t *testing.T) {
	for _, name := range []string{"starter.xlsx", "starter.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "conf", name)
			require.NoError(t, WriteDefault(path))

			cfg, err := Load(path)
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())
			require.Len(t, cfg.Repositories, 1)
			assert.Equal(t, "1", cfg.Repositories[0].ID)
			assert.Equal(t, "Main Repository", cfg.Repositories[0].Name)
			assert.True(t, cfg.Repositories[0].Notify())
			assert.Equal(t, filepath.Join(filepath.Dir(path), "svn_wc", "1"), cfg.Repositories[0].WorkingCopy)
			assert.Equal(t, "smtp.example.com", cfg.Email.SMTPServer)

			err = WriteDefault(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, fs.ErrExist))
		})
	}
}

func TestMarshal_MasksPasswords(t *testing.T) {
	cfg := Sample()
	cfg.Repositories[0].Password = "repo-secret"

	masked, err := Marshal(cfg, false)
	require.NoError(t, err)
	assert.NotContains(t, string(masked), "change-me")
	assert.NotContains(t, string(masked), "repo-secret")
	assert.Contains(t, string(masked), "***")

	// the source config is untouched
	assert.Equal(t, "repo-secret", cfg.Repositories[0].Password)

	raw, err := Marshal(cfg, true)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "change-me")
}

func TestSplitAddresses(t *testing.T) {
	assert.Equal(t, []string{"a@x.io", "b@x.io", "c@x.io"}, SplitAddresses(" a@x.io ;b@x.io,, c@x.io;nan"))
	assert.Empty(t, SplitAddresses(""))
}

func TestParseInt(t *testing.T) {
	n, err := parseInt("300.0")
	require.NoError(t, err)
	assert.Equal(t, 300, n)

	_, err = parseInt("1.5")
	assert.Error(t, err)
}

func TestRepository_Target(t *testing.T) {
	tests := []struct {
		name string
		repo Repository
		want string
	}{
		{"path url", Repository{Path: "svn://h/main", URL: "https://h/other"}, "svn://h/main"},
		{"url", Repository{Path: "/srv/svn/main", URL: "https://h/svn/main"}, "https://h/svn/main"},
		{"local path", Repository{Path: "/srv/svn/main"}, "file:///srv/svn/main"},
		{"drive path", Repository{Path: "C:/svn/main"}, "file:///C:/svn/main"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.repo.Target())
		})
	}
}

func TestLoadYAML_StatusReportDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svnmonitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`system:
  status_report: false
repositories:
  - id: "1"
    url: svn://svn.example.com/main
    check_interval: 60
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.System.StatusReport)
}
