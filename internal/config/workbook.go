// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Workbook sheet names.
const (
	SheetRepositories = "Repository Configs"
	SheetGlobal       = "Global Configs"
)

// Repository sheet columns, in the order WriteDefault lays them out.
const (
	colID          = "Repository ID"
	colName        = "Repository Name"
	colPath        = "Repository Path"
	colURL         = "URL"
	colUsername    = "Username"
	colPassword    = "Password"
	colInterval    = "Check Interval"
	colWorkingCopy = "Local Working Copy"
	colNotify      = "Notify On Changes"
	colRecipients  = "Recipients"
)

var repositoryColumns = []string{
	colID, colName, colPath, colURL, colUsername, colPassword,
	colInterval, colWorkingCopy, colNotify, colRecipients,
}

// sheet is a header-indexed view over the rows of one worksheet.
type sheet struct {
	index map[string]int
	rows  [][]string
}

func newSheet(rows [][]string) sheet {
	s := sheet{index: map[string]int{}}
	if len(rows) == 0 {
		return s
	}
	for i, h := range rows[0] {
		s.index[strings.TrimSpace(h)] = i
	}
	s.rows = rows[1:]
	return s
}

// cell returns the trimmed value of column col in row, or "" when the
// column or cell is absent.
func (s sheet) cell(row []string, col string) string {
	i, ok := s.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[i])
	if strings.EqualFold(v, "nan") {
		return ""
	}
	return v
}

func readSheet(f *excelize.File, name string) (sheet, bool, error) {
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return sheet{}, false, fmt.Errorf("locating sheet %q: %w", name, err)
	}
	if idx < 0 {
		return sheet{}, false, nil
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return sheet{}, false, fmt.Errorf("reading sheet %q: %w", name, err)
	}
	return newSheet(rows), true, nil
}

func loadWorkbook(path string) (*Config, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	cfg := Default()

	repos, hasRepos, err := readSheet(f, SheetRepositories)
	if err != nil {
		return nil, err
	}
	global, hasGlobal, err := readSheet(f, SheetGlobal)
	if err != nil {
		return nil, err
	}
	if !hasRepos && !hasGlobal {
		return nil, fmt.Errorf("workbook %s has neither %q nor %q sheet", path, SheetRepositories, SheetGlobal)
	}

	if hasRepos {
		for n, row := range repos.rows {
			id := repos.cell(row, colID)
			if id == "" {
				continue
			}
			r := Repository{
				ID:          id,
				Name:        repos.cell(row, colName),
				Path:        repos.cell(row, colPath),
				URL:         repos.cell(row, colURL),
				Username:    repos.cell(row, colUsername),
				Password:    repos.cell(row, colPassword),
				WorkingCopy: repos.cell(row, colWorkingCopy),
				Recipients:  SplitAddresses(repos.cell(row, colRecipients)),
			}
			if v := repos.cell(row, colInterval); v != "" {
				secs, err := parseInt(v)
				if err != nil {
					return nil, fmt.Errorf("%s row %d: check interval: %w", SheetRepositories, n+2, err)
				}
				r.CheckInterval = secs
			}
			if v := repos.cell(row, colNotify); v != "" {
				notify := ParseBool(v)
				r.NotifyOnChanges = &notify
			}
			cfg.Repositories = append(cfg.Repositories, r)
		}
	} else {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("sheet %q not found", SheetRepositories))
	}

	if hasGlobal {
		for n, row := range global.rows {
			section := strings.ToUpper(global.cell(row, "Section"))
			key := strings.ToLower(global.cell(row, "Key"))
			if section == "" || key == "" {
				continue
			}
			if err := cfg.setGlobal(section, key, global.cell(row, "Value")); err != nil {
				return nil, fmt.Errorf("%s row %d: %w", SheetGlobal, n+2, err)
			}
		}
	} else {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("sheet %q not found", SheetGlobal))
	}

	return cfg, nil
}

// setGlobal applies one Section/Key/Value row from the Global Configs sheet.
func (c *Config) setGlobal(section, key, value string) error {
	var err error
	switch section + "." + key {
	case "EMAIL.smtp_server":
		c.Email.SMTPServer = value
	case "EMAIL.smtp_port":
		c.Email.SMTPPort, err = parseInt(value)
	case "EMAIL.use_ssl":
		c.Email.UseSSL = ParseBool(value)
	case "EMAIL.username":
		c.Email.Username = value
	case "EMAIL.password":
		c.Email.Password = value
	case "EMAIL.from_email":
		c.Email.From = value
	case "EMAIL.to_emails":
		c.Email.To = SplitAddresses(value)
	case "EMAIL.recipients_excel":
		c.Email.RecipientsExcel = value
	case "EMAIL.status_recipients":
		c.Email.StatusRecipients = SplitAddresses(value)
	case "LOGGING.log_file":
		c.Logging.File = value
	case "LOGGING.log_level":
		c.Logging.Level = strings.ToLower(value)
	case "SYSTEM.mode":
		c.System.Mode = value
	case "SYSTEM.use_remote_check":
		c.System.UseRemoteCheck = ParseBool(value)
	case "SYSTEM.timezone":
		c.System.Timezone = value
	case "SYSTEM.status_report":
		c.System.StatusReport = ParseBool(value)
	case "SYSTEM.state_file":
		c.System.StateFile = value
	case "SYSTEM.page_size":
		c.System.PageSize, err = parseInt(value)
	case "SVN.username":
		c.SVN.Username = value
	case "SVN.password":
		c.SVN.Password = value
	case "SVN.trust_server_cert":
		c.SVN.TrustServerCert = ParseBool(value)
	default:
		c.Warnings = append(c.Warnings, fmt.Sprintf("unknown setting %s.%s ignored", section, key))
	}
	if err != nil {
		return fmt.Errorf("%s.%s: %w", section, key, err)
	}
	return nil
}

// applyLegacyRecipients reads a recipients workbook whose first sheet maps a
// repository ID or name (column A) to a recipient list (column B). Only
// repositories without recipients of their own are filled.
func (c *Config) applyLegacyRecipients(path string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		rows = rows[1:]
	}

	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		key := strings.TrimSpace(row[0])
		addrs := SplitAddresses(row[1])
		if key == "" || len(addrs) == 0 {
			continue
		}
		for i := range c.Repositories {
			r := &c.Repositories[i]
			if len(r.Recipients) > 0 {
				continue
			}
			if matchesID(*r, key) {
				r.Recipients = addrs
			}
		}
	}
	return nil
}

// matchesID compares key against a repository's ID with and without the
// REPO_ prefix, and against its name.
func matchesID(r Repository, key string) bool {
	id := strings.TrimPrefix(r.ID, RepoPrefix)
	return key == r.ID || key == id || key == RepoPrefix+id || (r.Name != "" && key == r.Name)
}

// parseInt accepts integers and whole floats such as "300.0", which is how
// spreadsheet tools often export numeric cells.
func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return int(f), nil
}

func writeWorkbook(path string, cfg *Config) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetRepositories); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetGlobal); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	repoRows := [][]any{toAny(repositoryColumns)}
	for _, r := range cfg.Repositories {
		repoRows = append(repoRows, []any{
			RepoPrefix + strings.TrimPrefix(r.ID, RepoPrefix),
			r.Name, r.Path, r.URL, r.Username, r.Password,
			r.CheckInterval, r.WorkingCopy, r.Notify(),
			strings.Join(r.Recipients, ";"),
		})
	}
	if err := setRows(f, SheetRepositories, repoRows); err != nil {
		return err
	}

	globalRows := [][]any{{"Section", "Key", "Value"}}
	for _, kv := range cfg.globalSettings() {
		globalRows = append(globalRows, []any{kv[0], kv[1], kv[2]})
	}
	if err := setRows(f, SheetGlobal, globalRows); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook %s: %w", path, err)
	}
	return nil
}

// globalSettings lists the Global Configs rows for cfg.
func (c *Config) globalSettings() [][3]string {
	return [][3]string{
		{"EMAIL", "smtp_server", c.Email.SMTPServer},
		{"EMAIL", "smtp_port", strconv.Itoa(c.Email.SMTPPort)},
		{"EMAIL", "use_ssl", strconv.FormatBool(c.Email.UseSSL)},
		{"EMAIL", "username", c.Email.Username},
		{"EMAIL", "password", c.Email.Password},
		{"EMAIL", "from_email", c.Email.From},
		{"EMAIL", "to_emails", strings.Join(c.Email.To, ";")},
		{"EMAIL", "status_recipients", strings.Join(c.Email.StatusRecipients, ";")},
		{"LOGGING", "log_file", c.Logging.File},
		{"LOGGING", "log_level", c.Logging.Level},
		{"SYSTEM", "mode", c.System.Mode},
		{"SYSTEM", "use_remote_check", strconv.FormatBool(c.System.UseRemoteCheck)},
		{"SYSTEM", "timezone", c.System.Timezone},
		{"SYSTEM", "status_report", strconv.FormatBool(c.System.StatusReport)},
		{"SYSTEM", "state_file", c.System.StateFile},
		{"SYSTEM", "page_size", strconv.Itoa(c.System.PageSize)},
		{"SVN", "username", c.SVN.Username},
		{"SVN", "password", c.SVN.Password},
		{"SVN", "trust_server_cert", strconv.FormatBool(c.SVN.TrustServerCert)},
	}
}

func setRows(f *excelize.File, sheetName string, rows [][]any) error {
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &rows[i]); err != nil {
			return fmt.Errorf("writing %s!%s: %w", sheetName, cell, err)
		}
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
