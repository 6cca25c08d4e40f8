// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bartekus/svnmonitor/cmd/svnmonitor/internal/clierr"
	"github.com/bartekus/svnmonitor/internal/config"
	"github.com/bartekus/svnmonitor/internal/logging"
	"github.com/bartekus/svnmonitor/internal/monitor"
	"github.com/bartekus/svnmonitor/internal/notify"
	"github.com/bartekus/svnmonitor/internal/runner"
	"github.com/bartekus/svnmonitor/internal/state"
	"github.com/bartekus/svnmonitor/internal/svn"
)

// Global flag names, also read from SVNMONITOR_* environment variables.
const (
	flagConfig   = "config"
	flagLogLevel = "log-level"
	flagLogFile  = "log-file"
	flagVerbose  = "verbose"
)

// runDir holds cycle reports, next to the revision file.
const runDir = ".svnmonitor/run"

// app carries what the commands share: the bound settings and the
// collaborators tests replace.
type app struct {
	v *viper.Viper

	executor svn.Executor
	notifier notify.Notifier
	clock    clockwork.Clock
}

func newApp() *app {
	return &app{v: viper.New()}
}

func (a *app) configPath() string {
	return a.v.GetString(flagConfig)
}

// loadConfig reads and validates the configuration. Problems with it are
// usage errors.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(a.configPath())
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "loading configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, cfg.Path, err)
	}
	for _, w := range cfg.Warnings {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	return cfg, nil
}

// newLogger builds the process logger. Flags win over the configuration and
// --verbose wins over both.
func (a *app) newLogger(cmd *cobra.Command, cfg *config.Config) (*zap.SugaredLogger, func() error, error) {
	opts := logging.Options{
		File:     cfg.Logging.File,
		Level:    cfg.Logging.Level,
		Location: cfg.System.Location(),
		Console:  cmd.ErrOrStderr(),
	}
	if f := a.v.GetString(flagLogFile); f != "" {
		opts.File = f
	}
	if l := a.v.GetString(flagLogLevel); l != "" {
		opts.Level = l
	}
	if a.v.GetBool(flagVerbose) {
		opts.Level = "debug"
	}
	log, closer, err := logging.New(opts)
	if err != nil {
		return nil, nil, clierr.Wrap(clierr.CodeUsage, "setting up logging", err)
	}
	return log, closer, nil
}

func (a *app) stores(cfg *config.Config) (*state.Store, *runner.StateStore) {
	return state.NewStore(cfg.System.StateFile),
		runner.NewStateStore(filepath.Join(filepath.Dir(cfg.System.StateFile), filepath.FromSlash(runDir)))
}

// session is a loaded configuration plus a ready monitor.
type session struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	monitor *monitor.Monitor
	close   func() error
}

func (a *app) openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, closer, err := a.newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	clock := a.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	client := svn.New(a.executor, svn.Options{
		Username:        cfg.SVN.Username,
		Password:        cfg.SVN.Password,
		TrustServerCert: cfg.SVN.TrustServerCert,
		PageSize:        cfg.System.PageSize,
		PagePause:       svn.DefaultPagePause,
		Location:        cfg.System.Location(),
	}, log.Named("svn"), clock)

	notifier := a.notifier
	if notifier == nil {
		notifier = notify.NewSMTPNotifier(cfg, log.Named("mail"), clock)
	}

	revs, runs := a.stores(cfg)
	return &session{
		cfg: cfg,
		log: log,
		monitor: monitor.New(monitor.Deps{
			Config:    cfg,
			SVN:       client,
			Revisions: revs,
			Runs:      runs,
			Notifier:  notifier,
			Log:       log,
			Clock:     clock,
		}),
		close: closer,
	}, nil
}

// Close flushes the logger.
func (s *session) Close() {
	_ = s.close()
}

// exitError maps monitor failures onto process exit codes. The svn exit
// status inside a CommandError is not the process status.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var coded *clierr.ExitError
	if errors.As(err, &coded) {
		return err
	}

	var cmdErr *svn.CommandError
	var runErr *runner.RunError
	switch {
	case errors.Is(err, monitor.ErrNotification),
		errors.Is(err, notify.ErrNotConfigured),
		errors.Is(err, notify.ErrNoRecipients):
		return clierr.Wrap(clierr.CodeNotification, "", err)
	case errors.As(err, &cmdErr), errors.As(err, &runErr):
		return clierr.Wrap(clierr.CodeSVN, "", err)
	case errors.Is(err, monitor.ErrNoRepositories),
		errors.Is(err, monitor.ErrUnknownRepository):
		return clierr.Wrap(clierr.CodeUsage, "", err)
	}
	return err
}

// usageArgs reports argument count problems as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return clierr.Wrap(clierr.CodeUsage, "", err)
		}
		return nil
	}
}

// flagError reports unparsable flags as usage errors.
func flagError(cmd *cobra.Command, err error) error {
	return clierr.Wrapf(clierr.CodeUsage, err, "%s", cmd.CommandPath())
}

func writeLine(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
