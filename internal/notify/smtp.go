// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/bartekus/svnmonitor/internal/config"
)

const (
	DefaultAttempts   = 3
	DefaultRetryDelay = 2 * time.Second
	DefaultTimeout    = 30 * time.Second
)

// Sender hands finished messages to a mail server.
type Sender interface {
	Send(ctx context.Context, msgs ...*mail.Msg) error
}

// SMTPSender dials the configured server for every send.
type SMTPSender struct {
	cfg     config.EmailConfig
	timeout time.Duration
}

func NewSMTPSender(cfg config.EmailConfig, timeout time.Duration) *SMTPSender {
	return &SMTPSender{cfg: cfg, timeout: timeout}
}

func (s *SMTPSender) Send(ctx context.Context, msgs ...*mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.SMTPPort),
		mail.WithTimeout(s.timeout),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
	}
	if s.cfg.UseSSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(s.cfg.SMTPServer, opts...)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msgs...)
}

// SMTPNotifier renders messages and delivers them with retries.
type SMTPNotifier struct {
	cfg      *config.Config
	resolver *Resolver
	sender   Sender
	log      *zap.SugaredLogger
	clock    clockwork.Clock

	attempts   int
	retryDelay time.Duration
}

type Option func(*SMTPNotifier)

// WithSender replaces the SMTP transport, mostly for tests.
func WithSender(s Sender) Option {
	return func(n *SMTPNotifier) { n.sender = s }
}

func WithRetry(attempts int, delay time.Duration) Option {
	return func(n *SMTPNotifier) {
		n.attempts = attempts
		n.retryDelay = delay
	}
}

func NewSMTPNotifier(cfg *config.Config, log *zap.SugaredLogger, clock clockwork.Clock, opts ...Option) *SMTPNotifier {
	n := &SMTPNotifier{
		cfg:        cfg,
		resolver:   NewResolver(cfg),
		sender:     NewSMTPSender(cfg.Email, DefaultTimeout),
		log:        log,
		clock:      clock,
		attempts:   DefaultAttempts,
		retryDelay: DefaultRetryDelay,
	}
	for _, o := range opts {
		o(n)
	}
	if n.log == nil {
		n.log = zap.NewNop().Sugar()
	}
	if n.clock == nil {
		n.clock = clockwork.NewRealClock()
	}
	if n.attempts < 1 {
		n.attempts = 1
	}
	return n
}

// Configured reports whether server, sender and credentials are all set.
func (n *SMTPNotifier) Configured() error {
	e := n.cfg.Email
	var missing []string
	if strings.TrimSpace(e.SMTPServer) == "" {
		missing = append(missing, "smtp_server")
	}
	if strings.TrimSpace(e.From) == "" {
		missing = append(missing, "from_email")
	}
	if !e.HasCredentials() {
		missing = append(missing, "username/password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	return nil
}

// Notify sends one email covering every change in batch to the union of
// the affected repositories' recipients.
func (n *SMTPNotifier) Notify(ctx context.Context, batch []Change) error {
	if len(batch) == 0 {
		return nil
	}
	if err := n.Configured(); err != nil {
		return err
	}
	to := n.resolver.ForBatch(batch)
	if len(to) == 0 {
		return ErrNoRecipients
	}
	msg, err := RenderChanges(batch, n.cfg.System.Location())
	if err != nil {
		return err
	}
	return n.deliver(ctx, to, msg)
}

// Report sends the status report to the status recipients.
func (n *SMTPNotifier) Report(ctx context.Context, report StatusReport) error {
	if err := n.Configured(); err != nil {
		return err
	}
	to := n.resolver.StatusRecipients()
	if len(to) == 0 {
		return ErrNoRecipients
	}
	msg, err := RenderStatus(report, n.cfg.System.Location())
	if err != nil {
		return err
	}
	return n.deliver(ctx, to, msg)
}

func (n *SMTPNotifier) build(to []string, m Message) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.Email.From); err != nil {
		return nil, fmt.Errorf("sender address: %w", err)
	}
	if err := msg.To(to...); err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, m.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, m.HTML)
	return msg, nil
}

func (n *SMTPNotifier) deliver(ctx context.Context, to []string, m Message) error {
	msg, err := n.build(to, m)
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		err = n.sender.Send(ctx, msg)
		if err == nil {
			n.log.Infow("email sent", "subject", m.Subject, "recipients", to, "attempt", attempt)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.log.Warnw("sending email failed", "attempt", attempt, "of", n.attempts, "error", err)
		if attempt >= n.attempts {
			return fmt.Errorf("sending email after %d attempts: %w", attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.clock.After(n.retryDelay):
		}
	}
}
