// SPDX-License-Identifier: AGPL-3.0-or-later

package monitor

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Operation types written to the operation log.
const (
	OpCommitProcessed = "COMMIT_PROCESSED"
	OpChangeDetected  = "CHANGE_DETECTED"
	OpNotification    = "NOTIFICATION"
	OpSuccess         = "SUCCESS"
	OpWarning         = "WARNING"
	OpError           = "ERROR"
	OpInfo            = "INFO"
)

// Audit writes the operation log: one structured entry per notable event,
// stamped in the configured timezone.
type Audit struct {
	log   *zap.SugaredLogger
	clock clockwork.Clock
	loc   *time.Location
}

func NewAudit(log *zap.SugaredLogger, clock clockwork.Clock, loc *time.Location) *Audit {
	if loc == nil {
		loc = time.Local
	}
	return &Audit{log: log.Named("operation"), clock: clock, loc: loc}
}

// Record logs an operation. ERROR and WARNING entries use the matching
// level; everything else is info.
func (a *Audit) Record(opType, message, repo string, kv ...any) {
	fields := append([]any{
		"operation_id", uuid.NewString(),
		"timestamp", a.clock.Now().In(a.loc).Format(time.RFC3339),
		"operation_type", opType,
		"repository", repo,
	}, kv...)

	switch opType {
	case OpError:
		a.log.Errorw(message, fields...)
	case OpWarning:
		a.log.Warnw(message, fields...)
	default:
		a.log.Infow(message, fields...)
	}
}
