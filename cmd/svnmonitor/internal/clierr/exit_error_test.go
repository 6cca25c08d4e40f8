package clierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type codedErr struct{ code int }

func (c codedErr) Error() string { return fmt.Sprintf("exit %d", c.code) }
func (c codedErr) ExitCode() int { return c.code }

func TestExitCodeOf(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "plain error", err: cause, want: CodeFailure},
		{name: "explicit code", err: New(CodeUsage, "bad flag"), want: CodeUsage},
		{name: "wrapped twice", err: fmt.Errorf("outer: %w", Wrap(CodeSVN, "svn", cause)), want: CodeSVN},
		{name: "zero normalized", err: New(0, "zero"), want: CodeFailure},
		{name: "foreign coder", err: fmt.Errorf("child: %w", codedErr{code: 7}), want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeOf(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrapf(CodeNotification, cause, "sending to %s", "smtp.example.com")

	assert.Equal(t, "sending to smtp.example.com: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "only cause", Wrap(CodeFailure, "", errors.New("only cause")).Error())
}
