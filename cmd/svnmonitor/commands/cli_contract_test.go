package commands

import (
	"bytes"
	"strings"
	"testing"
)

func TestCLIContract(t *testing.T) {
	cmd := NewRootCmd()
	b := bytes.NewBufferString("")
	cmd.SetOut(b)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	if err != nil {
		t.Fatalf("root command failed: %v", err)
	}

	out := b.String()

	requiredCommands := []string{
		"check",
		"completion",
		"config",
		"help",
		"hook",
		"post-commit",
		"state",
		"status",
		"version",
		"watch",
	}

	for _, c := range requiredCommands {
		if !strings.Contains(out, c) {
			t.Errorf("expected top-level command %q in root help", c)
		}
	}

	for _, flag := range []string{"--config", "--log-level", "--log-file", "--verbose"} {
		if !strings.Contains(out, flag) {
			t.Errorf("expected global flag %q in root help", flag)
		}
	}
}

func TestCLICommandHookHelp(t *testing.T) {
	cmd := NewRootCmd()
	b := bytes.NewBufferString("")
	cmd.SetOut(b)
	cmd.SetArgs([]string{"hook", "--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("hook help failed: %v", err)
	}

	out := b.String()
	for _, want := range []string{"Usage:", "--repository", "--revision"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in hook help", want)
		}
	}
}
