package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/roman-kulish/rf-sentinel/internal/sdr/driver"
)

func TestCommandErrorReportedOnce(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	// No input recording
	rootCmd.SetArgs([]string{"waterfall", "--log-level", "error", "--output", "out.png"})
	err := rootCmd.Execute()

	var logged loggedError
	if !errors.As(err, &logged) {
		t.Fatalf("Execute() error = %v, want an error already logged", err)
	}
	var configErr *driver.ConfigError
	if !errors.As(err, &configErr) {
		t.Errorf("Execute() error = %T, want *driver.ConfigError", err)
	}
	if out.Len() != 0 {
		t.Errorf("command printed %q", out.String())
	}
}

func TestUsageErrorNotLogged(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"monitor", "--no-such-flag"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("Execute() expected error")
	}

	// main prints it, cobra does not
	var logged loggedError
	if errors.As(err, &logged) {
		t.Errorf("usage error %v marked as logged", err)
	}
	if out.Len() != 0 {
		t.Errorf("command printed %q", out.String())
	}
}
