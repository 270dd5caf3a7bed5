package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"openintentd", "bogus"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "Unknown command") {
		t.Errorf("stderr = %q, want it to mention the unknown command", stderr.String())
	}
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"openintentd", "help"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "USAGE") {
		t.Errorf("stdout = %q, want usage text", stdout.String())
	}
}

func TestRun_HealthCmd_NoServer(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"openintentd", "health"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1 when no server is listening", code)
	}
	if !strings.Contains(stderr.String(), "health check failed") {
		t.Errorf("stderr = %q, want a health check failure message", stderr.String())
	}
}
