package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunRequiresAction(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("run() = %d; want 2", code)
	}
	if !strings.Contains(stderr.String(), "one of -list, -all or -tab is required") {
		t.Fatalf("stderr = %q; want usage hint", stderr.String())
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-nope"}, &stdout, &stderr); code != 2 {
		t.Fatalf("run() = %d; want 2", code)
	}
}

func TestRunBadRulesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-all", "-rules", "missing.yaml"}, &stdout, &stderr); code != 1 {
		t.Fatalf("run() = %d; want 1", code)
	}
	if !strings.Contains(stderr.String(), "rules config") {
		t.Fatalf("stderr = %q; want rules config error", stderr.String())
	}
}
