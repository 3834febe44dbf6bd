package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loginrelay/loginrelay/internal/classify"
	"github.com/loginrelay/loginrelay/internal/orchestrator"
	"github.com/loginrelay/loginrelay/internal/session"
)

var applicationTestCookies = []session.Cookie{
	{Name: "sid", Value: "1", Domain: ".example.test", Path: "/"},
	{Name: "csrf", Value: "2", Domain: ".example.test", Path: "/"},
}

func TestWriteCookiesFormats(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	var stringBuffer bytes.Buffer
	if err := writeCookies(&stringBuffer, applicationTestCookies, formatString, now); err != nil {
		t.Fatalf("write string: %v", err)
	}
	if stringBuffer.String() != "sid=1; csrf=2" {
		t.Fatalf("unexpected string output: %q", stringBuffer.String())
	}

	var jsonBuffer bytes.Buffer
	if err := writeCookies(&jsonBuffer, applicationTestCookies, formatJSON, now); err != nil {
		t.Fatalf("write json: %v", err)
	}
	var exported []session.ExportedCookie
	if err := json.Unmarshal(jsonBuffer.Bytes(), &exported); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(exported) != 2 || exported[1].Key != "csrf" || exported[1].Domain != "example.test" {
		t.Fatalf("unexpected json output: %+v", exported)
	}

	if err := writeCookies(&jsonBuffer, applicationTestCookies, "yaml", now); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestWriteCookiesFileRestrictsPermissions(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "cookies.txt")
	if err := writeCookiesFile(outputPath, applicationTestCookies, formatString); err != nil {
		t.Fatalf("write file: %v", err)
	}
	info, err := os.Stat(outputPath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != outputFileMode {
		t.Fatalf("unexpected permissions: %v", info.Mode().Perm())
	}
}

func TestDescribeAttempts(t *testing.T) {
	report := orchestrator.Report{Attempts: []orchestrator.Attempt{
		{Strategy: "form", Outcome: classify.OutcomeFailure},
		{Strategy: "api", Outcome: classify.OutcomeRateLimited},
	}}
	if described := describeAttempts(report); described != "form=failure, api=rate_limited" {
		t.Fatalf("unexpected description: %s", described)
	}
	if described := describeAttempts(orchestrator.Report{}); described != noAttemptsDescription {
		t.Fatalf("unexpected empty description: %s", described)
	}
}
