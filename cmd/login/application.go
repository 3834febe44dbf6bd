package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/loginrelay/loginrelay/internal/orchestrator"
	"github.com/loginrelay/loginrelay/internal/session"
)

const (
	formatJSON              = "json"
	formatString            = "string"
	outputFileMode          = 0o600
	exportIndent            = "  "
	attemptSeparator        = ", "
	attemptFormat           = "%s=%s"
	noAttemptsDescription   = "nothing"
	errMessageUnknownFormat = "format must be json or string"
	errMessageEncodeCookies = "encode cookies"
	errMessageWriteCookies  = "write cookies"
)

func validateFormat(format string) error {
	if format != formatJSON && format != formatString {
		return fmt.Errorf("%s: %q", errMessageUnknownFormat, format)
	}
	return nil
}

func writeCookies(writer io.Writer, cookies []session.Cookie, format string, now time.Time) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if format == formatString {
		_, err := io.WriteString(writer, session.CookieHeader(cookies))
		return err
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", exportIndent)
	if err := encoder.Encode(session.ExportCookies(cookies, now)); err != nil {
		return fmt.Errorf("%s: %w", errMessageEncodeCookies, err)
	}
	return nil
}

func writeCookiesFile(outputPath string, cookies []session.Cookie, format string) error {
	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outputFileMode)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageWriteCookies, err)
	}
	if err := writeCookies(file, cookies, format, time.Now()); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%s: %w", errMessageWriteCookies, err)
	}
	return nil
}

func describeAttempts(report orchestrator.Report) string {
	if len(report.Attempts) == 0 {
		return noAttemptsDescription
	}
	described := make([]string, 0, len(report.Attempts))
	for _, attempt := range report.Attempts {
		described = append(described, fmt.Sprintf(attemptFormat, attempt.Strategy, attempt.Outcome))
	}
	return strings.Join(described, attemptSeparator)
}
