package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
staging_dir = %q
log_dir = %q
staging_min_free_gib = 0

[tools]
fetch_command = "fetch-tool {id} {dest}"
transform_command = "transform-tool {input} {dest}"
infer_command = "infer-tool {input} {language} {tier}"
`, filepath.Join(base, "staging"), filepath.Join(base, "logs"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestStatusEmptyQueue(t *testing.T) {
	configPath := writeTestConfig(t)

	output, err := runCLI(t, configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(output, "Queue is empty") {
		t.Errorf("output = %q, want empty-queue notice", output)
	}
}

func TestSubmitThenListAndShow(t *testing.T) {
	configPath := writeTestConfig(t)

	output, err := runCLI(t, configPath, "submit", "media://cli-test-0001", "--owner", "tester")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(output, "queued as job") {
		t.Errorf("submit output = %q", output)
	}

	output, err = runCLI(t, configPath, "submit", "media://cli-test-0001", "--owner", "tester")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if !strings.Contains(output, "already submitted") {
		t.Errorf("resubmit output = %q, want dedup notice", output)
	}

	output, err = runCLI(t, configPath, "jobs")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(output, "pending") {
		t.Errorf("jobs output = %q, want a pending row", output)
	}

	// The first job in a fresh database is always ID 1.
	output, err = runCLI(t, configPath, "show", "1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(output, "Owner:    tester") {
		t.Errorf("show output = %q, want owner line", output)
	}
	if !strings.Contains(output, "fetch") {
		t.Errorf("show output = %q, want stage listing", output)
	}
}

func TestSubmitRejectsUnknownFlagsAndArgs(t *testing.T) {
	configPath := writeTestConfig(t)

	if _, err := runCLI(t, configPath, "submit"); err == nil {
		t.Error("submit without identifier should fail")
	}
	if _, err := runCLI(t, configPath, "submit", "media://abcd1234"); err == nil {
		t.Error("submit without --owner should fail")
	}
}

func TestDeadLetterListEmpty(t *testing.T) {
	configPath := writeTestConfig(t)

	output, err := runCLI(t, configPath, "deadletter", "list")
	if err != nil {
		t.Fatalf("deadletter list: %v", err)
	}
	if !strings.Contains(output, "No dead letters") {
		t.Errorf("output = %q", output)
	}
}

func TestDeadLetterRequeueUnknownJob(t *testing.T) {
	configPath := writeTestConfig(t)

	_, err := runCLI(t, configPath, "deadletter", "requeue", "42", "--by", "tester")
	if err == nil {
		t.Fatal("requeue of unknown job should fail")
	}
	if !strings.Contains(err.Error(), "no dead letter record") {
		t.Errorf("error = %v", err)
	}
}

func TestConfigInitCreatesSample(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "scribe.toml")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}

	cmd = newRootCommand()
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil {
		t.Error("second init without --overwrite should fail")
	}
}
