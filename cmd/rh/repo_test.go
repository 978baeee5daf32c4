package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestConfig writes a config pointing at a throwaway sqlite database
// and returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "roundhouse.yaml")
	content := fmt.Sprintf(`database:
  driver: sqlite
  path: %s
builds:
  dir: %s
  keys_dir: %s
`, filepath.Join(dir, "rh.db"), filepath.Join(dir, "builds"), filepath.Join(dir, "keys"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return configPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestDBInitCmd(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCLI(t, "db", "init", "-c", configPath)
	if err != nil {
		t.Fatalf("db init failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Migrated") {
		t.Errorf("expected migration summary, got: %s", out)
	}
}

func TestRepoLifecycle(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCLI(t, "repo", "add", "acme/app",
		"--url", "https://example.com/acme/app.git",
		"--secret", "s3cret",
		"-c", configPath)
	if err != nil {
		t.Fatalf("repo add failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Registered repository acme/app") {
		t.Errorf("unexpected add output: %s", out)
	}
	if !strings.Contains(out, "/hook/acme/app") {
		t.Errorf("expected webhook path in output: %s", out)
	}

	out, err = runCLI(t, "repo", "list", "-c", configPath)
	if err != nil {
		t.Fatalf("repo list failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "acme/app") || !strings.Contains(out, "set") {
		t.Errorf("unexpected list output: %s", out)
	}

	out, err = runCLI(t, "repo", "show", "acme/app", "-c", configPath)
	if err != nil {
		t.Fatalf("repo show failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "https://example.com/acme/app.git") {
		t.Errorf("unexpected show output: %s", out)
	}
	if strings.Contains(out, "s3cret") {
		t.Errorf("show leaked the secret: %s", out)
	}

	out, err = runCLI(t, "repo", "rm", "acme/app", "-c", configPath)
	if err != nil {
		t.Fatalf("repo rm failed: %v\n%s", err, out)
	}

	out, err = runCLI(t, "repo", "show", "acme/app", "-c", configPath)
	if err == nil {
		t.Errorf("expected show to fail after rm, got: %s", out)
	}
}

func TestRepoEditCmd_KeepsUnchangedFields(t *testing.T) {
	configPath := writeTestConfig(t)

	if out, err := runCLI(t, "repo", "add", "acme/app",
		"--url", "https://example.com/acme/app.git",
		"--refs", "refs/heads/main",
		"-c", configPath); err != nil {
		t.Fatalf("repo add failed: %v\n%s", err, out)
	}

	if out, err := runCLI(t, "repo", "edit", "acme/app",
		"--script", "#!/bin/sh\nmake test\n",
		"-c", configPath); err != nil {
		t.Fatalf("repo edit failed: %v\n%s", err, out)
	}

	out, err := runCLI(t, "repo", "show", "acme/app", "-c", configPath)
	if err != nil {
		t.Fatalf("repo show failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "override set") {
		t.Errorf("edit did not set override script: %s", out)
	}
	if !strings.Contains(out, "refs/heads/main") {
		t.Errorf("edit clobbered ref whitelist: %s", out)
	}
}

func TestRepoAddCmd_MissingURL(t *testing.T) {
	configPath := writeTestConfig(t)

	if out, err := runCLI(t, "repo", "add", "acme/app", "-c", configPath); err == nil {
		t.Errorf("expected error without --url, got: %s", out)
	}
}

func TestKeypairLifecycle(t *testing.T) {
	configPath := writeTestConfig(t)

	if out, err := runCLI(t, "repo", "add", "acme/app",
		"--url", "git@example.com:acme/app.git",
		"-c", configPath); err != nil {
		t.Fatalf("repo add failed: %v\n%s", err, out)
	}

	out, err := runCLI(t, "keypair", "gen", "acme/app", "-c", configPath)
	if err != nil {
		t.Fatalf("keypair gen failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ssh-ed25519") {
		t.Errorf("expected public key in output: %s", out)
	}

	// A second gen without --replace refuses.
	if out, err := runCLI(t, "keypair", "gen", "acme/app", "-c", configPath); err == nil {
		t.Errorf("expected second gen to fail, got: %s", out)
	}

	out, err = runCLI(t, "keypair", "show", "acme/app", "-c", configPath)
	if err != nil {
		t.Fatalf("keypair show failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ssh-ed25519") {
		t.Errorf("expected public key from show: %s", out)
	}

	if out, err := runCLI(t, "keypair", "rm", "acme/app", "-c", configPath); err != nil {
		t.Fatalf("keypair rm failed: %v\n%s", err, out)
	}
	if out, err := runCLI(t, "keypair", "show", "acme/app", "-c", configPath); err == nil {
		t.Errorf("expected show to fail after rm, got: %s", out)
	}
}

func TestBuildListCmd_Empty(t *testing.T) {
	configPath := writeTestConfig(t)

	if out, err := runCLI(t, "db", "init", "-c", configPath); err != nil {
		t.Fatalf("db init failed: %v\n%s", err, out)
	}

	out, err := runCLI(t, "build", "list", "-c", configPath)
	if err != nil {
		t.Fatalf("build list failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "No builds found") {
		t.Errorf("unexpected list output: %s", out)
	}
}
