package script

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zulandar/roundhouse/internal/cierr"
)

func TestResolve_OverrideWins(t *testing.T) {
	dir := t.TempDir()

	// An in-repo script exists too; the override must still win.
	if err := os.WriteFile(filepath.Join(dir, ".roundhouse.sh"), []byte("#!/bin/sh\necho repo\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	override := "#!/bin/sh\necho override\n"
	res, err := Resolve(dir, override, []string{".roundhouse.sh"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Override {
		t.Error("Override flag not set")
	}

	got, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != override {
		t.Errorf("script text = %q, want the override verbatim", got)
	}

	info, err := os.Stat(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Error("override script is not executable")
	}
}

func TestResolve_InRepoScript(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".roundhouse.sh"), []byte("#!/bin/sh\nexit 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Resolve(dir, "", []string{".roundhouse.sh"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Override {
		t.Error("Override flag set for in-repo script")
	}
	if res.Path != filepath.Join(dir, ".roundhouse.sh") {
		t.Errorf("Path = %q", res.Path)
	}

	info, err := os.Stat(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Error("in-repo script was not made executable")
	}
}

func TestResolve_CandidateOrder(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ci.sh"), []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".roundhouse.sh"), []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Resolve(dir, "", []string{".roundhouse.sh", "ci.sh"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if filepath.Base(res.Path) != ".roundhouse.sh" {
		t.Errorf("picked %q, want first candidate", res.Path)
	}
}

func TestResolve_NothingFound(t *testing.T) {
	_, err := Resolve(t.TempDir(), "", []string{".roundhouse.sh", "ci.sh"})
	if !errors.Is(err, cierr.ErrNotFound) {
		t.Errorf("Resolve = %v, want ErrNotFound", err)
	}
}

func TestResolve_WhitespaceOverrideIgnored(t *testing.T) {
	_, err := Resolve(t.TempDir(), "   \n", []string{".roundhouse.sh"})
	if !errors.Is(err, cierr.ErrNotFound) {
		t.Errorf("Resolve = %v, want ErrNotFound for blank override and no script", err)
	}
}

func TestResolve_DirectoryCandidateSkipped(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".roundhouse.sh"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := Resolve(dir, "", []string{".roundhouse.sh"})
	if !errors.Is(err, cierr.ErrNotFound) {
		t.Errorf("Resolve = %v, want ErrNotFound when candidate is a directory", err)
	}
}
