package db

import (
	"testing"
	"time"

	"github.com/zulandar/roundhouse/internal/config"
	"github.com/zulandar/roundhouse/internal/models"
)

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "10.0.0.5", Port: 3307, Database: "roundhouse_prod"}
	want := "root@tcp(10.0.0.5:3307)/roundhouse_prod?parseTime=true"
	if got := DSN(cfg); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestAutoMigrate_CreatesTables(t *testing.T) {
	gdb, err := ConnectMemory()
	if err != nil {
		t.Fatalf("ConnectMemory: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	repo := models.Repository{Name: "acme/app", CloneURL: "https://example.com/acme/app.git"}
	if err := gdb.Create(&repo).Error; err != nil {
		t.Fatalf("create repository: %v", err)
	}

	var got models.Repository
	if err := gdb.Where("name = ?", "acme/app").First(&got).Error; err != nil {
		t.Fatalf("read repository back: %v", err)
	}
	if got.CloneURL != repo.CloneURL {
		t.Errorf("CloneURL = %q, want %q", got.CloneURL, repo.CloneURL)
	}
}

func TestAutoMigrate_UniqueRepositoryName(t *testing.T) {
	gdb, err := ConnectMemory()
	if err != nil {
		t.Fatalf("ConnectMemory: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	first := models.Repository{Name: "acme/app", CloneURL: "https://example.com/a.git"}
	if err := gdb.Create(&first).Error; err != nil {
		t.Fatalf("create first: %v", err)
	}
	dup := models.Repository{Name: "acme/app", CloneURL: "https://example.com/b.git"}
	if err := gdb.Create(&dup).Error; err == nil {
		t.Fatal("expected unique constraint violation on duplicate name")
	}
}

func TestRecoverInterrupted(t *testing.T) {
	gdb, err := ConnectMemory()
	if err != nil {
		t.Fatalf("ConnectMemory: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	builds := []models.Build{
		{RepoName: "acme/app", Ref: "refs/heads/main", Status: models.BuildRunning, QueuedAt: time.Now()},
		{RepoName: "acme/app", Ref: "refs/heads/dev", Status: models.BuildQueued, QueuedAt: time.Now()},
		{RepoName: "acme/lib", Ref: "refs/heads/main", Status: models.BuildSucceeded, QueuedAt: time.Now()},
	}
	for i := range builds {
		if err := gdb.Create(&builds[i]).Error; err != nil {
			t.Fatalf("create build: %v", err)
		}
	}

	n, err := RecoverInterrupted(gdb)
	if err != nil {
		t.Fatalf("RecoverInterrupted: %v", err)
	}
	if n != 2 {
		t.Errorf("recovered = %d, want 2", n)
	}

	var aborted int64
	gdb.Model(&models.Build{}).Where("status = ?", models.BuildAborted).Count(&aborted)
	if aborted != 2 {
		t.Errorf("aborted count = %d, want 2", aborted)
	}

	// Terminal builds are untouched.
	var done models.Build
	if err := gdb.Where("repo_name = ?", "acme/lib").First(&done).Error; err != nil {
		t.Fatal(err)
	}
	if done.Status != models.BuildSucceeded {
		t.Errorf("terminal build status = %q, want succeeded", done.Status)
	}
}
