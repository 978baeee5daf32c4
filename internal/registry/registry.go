// Package registry is the catalog of build targets. It is the single source
// of truth for repository configuration; the scheduler re-reads it on every
// trigger.
package registry

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/zulandar/roundhouse/internal/cierr"
	"github.com/zulandar/roundhouse/internal/keystore"
	"github.com/zulandar/roundhouse/internal/models"
	"gorm.io/gorm"
)

// Registry provides repository CRUD and keypair management backed by the
// database and a keystore.
type Registry struct {
	db   *gorm.DB
	keys keystore.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Fields holds the user-settable repository attributes.
type Fields struct {
	Name         string
	CloneURL     string
	Secret       string
	RefWhitelist string
	BuildScript  string
}

// New creates a Registry.
func New(db *gorm.DB, keys keystore.Store) *Registry {
	return &Registry{
		db:    db,
		keys:  keys,
		locks: make(map[string]*sync.Mutex),
	}
}

// lock returns the per-repository mutex, creating it on first use. It
// serializes keypair mutation against clone-side key reads.
func (r *Registry) lock(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.locks[name]
	if !ok {
		m = &sync.Mutex{}
		r.locks[name] = m
	}
	return m
}

// validate checks required fields and flags suspicious clone URLs.
func validate(f Fields) error {
	var errs []string
	if strings.TrimSpace(f.Name) == "" {
		errs = append(errs, "name is required")
	}
	if strings.TrimSpace(f.CloneURL) == "" {
		errs = append(errs, "clone URL is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("registry: %s: %w", strings.Join(errs, "; "), cierr.ErrValidation)
	}

	// Embedded credentials are accepted but flagged.
	if u, err := url.Parse(f.CloneURL); err == nil && u.User != nil {
		if _, has := u.User.Password(); has {
			log.Printf("registry: clone URL for %q embeds credentials", f.Name)
		}
	}
	return nil
}

// Create registers a new repository.
func (r *Registry) Create(f Fields) (*models.Repository, error) {
	if err := validate(f); err != nil {
		return nil, err
	}

	repo := models.Repository{
		Name:         f.Name,
		CloneURL:     f.CloneURL,
		Secret:       f.Secret,
		RefWhitelist: f.RefWhitelist,
		BuildScript:  f.BuildScript,
	}
	if err := r.db.Create(&repo).Error; err != nil {
		return nil, fmt.Errorf("registry: create %q: %w", f.Name, err)
	}
	return &repo, nil
}

// Update modifies an existing repository. The name itself is not renamed;
// it is the identity everything else keys on.
func (r *Registry) Update(name string, f Fields) (*models.Repository, error) {
	f.Name = name
	if err := validate(f); err != nil {
		return nil, err
	}

	repo, err := r.GetByName(name)
	if err != nil {
		return nil, err
	}

	repo.CloneURL = f.CloneURL
	repo.Secret = f.Secret
	repo.RefWhitelist = f.RefWhitelist
	repo.BuildScript = f.BuildScript
	if err := r.db.Save(repo).Error; err != nil {
		return nil, fmt.Errorf("registry: update %q: %w", name, err)
	}
	return repo, nil
}

// CreateOrUpdate upserts by name, matching the add/edit form boundary.
func (r *Registry) CreateOrUpdate(f Fields) (*models.Repository, error) {
	_, err := r.GetByName(f.Name)
	if errors.Is(err, cierr.ErrNotFound) {
		return r.Create(f)
	}
	if err != nil {
		return nil, err
	}
	return r.Update(f.Name, f)
}

// Delete removes a repository and its keypair, if any.
func (r *Registry) Delete(name string) error {
	m := r.lock(name)
	m.Lock()
	defer m.Unlock()

	result := r.db.Where("name = ?", name).Delete(&models.Repository{})
	if result.Error != nil {
		return fmt.Errorf("registry: delete %q: %w", name, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("registry: repository %q: %w", name, cierr.ErrNotFound)
	}

	// Best-effort: a repository without a keypair is fine.
	if err := r.keys.Delete(name); err != nil && !errors.Is(err, cierr.ErrNotFound) {
		log.Printf("registry: delete key for %q: %v", name, err)
	}
	return nil
}

// GetByName fetches one repository.
func (r *Registry) GetByName(name string) (*models.Repository, error) {
	var repo models.Repository
	err := r.db.Where("name = ?", name).First(&repo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("registry: repository %q: %w", name, cierr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get %q: %w", name, err)
	}
	return &repo, nil
}

// List returns all repositories ordered by name.
func (r *Registry) List() ([]models.Repository, error) {
	var repos []models.Repository
	if err := r.db.Order("name ASC").Find(&repos).Error; err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	return repos, nil
}
