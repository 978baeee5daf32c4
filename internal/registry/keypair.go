package registry

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/zulandar/roundhouse/internal/cierr"
	"golang.org/x/crypto/ssh"
)

// GenerateKeypair creates an ed25519 deploy keypair for the repository. The
// private half goes to the keystore; the derived public key is cached on the
// repository row and returned. Fails with cierr.ErrExists when a keypair is
// already present, unless replace is true.
func (r *Registry) GenerateKeypair(name string, replace bool) (string, error) {
	m := r.lock(name)
	m.Lock()
	defer m.Unlock()

	repo, err := r.GetByName(name)
	if err != nil {
		return "", err
	}
	if repo.HasKeypair() && !replace {
		return "", fmt.Errorf("registry: keypair for %q: %w", name, cierr.ErrExists)
	}

	private, public, err := newKeypair(name)
	if err != nil {
		return "", err
	}

	if err := r.keys.Put(name, private); err != nil {
		return "", err
	}

	repo.PublicKey = public
	if err := r.db.Save(repo).Error; err != nil {
		return "", fmt.Errorf("registry: cache public key for %q: %w", name, err)
	}
	return public, nil
}

// RemoveKeypair destroys the repository's keypair. Fails with
// cierr.ErrNotFound when none exists.
func (r *Registry) RemoveKeypair(name string) error {
	m := r.lock(name)
	m.Lock()
	defer m.Unlock()

	repo, err := r.GetByName(name)
	if err != nil {
		return err
	}
	if !repo.HasKeypair() {
		return fmt.Errorf("registry: keypair for %q: %w", name, cierr.ErrNotFound)
	}

	if err := r.keys.Delete(name); err != nil && !errors.Is(err, cierr.ErrNotFound) {
		return err
	}

	repo.PublicKey = ""
	if err := r.db.Save(repo).Error; err != nil {
		return fmt.Errorf("registry: clear public key for %q: %w", name, err)
	}
	return nil
}

// KeyPath returns the filesystem path of the repository's private key for
// handing to git/ssh, holding the per-repository lock so a concurrent
// remove cannot race the read.
func (r *Registry) KeyPath(name string) (string, error) {
	m := r.lock(name)
	m.Lock()
	defer m.Unlock()
	return r.keys.Path(name)
}

// newKeypair generates an ed25519 keypair, returning the PEM-encoded private
// key and the authorized_keys form of the public key.
func newKeypair(comment string) (private []byte, public string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("registry: generate keypair: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, "roundhouse:"+comment)
	if err != nil {
		return nil, "", fmt.Errorf("registry: marshal private key: %w", err)
	}
	private = pem.EncodeToMemory(block)

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, "", fmt.Errorf("registry: derive public key: %w", err)
	}
	public = strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))) + " roundhouse:" + comment
	return private, public, nil
}
