package models

import "time"

// Repository is a registered build target. Name is the "owner/name" identity
// and is unique. The private half of an SSH keypair never lands here; only
// the derived public key is cached for display.
type Repository struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"size:128;uniqueIndex;not null"`
	CloneURL     string `gorm:"type:text;not null"`
	Secret       string `gorm:"size:128"`
	RefWhitelist string `gorm:"type:text"`
	BuildScript  string `gorm:"type:text"`
	PublicKey    string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasKeypair reports whether a keypair has been generated for this repository.
func (r *Repository) HasKeypair() bool {
	return r.PublicKey != ""
}
