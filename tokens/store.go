// Package tokens issues and validates single-use, expiring,
// purpose-scoped bearer tokens. For any (subject, purpose) pair at most
// one live token exists: issuing a new one or successfully validating
// any one deletes every sibling, so a token can never be replayed.
package tokens

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hackreg/apperr"
	"hackreg/models"
)

// Purposes used by the rest of the system.
const (
	PurposeEmailVerification = "email-verification"
	PurposePasswordReset     = "reset-password"
	PurposeTeamInvite        = "invite-to-team"
	PurposeOAuthState        = "oauth-state"
)

// Default TTLs per purpose.
const (
	EmailVerificationTTL = 7 * 24 * time.Hour
	PasswordResetTTL     = 10 * time.Minute
	TeamInviteTTL        = 7 * 24 * time.Hour
)

const idBytes = 32

// Store manages the tokens table. The clock is injectable for
// deterministic expiry tests.
type Store struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db, Now: time.Now}
}

// Issue deletes every existing token for (subjectID, purpose) and
// persists a fresh one expiring after ttl. The returned id is the bearer
// credential.
func (s *Store) Issue(subjectID, purpose string, ttl time.Duration) (string, error) {
	id, err := generateID()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}

	token := models.Token{
		ID:        id,
		SubjectID: subjectID,
		Purpose:   purpose,
		ExpiresAt: s.Now().Add(ttl),
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("subject_id = ? AND purpose = ?", subjectID, purpose).
			Delete(&models.Token{}).Error; err != nil {
			return err
		}
		return tx.Create(&token).Error
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Validate resolves a token to its subject. The read and the deletion of
// every token for the resolved (subject, purpose) pair happen in one
// transaction, so two concurrent validations of the same token yield
// exactly one success.
func (s *Store) Validate(tokenID, purpose string) (string, error) {
	var subjectID string
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		subjectID, err = s.ValidateIn(tx, tokenID, purpose)
		return err
	})
	if err != nil {
		return "", err
	}
	return subjectID, nil
}

// ValidateIn is Validate running inside the caller's transaction, for
// operations where consuming the token must roll back with the rest of
// the work. The token row is read under a row lock and its deletion is
// verified, so a concurrent validation that lost the race gets an
// invalid-token error instead of a second success.
func (s *Store) ValidateIn(tx *gorm.DB, tokenID, purpose string) (string, error) {
	var token models.Token
	if err := lockForUpdate(tx).First(&token, "id = ?", tokenID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperr.InvalidToken("unknown token")
		}
		return "", err
	}
	if token.Purpose != purpose {
		return "", apperr.InvalidToken("token purpose mismatch")
	}
	if !s.Now().Before(token.ExpiresAt) {
		return "", apperr.InvalidToken("token expired")
	}
	res := tx.Where("id = ?", tokenID).Delete(&models.Token{})
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", apperr.InvalidToken("token already used")
	}
	err := tx.Where("subject_id = ? AND purpose = ?", token.SubjectID, token.Purpose).
		Delete(&models.Token{}).Error
	if err != nil {
		return "", err
	}
	return token.SubjectID, nil
}

// DeleteExpired removes every token past its expiry and reports how many
// were swept.
func (s *Store) DeleteExpired() (int64, error) {
	res := s.DB.Where("expires_at <= ?", s.Now()).Delete(&models.Token{})
	return res.RowsAffected, res.Error
}

// lockForUpdate takes a row lock where the dialect supports it. SQLite
// rejects FOR UPDATE but serializes writers on its own, so skipping the
// clause there keeps the same guarantee.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func generateID() (string, error) {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
