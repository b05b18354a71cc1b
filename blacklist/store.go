package blacklist

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hackreg/models"
)

// Store manages the persisted blacklist entries.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// Lists loads every entry split by kind.
func (s *Store) Lists() (Lists, error) {
	var entries []models.BlacklistEntry
	if err := s.DB.Find(&entries).Error; err != nil {
		return Lists{}, err
	}
	var lists Lists
	for _, entry := range entries {
		switch entry.Kind {
		case models.BlacklistEmail:
			lists.Emails = append(lists.Emails, entry.Value)
		case models.BlacklistName:
			lists.Names = append(lists.Names, entry.Value)
		}
	}
	return lists, nil
}

// Replace swaps the whole blacklist for the given sets: entries absent
// from the new sets are deleted, new ones inserted, duplicates skipped.
// Emails are normalized, names trimmed only.
func (s *Store) Replace(emails, names []string) (Lists, error) {
	normEmails := dedupe(emails, Normalize)
	exactNames := dedupe(names, strings.TrimSpace)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := deleteMissing(tx, models.BlacklistEmail, normEmails); err != nil {
			return err
		}
		if err := deleteMissing(tx, models.BlacklistName, exactNames); err != nil {
			return err
		}
		if err := insertAll(tx, models.BlacklistEmail, normEmails); err != nil {
			return err
		}
		return insertAll(tx, models.BlacklistName, exactNames)
	})
	if err != nil {
		return Lists{}, err
	}
	return Lists{Emails: normEmails, Names: exactNames}, nil
}

// Add inserts a single entry, skipping if it already exists or the
// normalized value is empty.
func (s *Store) Add(kind models.BlacklistKind, value string) (bool, error) {
	value = normalizeFor(kind, value)
	if value == "" {
		return false, nil
	}
	res := s.DB.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.BlacklistEntry{Kind: kind, Value: value})
	return res.RowsAffected > 0, res.Error
}

// Remove deletes the exact normalized entry.
func (s *Store) Remove(kind models.BlacklistKind, value string) error {
	value = normalizeFor(kind, value)
	return s.DB.Where("kind = ? AND value = ?", kind, value).
		Delete(&models.BlacklistEntry{}).Error
}

func normalizeFor(kind models.BlacklistKind, value string) string {
	if kind == models.BlacklistEmail {
		return Normalize(value)
	}
	return strings.TrimSpace(value)
}

func dedupe(values []string, normalize func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = normalize(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func deleteMissing(tx *gorm.DB, kind models.BlacklistKind, keep []string) error {
	q := tx.Where("kind = ?", kind)
	if len(keep) > 0 {
		q = q.Where("value NOT IN ?", keep)
	}
	return q.Delete(&models.BlacklistEntry{}).Error
}

func insertAll(tx *gorm.DB, kind models.BlacklistKind, values []string) error {
	if len(values) == 0 {
		return nil
	}
	entries := make([]models.BlacklistEntry, 0, len(values))
	for _, v := range values {
		entries = append(entries, models.BlacklistEntry{Kind: kind, Value: v})
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entries).Error
}
