package models

import "time"

type BlacklistKind string

const (
	BlacklistEmail BlacklistKind = "email"
	BlacklistName  BlacklistKind = "name"
)

// BlacklistEntry is one normalized exclusion-list value. Matching against
// it is advisory only; it never blocks a decision. Hard-deleted so the
// composite unique index survives remove/re-add cycles.
type BlacklistEntry struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	Kind      BlacklistKind `gorm:"not null;uniqueIndex:idx_blacklist_kind_value" json:"kind"`
	Value     string        `gorm:"not null;uniqueIndex:idx_blacklist_kind_value" json:"value"`
	CreatedAt time.Time     `json:"created_at"`
}
