package models

import (
	"fmt"
	"time"
)

// Slot names one of the two upload targets on the form.
type Slot string

const (
	SlotPrimary   Slot = "primary"
	SlotSecondary Slot = "secondary"
)

// ParseSlot validates a slot name supplied by a client.
func ParseSlot(s string) (Slot, error) {
	switch Slot(s) {
	case SlotPrimary, SlotSecondary:
		return Slot(s), nil
	}
	return "", fmt.Errorf("unknown upload slot %q", s)
}

// StagedFile is an accepted PDF waiting on disk to be included in the next
// submission. Staging a slot again replaces the previous file.
type StagedFile struct {
	ID         string    `json:"id"`
	Slot       Slot      `json:"slot"`
	FileName   string    `json:"file_name"`
	StoredPath string    `json:"-"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"-"`
}
