package models

import "time"

// Status is the lifecycle state of a submission record. Records start as
// processing and end in exactly one of completed or error.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// SubmissionRecord tracks one labeled section of one submission. Three are
// created per submission, one per label, and are never deleted.
type SubmissionRecord struct {
	ID            string    `json:"id"`
	Label         Label     `json:"label"`
	Number        string    `json:"number"`
	Date          string    `json:"date"`
	PrimaryFile   string    `json:"primary_file"`
	SecondaryFile string    `json:"secondary_file"`
	Status        Status    `json:"status"`
	Result        string    `json:"result,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
