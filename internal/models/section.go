package models

// SectionEntry holds the number and date typed into one labeled section.
// The number is hinted as four digits in the UI, but only non-emptiness
// blocks a submission.
type SectionEntry struct {
	Number string `json:"number"`
	Date   string `json:"date"`
}

// SectionForm maps every section label to its entry. A valid form carries
// exactly the three fixed labels; keys are never dynamic.
type SectionForm map[Label]SectionEntry
