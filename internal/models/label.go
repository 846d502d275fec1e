package models

import "fmt"

// Label identifies one of the three fixed form sections.
type Label string

const (
	LabelA Label = "A"
	LabelB Label = "B"
	LabelS Label = "S"
)

// Labels lists the section labels in form order.
var Labels = []Label{LabelA, LabelB, LabelS}

// ParseLabel validates a label supplied by a client.
func ParseLabel(s string) (Label, error) {
	switch Label(s) {
	case LabelA, LabelB, LabelS:
		return Label(s), nil
	}
	return "", fmt.Errorf("unknown section label %q", s)
}
