package model

import "time"

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Suggestion is a stored advisor finding. DumpID names the global dump it
// was raised for.
type Suggestion struct {
	ID         int64     `json:"id,omitempty"`
	TaskUUID   string    `json:"tid"`
	DumpID     string    `json:"dump_id,omitempty"`
	Type       string    `json:"type,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	Suggestion string    `json:"suggestion"`
	Target     string    `json:"target,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// SuggestionRule is a stored threshold that overrides a built-in advisor rule.
type SuggestionRule struct {
	ID                int64   `json:"id"`
	Type              string  `json:"type"`
	Target            string  `json:"target"`
	Threshold         float64 `json:"threshold"`
	SuggestionContent string  `json:"suggestion_content"`
}

func (s *Suggestion) IsEmpty() bool {
	return s.Suggestion == ""
}

// ToItem converts the suggestion into the response form.
func (s *Suggestion) ToItem() SuggestionItem {
	return SuggestionItem{
		Suggestion: s.Suggestion,
		Type:       s.Type,
		Severity:   s.Severity,
		Target:     s.Target,
		Namespace:  s.DumpID,
	}
}

// ForTask converts a response item into a suggestion row of taskUUID,
// stamped with the current time.
func (i SuggestionItem) ForTask(taskUUID string) Suggestion {
	now := time.Now()
	return Suggestion{
		TaskUUID:   taskUUID,
		DumpID:     i.Namespace,
		Type:       i.Type,
		Severity:   i.Severity,
		Suggestion: i.Suggestion,
		Target:     i.Target,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
