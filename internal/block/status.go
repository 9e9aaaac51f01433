package block

import "strings"

// Status is the generation state of a block.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, true
	case StatusInProgress:
		return StatusInProgress, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusFailed:
		return StatusFailed, true
	}
	return "", false
}

// IsTerminal reports whether the status marks finished generation.
// Terminal blocks only leave their state through an explicit
// regeneration request.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
