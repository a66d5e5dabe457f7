package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCancelled Status = "cancelled"
)

const (
	MinMemberAge = 18
	MaxMemberAge = 80

	PhoneDigits       = 10
	MinDescriptionLen = 3
	MaxDescriptionLen = 200
	MaxNameLen        = 100
)

type (
	// Status is the lifecycle state of an expense. Expenses start pending
	// and end in exactly one of the terminal states.
	Status string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// TeamMember is a person expenses can be assigned to. ID is an opaque
	// store-assigned identifier.
	TeamMember struct {
		ID        string
		Name      string
		Age       int
		Phone     string
		CreatedAt time.Time
	}

	// Expense is a single spending record. AssignedTo holds the ID of a
	// TeamMember; the display name is resolved at read time.
	Expense struct {
		ID          string
		Amount      Money
		Date        Date
		Category    string
		AssignedTo  string
		Description string
		Status      Status
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("conflicting concurrent update")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// ValidationError reports the first field of a record that failed
// validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, invalidField("date", "must be a valid YYYY-MM-DD date")
	}
	return Date{Time: t}, nil
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return invalidField("date", "cannot be empty")
	}
	return nil
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusCancelled
}

// CheckTransition validates a status change. Only pending expenses move,
// and only into a terminal state.
func CheckTransition(from, to Status) error {
	if !to.Valid() || to == StatusPending {
		return ErrInvalidTransition
	}
	if from != StatusPending {
		return ErrInvalidTransition
	}
	return nil
}

func (m TeamMember) Validate() error {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return invalidField("name", "cannot be empty")
	}
	if len(name) > MaxNameLen {
		return invalidField("name", fmt.Sprintf("too long (max %d characters)", MaxNameLen))
	}
	if m.Age < MinMemberAge || m.Age > MaxMemberAge {
		return invalidField("age", fmt.Sprintf("must be between %d and %d", MinMemberAge, MaxMemberAge))
	}
	if !isDigits(m.Phone) || len(m.Phone) != PhoneDigits {
		return invalidField("phone", fmt.Sprintf("must be exactly %d digits", PhoneDigits))
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return invalidField("amount", "must be greater than zero")
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return invalidField("category", "cannot be empty")
	}
	if strings.TrimSpace(e.AssignedTo) == "" {
		return invalidField("assignedTo", "cannot be empty")
	}
	desc := strings.TrimSpace(e.Description)
	if len(desc) < MinDescriptionLen {
		return invalidField("description", fmt.Sprintf("must be at least %d characters", MinDescriptionLen))
	}
	if len(e.Description) > MaxDescriptionLen {
		return invalidField("description", fmt.Sprintf("too long (max %d characters)", MaxDescriptionLen))
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
