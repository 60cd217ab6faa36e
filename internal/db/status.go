package db

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// LoanStatus describes the availability of a single book instance.
// It is stored as a one-character code and spelled out on the JSON surface.
//
// Any status may be changed to any other status: transition rules belong to a
// borrowing workflow and are not enforced here.
type LoanStatus string

const (
	StatusMaintenance LoanStatus = "m"
	StatusOnLoan      LoanStatus = "o"
	StatusAvailable   LoanStatus = "a"
	StatusReserved    LoanStatus = "r"
)

// ErrInvalidLoanStatus is returned for codes or names outside the closed set
var ErrInvalidLoanStatus = errors.New("invalid loan status")

var loanStatuses = []struct {
	status LoanStatus
	name   string
	label  string
}{
	{StatusMaintenance, "maintenance", "Maintenance"},
	{StatusOnLoan, "on_loan", "On loan"},
	{StatusAvailable, "available", "Available"},
	{StatusReserved, "reserved", "Reserved"},
}

// LoanStatuses returns every status in display order
func LoanStatuses() []LoanStatus {
	out := make([]LoanStatus, len(loanStatuses))
	for i, s := range loanStatuses {
		out[i] = s.status
	}
	return out
}

// ParseLoanStatus accepts the storage code ("o"), the API name ("on_loan")
// or the display label ("On loan").
func ParseLoanStatus(s string) (LoanStatus, error) {
	for _, ls := range loanStatuses {
		if s == string(ls.status) || s == ls.name || s == ls.label {
			return ls.status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLoanStatus, s)
}

// Valid reports whether s is one of the four known codes
func (s LoanStatus) Valid() bool {
	for _, ls := range loanStatuses {
		if s == ls.status {
			return true
		}
	}
	return false
}

// Name is the identifier used in the JSON API
func (s LoanStatus) Name() string {
	for _, ls := range loanStatuses {
		if s == ls.status {
			return ls.name
		}
	}
	return ""
}

// Label is the human readable form, e.g. "On loan"
func (s LoanStatus) Label() string {
	for _, ls := range loanStatuses {
		if s == ls.status {
			return ls.label
		}
	}
	return ""
}

func (s LoanStatus) String() string {
	return s.Label()
}

// MarshalText implements encoding.TextMarshaler
func (s LoanStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLoanStatus, string(s))
	}
	return []byte(s.Name()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *LoanStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseLoanStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer
func (s LoanStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLoanStatus, string(s))
	}
	return string(s), nil
}

// Scan implements sql.Scanner
func (s *LoanStatus) Scan(value interface{}) error {
	var code string
	switch v := value.(type) {
	case string:
		code = v
	case []byte:
		code = string(v)
	case nil:
		*s = StatusMaintenance
		return nil
	default:
		return fmt.Errorf("cannot scan %T into LoanStatus", value)
	}

	status := LoanStatus(code)
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLoanStatus, code)
	}
	*s = status
	return nil
}
