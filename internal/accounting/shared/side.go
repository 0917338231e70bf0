package shared

import "strings"

// Side selects the debit or credit column of a line.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// ParseSide accepts DEBIT/CREDIT and the dr/cr shorthands, case-insensitively.
func ParseSide(raw string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEBIT", "DR":
		return SideDebit, nil
	case "CREDIT", "CR":
		return SideCredit, nil
	}
	return "", ErrInvalidSide
}

// Valid reports whether s is DEBIT or CREDIT.
func (s Side) Valid() bool {
	return s == SideDebit || s == SideCredit
}

// Opposite swaps DEBIT and CREDIT.
func (s Side) Opposite() Side {
	if s == SideDebit {
		return SideCredit
	}
	return SideDebit
}

// UnmarshalText lets JSON payloads use "dr"/"cr".
func (s *Side) UnmarshalText(text []byte) error {
	parsed, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
