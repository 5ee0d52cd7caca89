package core

import (
	"fmt"
	"strings"
)

// JoinType determines when a task becomes enabled given the markings of its input conditions.
type JoinType string

const (
	JoinAND JoinType = "AND"
	JoinXOR JoinType = "XOR"
	JoinOR  JoinType = "OR"
)

func (j JoinType) Valid() bool {
	return j == JoinAND || j == JoinXOR || j == JoinOR
}

func (j *JoinType) UnmarshalText(b []byte) error {
	v := JoinType(strings.ToUpper(strings.TrimSpace(string(b))))
	if !v.Valid() {
		return fmt.Errorf("invalid join type %q", string(b))
	}

	*j = v
	return nil
}

// SplitType determines which output conditions receive a token when a task completes.
type SplitType string

const (
	SplitAND SplitType = "AND"
	SplitXOR SplitType = "XOR"
	SplitOR  SplitType = "OR"
)

func (s SplitType) Valid() bool {
	return s == SplitAND || s == SplitXOR || s == SplitOR
}

func (s *SplitType) UnmarshalText(b []byte) error {
	v := SplitType(strings.ToUpper(strings.TrimSpace(string(b))))
	if !v.Valid() {
		return fmt.Errorf("invalid split type %q", string(b))
	}

	*s = v
	return nil
}
