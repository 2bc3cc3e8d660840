package check

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind classifies a repository. Kinds are ordered from least to most severe.
type Kind int

const (
	// KindUncloneable means no candidate URL could be cloned.
	KindUncloneable Kind = iota
	// KindUnnamed means the package declares no repository.
	KindUnnamed
	// KindSuccess means the repository was cloned and its age is known.
	KindSuccess
	// KindUnassociated means the repository contains no manifest for the
	// package.
	KindUnassociated
	// KindNonexistent means the repository no longer exists.
	KindNonexistent
	// KindArchived means the repository has been archived.
	KindArchived
)

var kindLabels = map[Kind]string{
	KindUncloneable:  "Uncloneable",
	KindUnnamed:      "Unnamed",
	KindSuccess:      "Age",
	KindUnassociated: "Unassociated",
	KindNonexistent:  "Nonexistent",
	KindArchived:     "Archived",
}

// String returns the kind's label.
func (k Kind) String() string {
	if label, ok := kindLabels[k]; ok {
		return label
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Status is the outcome of inspecting a package's repository. URL is empty
// only for KindUnnamed. Age is set only for KindSuccess.
type Status struct {
	Kind Kind
	URL  string
	Age  time.Duration
}

// Failure reports whether the repository could not be inspected or is gone.
func (s Status) Failure() bool {
	return s.Kind != KindSuccess
}

// Compare orders statuses by kind and then by age.
func (s Status) Compare(other Status) int {
	switch {
	case s.Kind < other.Kind:
		return -1
	case s.Kind > other.Kind:
		return 1
	case s.Age < other.Age:
		return -1
	case s.Age > other.Age:
		return 1
	default:
		return 0
	}
}

// String renders the status for humans.
func (s Status) String() string {
	switch s.Kind {
	case KindSuccess:
		return fmt.Sprintf("%d days", int64(s.Age/(24*time.Hour)))
	case KindUnnamed:
		return "no repository"
	default:
		return fmt.Sprintf("%s (%s)", s.Kind, s.URL)
	}
}

// MarshalJSON encodes a success as {"Age": seconds} and every other kind as
// its label.
func (s Status) MarshalJSON() ([]byte, error) {
	if s.Kind == KindSuccess {
		return json.Marshal(map[string]int64{"Age": int64(s.Age / time.Second)})
	}
	return json.Marshal(s.Kind.String())
}
