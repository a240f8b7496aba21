package topstories

import (
	"errors"
	"fmt"
	"slices"
)

// DefaultSection is queried when no section is given.
const DefaultSection = "home"

var sections = []string{
	"home", "world", "national", "politics", "nyregion", "business",
	"opinion", "technology", "science", "health", "sports", "arts",
	"fashion", "dining", "travel", "magazine", "realestate",
}

// ErrInvalidSection is returned for sections outside the allow-list.
var ErrInvalidSection = errors.New("not a valid section to query")

// InvalidSectionError names the rejected section. It matches ErrInvalidSection
// with errors.Is.
type InvalidSectionError struct {
	Section string
}

func (e *InvalidSectionError) Error() string {
	return fmt.Sprintf("%q: %s", e.Section, ErrInvalidSection)
}

func (e *InvalidSectionError) Unwrap() error { return ErrInvalidSection }

// Sections returns the allow-list in its canonical order.
func Sections() []string {
	return slices.Clone(sections)
}

// IsValidSection reports whether section can be queried upstream.
func IsValidSection(section string) bool {
	return slices.Contains(sections, section)
}
