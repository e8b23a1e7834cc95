// Package enums holds the closed string vocabularies stored in the database
// and accepted over the API.
package enums

import (
	"fmt"
	"slices"
)

// set is the member list of one vocabulary.
type set[T ~string] []T

func (s set[T]) has(v T) bool {
	return slices.Contains(s, v)
}

// parse matches raw exactly; kind names the vocabulary in the error.
func (s set[T]) parse(kind, raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
