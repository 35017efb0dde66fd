package extract

import (
	"regexp"

	"github.com/leapstack-labs/lookpipe/pkg/core"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateIdentifier reports whether name may be embedded in query text.
// Anything but ASCII letters, digits and underscores is a SecurityError,
// and so is the empty string.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return &core.SecurityError{Identifier: name}
	}
	return nil
}
