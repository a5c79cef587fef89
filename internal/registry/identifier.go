package registry

import (
	"regexp"

	"anchor-backend/internal/apperr"
)

// identifierRe matches safe SQL identifiers. Anything else (statement
// terminators, comment sequences, leading digits, empty strings) is
// rejected before it can reach query text.
var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier verifies that a registry-supplied table or column name
// is safe to interpolate into SQL. Pure predicate, no side effects.
func ValidateIdentifier(ident string) error {
	if !identifierRe.MatchString(ident) {
		return apperr.InvalidIdentifier(ident)
	}
	return nil
}
