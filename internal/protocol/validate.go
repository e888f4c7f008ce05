package protocol

import "regexp"

var (
	requestIDPattern    = regexp.MustCompile(`^[a-z]{7}$`)
	alphanumericPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	referencePattern    = regexp.MustCompile(`^[A-Za-z0-9]+(\.[A-Za-z0-9]+)+$`)
)

// ValidRequestID reports whether s is seven lowercase ASCII letters.
// Discussion ids share the same shape.
func ValidRequestID(s string) bool {
	return requestIDPattern.MatchString(s)
}

// ValidAlphanumeric reports whether s is a non-empty ASCII alphanumeric string.
func ValidAlphanumeric(s string) bool {
	return alphanumericPattern.MatchString(s)
}

// ValidReference reports whether s is at least two non-empty alphanumeric
// segments joined by single dots.
func ValidReference(s string) bool {
	return referencePattern.MatchString(s)
}
