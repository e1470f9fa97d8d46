package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Size limits (in bytes)
const (
	MaxFacetSize   = 2 * 1024 * 1024 // 2MB - one source facet
	MaxBundleSize  = 4 * 1024 * 1024 // 4MB - all facets together
	MaxMessageSize = 64 * 1024       // 64KB - one relayed frame message
)

// String length limits
const (
	MaxIDLength         = 128
	MaxComponentNameLen = 128
	MaxKeyLength        = 32
)

// Regular expressions for validation
var (
	// SafeIDPattern allows alphanumeric, hyphens, underscores
	SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	// IdentifierPattern matches a script identifier usable as an export name
	IdentifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	// KeyPattern matches a keyboard key name
	KeyPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil // Optional field, empty is OK
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	// Check for null bytes (security issue)
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateID validates an ID field
func ValidateID(id, fieldName string, required bool) error {
	if err := ValidateString(id, fieldName, 1, MaxIDLength, required); err != nil {
		return err
	}

	if id != "" && !SafeIDPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, hyphens, and underscores allowed)", fieldName)
	}

	return nil
}

// ValidateComponentName validates an optional export name
func ValidateComponentName(name string) error {
	if err := ValidateString(name, "componentName", 1, MaxComponentNameLen, false); err != nil {
		return err
	}
	if name != "" && !IdentifierPattern.MatchString(name) {
		return fmt.Errorf("componentName must be a valid identifier")
	}
	return nil
}

// ValidateKey validates a keyboard key name
func ValidateKey(key string) error {
	if err := ValidateString(key, "key", 1, MaxKeyLength, true); err != nil {
		return err
	}
	if !KeyPattern.MatchString(key) {
		return fmt.Errorf("key contains invalid characters")
	}
	return nil
}

// ValidateFacets checks every source facet for size and encoding. Facets are
// passed as name/value pairs.
func ValidateFacets(facets map[string]string) error {
	total := 0
	for name, value := range facets {
		if len(value) > MaxFacetSize {
			return fmt.Errorf("%s size %d bytes exceeds maximum %d bytes", name, len(value), MaxFacetSize)
		}
		if !utf8.ValidString(value) {
			return fmt.Errorf("%s is not valid UTF-8", name)
		}
		total += len(value)
	}
	if total > MaxBundleSize {
		return fmt.Errorf("source size %d bytes exceeds maximum %d bytes", total, MaxBundleSize)
	}
	return nil
}
