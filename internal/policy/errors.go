package policy

import "fmt"

var errNotObject = fmt.Errorf("must be an object")

func errUnknownTag(tag string) error      { return fmt.Errorf("unknown constraint tag %q", tag) }
func errNotNumber(field string) error     { return fmt.Errorf("%s must be a number", field) }
func errNotArray(field string) error {
	if field == "" {
		return fmt.Errorf("must be an array")
	}
	return fmt.Errorf("%s must be an array", field)
}
func errNotString(field string) error {
	if field == "" {
		return fmt.Errorf("must be a string")
	}
	return fmt.Errorf("%s must be a string", field)
}
func errNegative(field string) error { return fmt.Errorf("%s must not be negative", field) }
func errPatternCompile(pattern string, cause error) error {
	return fmt.Errorf("pattern %q does not compile: %v", pattern, cause)
}
func errPatternTooExpensive(size int) error {
	return fmt.Errorf("pattern program too large (%d)", size)
}
