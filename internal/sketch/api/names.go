package api

import (
	"strings"
	"unicode/utf8"
)

const maxNameLength = 128

// ValidateName checks a project or class name. Names end up as file names on
// the backend, so separators and dot entries are rejected.
func ValidateName(name string) error {
	switch {
	case !utf8.ValidString(name):
		return Errorf(KindInvalid, "name %q is not valid UTF-8", name)
	case strings.TrimSpace(name) == "":
		return Errorf(KindInvalid, "name is required")
	case name != strings.TrimSpace(name):
		return Errorf(KindInvalid, "name %q has surrounding whitespace", name)
	case len(name) > maxNameLength:
		return Errorf(KindInvalid, "name is longer than %d bytes", maxNameLength)
	case name == "." || name == "..":
		return Errorf(KindInvalid, "name %q is reserved", name)
	case strings.ContainsAny(name, `/\:*?"<>|`):
		return Errorf(KindInvalid, "name %q contains a path or reserved character", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return Errorf(KindInvalid, "name %q contains a control character", name)
		}
	}
	return nil
}
