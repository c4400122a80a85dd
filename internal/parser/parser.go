// Package parser extracts KEY=VALUE variables from command output.
package parser

import (
	"strings"
	"unicode"
)

const maxKeyLength = 50

// ParseVars scans output line by line for KEY=VALUE pairs. Keys must be
// valid identifiers of at most 50 characters; comment lines and anything
// else is ignored.
func ParseVars(output string) map[string]string {
	vars := make(map[string]string)

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		if !isIdentifier(key) {
			continue
		}

		vars[key] = strings.TrimSpace(value)
	}

	if len(vars) == 0 {
		return nil
	}
	return vars
}

func isIdentifier(s string) bool {
	if s == "" || len(s) > maxKeyLength {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}
