package lld

import (
	"regexp"
	"strings"
)

// MacroSubstituter expands {#TOKEN} placeholders against a discovery row.
// Unknown macros are left untouched.
type MacroSubstituter interface {
	Substitute(proto string, row DiscoveryRow) string
}

var discoveryMacroPattern = regexp.MustCompile(`\{#[A-Z0-9_.]+\}`)

type defaultSubstituter struct{}

// NewMacroSubstituter returns the default MacroSubstituter.
func NewMacroSubstituter() MacroSubstituter { return defaultSubstituter{} }

// Substitute mirrors substitute_discovery_macros(&buf, row, ZBX_MACRO_ANY,
// NULL, 0) followed by zbx_lrtrim(buf, ZBX_WHITESPACE).
func (defaultSubstituter) Substitute(proto string, row DiscoveryRow) string {
	expanded := discoveryMacroPattern.ReplaceAllStringFunc(proto, func(token string) string {
		if v, ok := row[token]; ok {
			return v
		}
		return token
	})
	return strings.Trim(expanded, " \t\r\n")
}
