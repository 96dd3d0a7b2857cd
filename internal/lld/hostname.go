package lld

import (
	"strings"
	"unicode/utf8"
)

// defaultHostnameCharset is the character class Zabbix permits in a
// technical host name, mirroring ZBX_DEFAULT_HOSTNAME_CHARSET: letters,
// digits, and a small set of punctuation.
const defaultHostnameCharset = "0-9a-zA-Z_. -"

// checkHostname reports whether host is empty or contains a byte outside
// charset, returning a short reason ("name is empty" or "invalid
// character"; empty string if host is valid). charset is the same "a-z0-9_. -" shorthand
// zabbix[host,,...] accepts; an empty charset falls back to
// defaultHostnameCharset.
func checkHostname(host, charset string) string {
	if host == "" {
		return "name is empty"
	}
	if charset == "" {
		charset = defaultHostnameCharset
	}
	allowed := expandCharset(charset)

	for _, r := range host {
		if r >= utf8.RuneSelf || !allowed[byte(r)] {
			return "invalid character"
		}
	}
	return ""
}

// expandCharset turns a "0-9a-z_. -" shorthand into a byte lookup table.
func expandCharset(spec string) [256]bool {
	var set [256]bool
	runes := []rune(spec)
	for i := 0; i < len(runes); i++ {
		if i+2 < len(runes) && runes[i+1] == '-' {
			lo, hi := runes[i], runes[i+2]
			for c := lo; c <= hi; c++ {
				set[byte(c)] = true
			}
			i += 2
			continue
		}
		set[byte(runes[i])] = true
	}
	return set
}

// validateVisibleName mirrors the zbx_check_hostname-adjacent length/UTF-8
// checks applied to a host's visible name: non-empty, valid UTF-8, and no
// longer than HostNameLen characters.
func validateVisibleName(name string) string {
	if name == "" {
		return "name is empty"
	}
	if !utf8.ValidString(name) {
		return "name is not valid UTF-8"
	}
	if utf8.RuneCountInString(name) > HostNameLen {
		return "name is too long"
	}
	if strings.TrimSpace(name) == "" {
		return "name is blank"
	}
	return ""
}
