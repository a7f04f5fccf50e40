package util

import "strings"

// ShellQuote makes s a single POSIX shell word. Embedded single quotes
// become '\''.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ShellQuotePreserveTilde quotes a remote path but leaves a leading "~/"
// outside the quotes, so the host's shell still expands it to the login
// user's home. "~user/..." is quoted whole.
func ShellQuotePreserveTilde(p string) string {
	switch {
	case p == "~":
		return p
	case strings.HasPrefix(p, "~/"):
		return "~/" + ShellQuote(p[2:])
	default:
		return ShellQuote(p)
	}
}
