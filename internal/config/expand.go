package config

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// ExpandTilde turns a leading ~ or ~/ into the local home directory.
// ~user forms are returned as is.
func ExpandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// Expand substitutes ${HOME} and ${USER}. Other ${...} references are
// left for the shell on the far side.
func Expand(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(name string) string {
		switch name {
		case "HOME":
			home, _ := os.UserHomeDir()
			return home
		case "USER":
			return localUser()
		}
		return "${" + name + "}"
	})
}

// ExpandLocal expands variables then the tilde. SQLite DSNs that aren't
// plain paths pass through.
func ExpandLocal(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return ExpandTilde(Expand(path))
}

func localUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "user"
}
