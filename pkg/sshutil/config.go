package sshutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// HostEntry is one concrete Host alias from an ssh_config file, the raw
// material for importing a connection.
type HostEntry struct {
	Alias        string
	Hostname     string // empty when the file has no HostName for the alias
	User         string
	Port         int // 0 when unset or unparsable
	IdentityFile string
}

// Description renders the entry as user@host:port, leaving out whatever
// the file doesn't set. The port is omitted when it is 22.
func (h HostEntry) Description() string {
	var b strings.Builder
	if h.User != "" {
		b.WriteString(h.User)
		b.WriteByte('@')
	}
	if h.Hostname != "" {
		b.WriteString(h.Hostname)
	} else {
		b.WriteString(h.Alias)
	}
	if h.Port != 0 && h.Port != 22 {
		fmt.Fprintf(&b, ":%d", h.Port)
	}
	return b.String()
}

// ParseSSHConfig lists the concrete hosts in ~/.ssh/config.
func ParseSSHConfig() ([]HostEntry, error) {
	return ParseSSHConfigFile(filepath.Join(homeDir(), ".ssh", "config"))
}

// ParseSSHConfigFile lists the concrete hosts in path, sorted by alias.
// Wildcard patterns are skipped, as is everything from the first Match
// block on. A missing file yields no hosts and no error.
func ParseSSHConfigFile(path string) ([]HostEntry, error) {
	content, _, err := readSSHConfig(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var hosts []HostEntry
	for _, h := range cfg.Hosts {
		for _, pat := range h.Patterns {
			alias := pat.String()
			if seen[alias] || strings.ContainsAny(alias, "*?!") {
				continue
			}
			seen[alias] = true
			hosts = append(hosts, entryFor(cfg, alias))
		}
	}

	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Alias < hosts[j].Alias })
	return hosts, nil
}

func entryFor(cfg *ssh_config.Config, alias string) HostEntry {
	get := func(key string) string {
		v, _ := cfg.Get(alias, key)
		return v
	}
	e := HostEntry{
		Alias:    alias,
		Hostname: get("HostName"),
		User:     get("User"),
	}
	if p, err := strconv.Atoi(get("Port")); err == nil && p > 0 {
		e.Port = p
	}
	if id := get("IdentityFile"); id != "" {
		e.IdentityFile = expandPath(id)
	}
	return e
}

// readSSHConfig returns path's content cut at the first Match directive,
// which the ssh_config decoder can't handle, and the 1-based line of that
// directive (0 when there is none).
func readSSHConfig(path string) ([]byte, int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) > 0 && strings.EqualFold(fields[0], "match") {
			return []byte(strings.Join(lines[:i], "\n")), i + 1, nil
		}
	}
	return content, 0, nil
}
