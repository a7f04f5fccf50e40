// Package models defines the records dgxops persists and exchanges:
// connections to remote GPU hosts, operations launched on them, and
// telemetry samples.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultSSHPort is used when a connection doesn't specify a port.
const DefaultSSHPort = 22

// ConnStatus is the transient, session-only state of a connection.
type ConnStatus int

const (
	StatusOffline ConnStatus = iota
	StatusConnecting
	StatusOnline
	StatusError
)

var connStatusNames = map[ConnStatus]string{
	StatusOffline:    "offline",
	StatusConnecting: "connecting",
	StatusOnline:     "online",
	StatusError:      "error",
}

func (s ConnStatus) String() string {
	if name, ok := connStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ConnStatus(%d)", int(s))
}

// ParseConnStatus accepts the canonical names plus the aliases
// "disconnected" and "connected".
func ParseConnStatus(s string) (ConnStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "offline", "disconnected", "":
		return StatusOffline, nil
	case "connecting":
		return StatusConnecting, nil
	case "online", "connected":
		return StatusOnline, nil
	case "error":
		return StatusError, nil
	}
	return StatusOffline, fmt.Errorf("unknown connection status %q", s)
}

func (s ConnStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ConnStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseConnStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Connection is a configured remote host. The fields below the blank line
// in the struct are transient and never written to the store.
type Connection struct {
	ID              string     `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	Hostname        string     `json:"hostname" db:"hostname"`
	Username        string     `json:"username" db:"username"`
	SSHKeyPath      string     `json:"ssh_key_path,omitempty" db:"ssh_key_path"`
	Port            int        `json:"port" db:"port"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	LastConnectedAt *time.Time `json:"last_connected_at,omitempty" db:"last_connected_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`

	Status       ConnStatus `json:"status" db:"-"`
	ErrorMessage string     `json:"error_message,omitempty" db:"-"`
	LastPing     *time.Time `json:"last_ping,omitempty" db:"-"`
}

// Address returns host:port for dialing.
func (c *Connection) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return fmt.Sprintf("%s:%d", c.Hostname, port)
}

// ConnectionInput carries the user-supplied fields for create and update.
type ConnectionInput struct {
	Name       string `json:"name"`
	Hostname   string `json:"hostname"`
	Username   string `json:"username"`
	SSHKeyPath string `json:"ssh_key_path,omitempty"`
	Port       int    `json:"port,omitempty"`
}

// Validate checks required fields and normalizes the port.
func (in *ConnectionInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Hostname = strings.TrimSpace(in.Hostname)
	in.Username = strings.TrimSpace(in.Username)

	switch {
	case in.Name == "":
		return fmt.Errorf("name is required")
	case in.Hostname == "":
		return fmt.Errorf("hostname is required")
	case in.Username == "":
		return fmt.Errorf("username is required")
	}
	if in.Port == 0 {
		in.Port = DefaultSSHPort
	}
	if in.Port < 1 || in.Port > 65535 {
		return fmt.Errorf("port %d is out of range", in.Port)
	}
	return nil
}
