// Package require checks that a host has the tools dgxops runs there.
package require

import "regexp"

// Tool names go into "command -v", so they must be plain words:
// setsid, nvidia-smi, python3.10, g++.
var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._+-]*$`)

// ValidateToolName reports whether name is safe to splice into a shell
// command.
func ValidateToolName(name string) bool {
	return toolNamePattern.MatchString(name)
}

// Tool is one program dgxops runs on a host.
type Tool struct {
	Name string
	// Required tools break operations when missing; optional ones only
	// degrade a feature.
	Required bool
	Purpose  string
}

// HostTools lists everything dgxops runs remotely.
var HostTools = []Tool{
	{Name: "sh", Required: true, Purpose: "run operation commands"},
	{Name: "setsid", Required: true, Purpose: "detach launched operations"},
	{Name: "nohup", Required: true, Purpose: "keep operations alive across disconnects"},
	{Name: "tail", Required: true, Purpose: "read operation logs"},
	{Name: "nvidia-smi", Purpose: "GPU telemetry"},
}

// CheckResult is the answer for one tool.
type CheckResult struct {
	Tool
	Satisfied bool   `json:"satisfied"`
	Path      string `json:"path,omitempty"`
}
