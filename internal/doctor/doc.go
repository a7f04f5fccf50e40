// Package doctor diagnoses a dgxops setup: the config, local SSH keys, the
// daemon, each connection's cached status, and optionally each host's
// remote environment. Checks report pass, warn or fail with a suggestion,
// and some can fix themselves.
package doctor
