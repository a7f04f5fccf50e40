// Package cli implements the dgxops command-line interface.
//
// One long-lived process, `dgxops serve`, owns every SSH session, the
// operation tracker and the telemetry collector. Every other command is a
// thin client of its HTTP API:
//
//	dgxops serve                     - Run the daemon
//	dgxops init                      - Write a config file
//	dgxops connection [add|list|...] - Manage hosts
//	dgxops connect <conn>            - Open a host's session
//	dgxops status [conn]             - Show cached status
//	dgxops op [run|kill|logs|...]    - Run and track processes
//	dgxops metrics <conn>            - Show telemetry
//	dgxops watch                     - Live dashboard
//	dgxops tunnel <conn> <port>      - Forward a port
//
// # Output
//
// Human output goes through the ui package. With --json every command
// prints the same {success, data, error, code} envelope the daemon
// returns, including failures, so scripts never have to parse prose.
package cli
