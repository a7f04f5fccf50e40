package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess  = "✓" // Action succeeded
	SymbolFail     = "✗" // Failed, or in error
	SymbolPending  = "○" // Offline or not started
	SymbolProgress = "◐" // Connecting or starting
	SymbolComplete = "●" // Online, running or done
	SymbolSkipped  = "⊘" // Cancelled
	SymbolWarning  = "⚠" // Needs attention
)
