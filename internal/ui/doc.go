// Package ui provides terminal output components for the dgxops CLI.
//
// Everything here renders to strings or an io.Writer so commands can keep
// human output separate from --json mode.
//
// # Components
//
//	Spinner       - Animated status indicator for connects and disconnects
//	Progress bars - Operation completion and GPU usage bars
//	Tables        - Connection and operation listings
//	SSHHostPicker - Picks a host from ~/.ssh/config when adding a connection
//
// # Colors
//
// Colors are ANSI codes for broad terminal compatibility. DisableColors()
// switches to monochrome output for --no-color and NO_COLOR.
//
// # Progress Bars
//
//	ui.RenderProgressBar(67.5, 20) // ████████████████░░░░  68%
//	ui.RenderUsageBar(91, 20)    // red once usage passes 80%
//
// Completion bars turn green as they fill; usage bars turn red.
package ui
