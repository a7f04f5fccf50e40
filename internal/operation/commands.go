package operation

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/rileyhilliard/dgxops/internal/util"
)

// The remote side of operation management is plain POSIX shell. Every path
// goes through util.ShellQuotePreserveTilde so ~ still expands remotely.

// launchCommand starts command detached from the SSH session, in its own
// process group, with output going to logFile. The command runs in a
// subshell so an exit or exec inside it still lets the wrapper write its
// status to the exit file. The PID is the only thing printed.
func launchCommand(command, workingDir, logFile string) string {
	exitFile := logFile + ".exit"
	script := "(\n" + command + "\n)\necho $? > \"$1\""

	var b strings.Builder
	fmt.Fprintf(&b, "mkdir -p %s && rm -f %s && ",
		util.ShellQuotePreserveTilde(path.Dir(logFile)),
		util.ShellQuotePreserveTilde(exitFile))
	if workingDir != "" {
		fmt.Fprintf(&b, "cd %s && ", util.ShellQuotePreserveTilde(workingDir))
	}
	fmt.Fprintf(&b, "{ setsid nohup sh -c %s dgxops-op %s > %s 2>&1 < /dev/null & echo $!; }",
		util.ShellQuote(script),
		util.ShellQuotePreserveTilde(exitFile),
		util.ShellQuotePreserveTilde(logFile))
	return b.String()
}

// aliveCommand prints "alive" or "dead" and always exits 0, so a non-zero
// exit means the check itself didn't run.
func aliveCommand(pid int) string {
	return fmt.Sprintf("if kill -0 %d 2>/dev/null; then echo alive; else echo dead; fi", pid)
}

// stopCommand signals the process group first, then the bare PID for
// processes that aren't group leaders.
func stopCommand(pid int, signal string) string {
	return fmt.Sprintf("kill -s %s -- -%d 2>/dev/null || kill -s %s %d", signal, pid, signal, pid)
}

func tailCommand(logFile string, lines int) string {
	return fmt.Sprintf("tail -n %d %s", lines, util.ShellQuotePreserveTilde(logFile))
}

// exitCodeCommand prints the recorded exit status, or nothing when the
// process never got to write it.
func exitCodeCommand(logFile string) string {
	return fmt.Sprintf("cat %s 2>/dev/null || true", util.ShellQuotePreserveTilde(logFile+".exit"))
}

// logFileFor names the log for one run of an operation. Each restart gets
// a fresh file.
func logFileFor(logDir, opID string, run int) string {
	if logDir == "" {
		logDir = "~/.dgxops/logs"
	}
	return path.Join(logDir, fmt.Sprintf("%s-%d.log", opID, run))
}

// parsePID reads the PID echoed by launchCommand. Anything other than a
// positive integer on the last line yields ok=false.
func parsePID(stdout []byte) (pid int, ok bool) {
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	n, err := strconv.Atoi(last)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// parseExitCode reads the content of an exit file.
func parseExitCode(stdout []byte) (code int, ok bool) {
	s := strings.TrimSpace(string(stdout))
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
