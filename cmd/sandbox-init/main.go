// Command sandbox-init applies resource limits and a network filter to itself
// and then execs the program given after "--". The sandbox engine runs every
// untrusted process through it when sandbox.initPath is configured.
package main

import (
	"fmt"
	"os"

	"codeblack/internal/judge/sandbox/launcher"
)

// exitSetupFailed is distinct from any exit code a contest program is likely to use.
const exitSetupFailed = 125

func main() {
	opts, target, err := launcher.Parse(os.Args[1:])
	if err == nil {
		err = launcher.Exec(opts, target)
	}
	_, _ = fmt.Fprintln(os.Stderr, "sandbox-init:", err)
	os.Exit(exitSetupFailed)
}
