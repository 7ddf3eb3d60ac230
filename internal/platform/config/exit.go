package config

import (
	"fmt"
	"os"
)

// Exitf prints the formatted message to stderr, appends a newline, and
// terminates the process with exit code 1. Command entry points use it as
// their single fatal-error path.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
