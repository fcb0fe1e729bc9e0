package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
)

// exitError carries a process status. Silent errors were already reported.
type exitError struct {
	err    error
	code   int
	silent bool
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}

	code := 1
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
		if ee.silent {
			os.Exit(code)
		}
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("error:"), err)
	os.Exit(code)
}
