package toolchain

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	wperrors "github.com/wippyai/wasm-post/errors"
)

// ExitStatus is the process status for a missing toolchain.
const ExitStatus = 101

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	commandColor = color.New(color.FgCyan)
)

// Diagnose writes install guidance for a missing toolchain to w and reports
// whether err was one. Other errors are left to the caller.
func Diagnose(w io.Writer, err error) bool {
	var ni *wperrors.NotInstalledError
	if !errors.As(err, &ni) {
		return false
	}

	fmt.Fprintf(w, "%s you don't have %s installed!\n\n", errorColor.Sprint("error:"), ni.Tool)
	for _, line := range ni.Hints {
		if strings.HasPrefix(line, "  ") {
			line = commandColor.Sprint(line)
		}
		fmt.Fprintln(w, line)
	}
	return true
}
