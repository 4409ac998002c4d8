// Command webprobe drives probe scenarios against a deployed Copymill
// instance: browser flows over CDP, raw API sweeps, and an error scan
// that collects console, network and page errors as findings.
package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes.
const (
	exitOK       = 0 // run completed with no findings
	exitFindings = 1 // run completed but produced findings or failed steps
	exitConfig   = 2 // configuration or usage error
	exitBrowser  = 3 // could not launch, attach to or drive the browser
)

func main() {
	root := newRootCmd()
	if err := root.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "webprobe:", err)
		os.Exit(exitCode(err))
	}
	os.Exit(root.exit)
}

// codedError carries an exit code alongside the cause.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }

func (e *codedError) Unwrap() error { return e.err }

func configErr(err error) error { return &codedError{code: exitConfig, err: err} }

func browserErr(err error) error { return &codedError{code: exitBrowser, err: err} }

func exitCode(err error) int {
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	return exitConfig
}
