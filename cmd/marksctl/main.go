// Package main provides marksctl, a command line front end to a student
// marks data file.
package main

import (
	"fmt"
	"os"

	appErrors "github.com/noah-isme/sma-marks-api/pkg/errors"
)

const (
	Version = "1.0.0"
	appName = "marksctl"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorMessage(err))
		os.Exit(1)
	}
}

// errorMessage prefers the typed message over the wrapped cause chain.
func errorMessage(err error) string {
	appErr := appErrors.FromError(err)
	if appErr.Code == appErrors.ErrInternal.Code {
		return err.Error()
	}
	return appErr.Message
}
