package main

import (
	stderrors "errors"
	"fmt"
	"os"
	"sort"

	"dvcs/internal/errors"

	"github.com/fatih/color"
)

var hints = map[errors.ErrorType]string{
	errors.ErrorTypeNoSuchRepository: "run 'dvcs init' to create one",
	errors.ErrorTypeCorruptIndex:     "the index file could not be parsed; restore it or delete it to start over",
	errors.ErrorTypeDeletionConflict: "both sides deleted different paths; resolve them by hand",
	errors.ErrorTypeNoSuchEntry:      "see 'dvcs log' for known commits",
}

// renderError is the only place errors are formatted for people.
func renderError(err error) {
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	kind := errors.TypeOf(err)
	if kind == "" {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
		return
	}

	fmt.Fprintf(os.Stderr, "%s %v\n", red(fmt.Sprintf("error [%s]:", kind)), err)
	if kind == errors.ErrorTypeDeletionConflict {
		var e *errors.Error
		if stderrors.As(err, &e) {
			if sides, ok := e.Details.(map[string][]string); ok {
				keys := make([]string, 0, len(sides))
				for k := range sides {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(os.Stderr, "  deleted in %s: %v\n", k, sides[k])
				}
			}
		}
	}
	if hint, ok := hints[kind]; ok {
		fmt.Fprintln(os.Stderr, faint("hint: "+hint))
	}
}
