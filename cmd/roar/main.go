// Command roar traces a command's file and process activity, hashes the
// artifacts it touches, and records the result as lineage in a local
// content-addressed store, optionally registering it with a remote LaaS
// server.
package main

import (
	"fmt"
	"os"

	"github.com/roar-ml/roar/internal/rerr"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "roar:", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var rerrE *rerr.Err
	if ok := asErr(err, &rerrE); ok {
		return rerr.ExitCode(rerrE.Kind)
	}
	return 1
}

func asErr(err error, target **rerr.Err) bool {
	for err != nil {
		if e, ok := err.(*rerr.Err); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
