// Command usctl administers a unified search deployment: rebuilding the
// index, replaying lifecycle events and running ad-hoc searches.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
