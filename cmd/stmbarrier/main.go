// Command stmbarrier reports the STM read/write barriers each memory access
// in Go code needs.
//
// Usage:
//
//	stmbarrier ./...
//
// Or as a vet tool:
//
//	go vet -vettool=$(which stmbarrier) ./...
//
// The -debug and -trace flags default to the STMBARRIER_DEBUG and
// STMBARRIER_TRACE environment variables.
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/mpyw/stmbarrier"
)

func main() {
	singlechecker.Main(stmbarrier.Analyzer)
}
