package barrier

import "errors"

// Errors returned by Transform. They are wrapped with the routine and block
// they concern; test with errors.Is.
var (
	// ErrUnrecognizedOp is returned for an operation the pass has no rule
	// for. The pass never guesses: skipping it could drop a needed barrier.
	ErrUnrecognizedOp = errors.New("unrecognized operation")

	// ErrMalformedRegion is returned when ignored-region markers do not
	// balance within a block.
	ErrMalformedRegion = errors.New("malformed ignored region")

	// ErrNoFixpoint is returned when the solver exceeds its iteration bound,
	// which indicates a malformed control-flow graph.
	ErrNoFixpoint = errors.New("barrier analysis did not reach a fixpoint")
)
