package barrier

import (
	"log/slog"

	"github.com/mpyw/stmbarrier/internal/alias"
)

// Options configures the pass.
type Options struct {
	// Alias answers may-alias queries. It should know every object type of
	// the program. When nil, alias.Open is used.
	Alias *alias.Classifier

	// RemoveTypePtr tells the pass that type ids of structs with the TypePtr
	// hint live in the object header, so type checks on them need no barrier.
	RemoveTypePtr bool

	// Logger receives solver traces at debug level. Nil disables logging.
	Logger *slog.Logger

	// Parallelism bounds the number of routines TransformAll handles at
	// once. Zero or negative means GOMAXPROCS.
	Parallelism int
}

var discardLogger = slog.New(slog.DiscardHandler)

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return discardLogger
	}
	return o.Logger
}
