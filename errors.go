package srng

import (
	"github.com/pkg/errors"
)

// Error kinds. Callers match them with errors.Is; setup and validation paths
// attach context with errors.WithMessagef.
var (
	// ErrConfig reports a bad ring type, ring number, mac id, size or a
	// double initialization.
	ErrConfig = errors.New("srng: configuration error")

	// ErrResourceExhausted reports a full shadow register table.
	ErrResourceExhausted = errors.New("srng: resource exhausted")

	// ErrBackpressure is returned by Reserve when the source ring has no room.
	ErrBackpressure = errors.New("srng: ring full")

	// ErrNotReady is returned by PeekNext when hardware has not produced the
	// entry at the tail yet.
	ErrNotReady = errors.New("srng: entry not ready")

	// ErrCorruption reports a pointer or shadow mapping inconsistency.
	ErrCorruption = errors.New("srng: corruption")

	// ErrUnsupported is returned by generation operations that the bound
	// generation does not implement.
	ErrUnsupported = errors.New("srng: unsupported operation")
)

// CorruptionHandler decides what happens when a corruption check fails.
// The default handler panics. A handler that returns lets the failing
// operation abort with the error instead.
type CorruptionHandler func(err error)

func panicOnCorruption(err error) { panic(err) }

func (s *Soc) corrupt(err error) error {
	s.log.Error("corruption detected", "err", err)
	s.onCorruption(err)
	return err
}
