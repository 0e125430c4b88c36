package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Queues, stores and clients return these
// (optionally wrapped) so services can translate them into domain errors.
//
// - ErrUnavailable: broker, cache or sink temporarily unreachable
// - ErrClosed: the queue or client was shut down
// - ErrEmptyKey: a relay message was published without a partition key
var (
	ErrUnavailable = errors.New("unavailable")
	ErrClosed      = errors.New("closed")
	ErrEmptyKey    = errors.New("empty key")
)
