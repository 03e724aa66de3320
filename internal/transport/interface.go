// Package transport defines the query/response port to addressed
// bench instruments. The daemon only ever talks to instruments through
// these interfaces; a simulated adapter ships for hardware-free runs.
package transport

import "context"

// Transport discovers instrument addresses and opens sessions.
type Transport interface {
	// ListAddresses returns the instrument addresses visible on the bus.
	ListAddresses() ([]string, error)

	// Open opens a session to the instrument at the given address.
	Open(address string) (Session, error)

	// Close releases the underlying bus. Sessions opened from this
	// transport are invalid afterwards.
	Close() error
}

// Session is an open handle to one instrument. Implementations must be
// safe for concurrent Close while a Query is in flight; the in-flight
// Query fails fast rather than hanging.
type Session interface {
	// Query sends a text command and reads the text reply. The context
	// bounds the round trip; expiry surfaces as a query_timeout error.
	Query(ctx context.Context, command string) (string, error)

	Close() error
}
