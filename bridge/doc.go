// Package bridge implements the protocol core of the ASR-GoT stdio bridge:
// a single-connection JSON-RPC 2.0 handler that reads Content-Length framed
// messages from an io.Reader, routes them to method handlers, and forwards
// reasoning queries to the backend HTTP service.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Transport        : Content-Length framed JSON-RPC over stdin/stdout
//	Concurrency      : one goroutine per inbound message; single-writer output
//	Correlation      : in-flight table keyed by request id; first terminal
//	                   event (response, timeout, cancellation) wins
//
// The bridge answers `initialize` synchronously while bringing the backend up
// in the background, gates `asr_got.query` on the backend having been healthy
// at least once, and never exits because of a single request's failure.
package bridge
