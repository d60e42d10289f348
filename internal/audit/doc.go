// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered async relay that drops on a full buffer or waits a
//     bounded time, independent of the caller's context.
//   - [Event]: structured audit record of one gateway operation.
//   - [Request]: caller attribution carried on the context and copied into
//     every event by the dispatcher.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the Gateway does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authbridge or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
