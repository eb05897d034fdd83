// Package events provides sinks for registry events: agent registrations,
// agent removals with their reasons, and the asynchronous results of
// delegated signature calls.
//
// Sinks are combined with Fanout. The gateway wires a LogSink, a
// MetricsSink and a Recorder that backs the events listing endpoint.
package events
