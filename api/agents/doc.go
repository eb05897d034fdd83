// Package agents serves the agent-facing routes (signed registration and
// signature requests) and the unsigned read-only views of the registry.
package agents
