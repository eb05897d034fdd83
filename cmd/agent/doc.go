// Package main (cmd/agent) is the agent-side client. It obtains a TDX quote
// whose report data binds the agent's account, registers with it, and submits
// signature requests.
package main
