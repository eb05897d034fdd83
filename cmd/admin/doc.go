// Package main (cmd/admin) is the owner's command line client: approving and
// removing measurement bundles and platform ids, removing agents, managing the
// local mode whitelist and inspecting the registry.
package main
