package utils

import (
	"os"

	"github.com/denisbrodbeck/machineid"
)

// Returns an identifier of this node, stable across runs.
// The machine id is hashed with the application name so that the raw
// id never leaves the node. Falls back to the hostname.
func NodeID() string {
	if id, err := machineid.ProtectedID("espilot"); err == nil {
		return id
	}
	if hostname, err := os.Hostname(); err == nil {
		return hostname
	}
	return "unknown"
}
