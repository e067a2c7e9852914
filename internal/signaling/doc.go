// Package signaling implements the rendezvous core: rooms keyed by network
// origin, the per-peer liveness protocol, and opaque message relay between
// peers in the same room.
package signaling
