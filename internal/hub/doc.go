// Package hub implements namespaced room membership and broadcast.
//
// Connections attach to a namespace, join at most one room inside it and send chat
// messages scoped to that room. Every membership change is serialized by a lock
// owned by the namespace; the presence counts announced after a change are derived
// from the live member sets under the same lock, and so is the fan-out that
// carries them. Namespaces never share state and are mutated independently.
package hub
