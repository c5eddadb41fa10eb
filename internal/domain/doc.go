// Package domain defines the core relay types and the contracts between them.
//
// Concept-oriented files (payload.go, record.go, envelope.go, store.go, errors.go)
// hold shared types and consumer-side interfaces. No I/O lives here; the relay core
// and the adapters depend on this package, never the other way around.
package domain
