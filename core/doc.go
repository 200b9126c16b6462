// Package core contains the canonical channels domain: conversation and
// message entities, the thread-ownership model, the idempotency ledger
// contracts, and the platform client boundary. Platform adapters and stores
// depend on this package; core depends on nothing platform-specific.
package core
