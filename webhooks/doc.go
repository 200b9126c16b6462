// Package webhooks contains the boundary authentication pieces for inbound
// platform calls: raw-body HMAC signature verification and the GET
// subscription challenge handshake.
//
// Verification happens before any idempotency row is created; a rejected
// request leaves no trace in the ledger.
package webhooks
