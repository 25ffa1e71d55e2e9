// Package flow provides a generic multi-step conversation engine for
// Telegram bots: named states with trigger-matched handlers, isolated
// per-flow session buckets, per-event claim tags, and JSON snapshots of
// in-flight conversations. It is intentionally domain-agnostic so it can be
// reused across bots; replies go through a Responder instead of the
// transport layer.
package flow
