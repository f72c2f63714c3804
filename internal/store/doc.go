// Package store provides the durable persistence layer used by the bot.
//
// It keeps three logical collections:
//   - Channels: ordered set of broadcast destinations
//   - Posts: append-only ledger of broadcast outcomes
//   - Outbox: scheduled sends, mutated in place by the sweep
//
// Read failures degrade to empty collections (a lost ledger read is
// acceptable); write failures surface to the caller wrapped in
// ErrUnavailable, since losing the ability to persist the outbox is not.
package store
