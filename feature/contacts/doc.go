// Package contacts holds the canonical contact model, the in-memory contact
// store and the lifecycle service for owned records.
//
// The store is the single authoritative map from logical contact identity to
// contact record. It is mutated exclusively by the feature services and read
// everywhere else; UI layers observe mutations through Subscribe rather than
// a global event bus. Received shared views live beside owned records under a
// derived "shared:{sharer}:{id}" key space that can never collide with owned
// contact ids.
//
// Persistence goes through the Repository, which trims the bounded history
// logs and enforces the backing store's per-record size ceiling on every
// write. Card payloads are opaque here: only the UID identity field and the
// flat snapshot for duplicate scoring are ever extracted.
package contacts
