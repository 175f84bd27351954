// Package sync reconciles the owner's contacts across three sources: the
// private record store, the per-recipient shared copies and the external
// directory servers.
//
// The merge rules are asymmetric on purpose. Inbound directory data edits
// card content but never ownership flags, and a record edited locally less
// than the protection window ago is skipped entirely so the local edit wins
// and gets pushed first. Share revocations are never stated explicitly;
// they are derived by diffing consecutive listings of the incoming share
// prefix, with the first listing only establishing a baseline and a failed
// listing revoking nothing.
//
// A periodic sweeper re-pulls every source as a safety net for missed
// change notifications; overlapping sweep triggers collapse into one run.
package sync
