// Package dedupe implements fuzzy duplicate detection for contact snapshots.
//
// The detector is a weighted multi-field scorer: phone (last seven digits),
// email (case-insensitive), name (exact or token overlap with a nickname
// equivalence table), organization and title. Organization and title only
// count as supporting evidence once a primary field already matched.
//
// The import path consults the ranked output to block or flag a create; the
// sync reconciler uses it to flag likely duplicates on inbound records.
package dedupe
