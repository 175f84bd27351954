// Package sharing grants other users access to individual contacts.
//
// Every grant materializes as an isolated shared copy per (contact,
// recipient) pair, stored under two mirrored object keys so the owner and
// the recipient each enumerate their side with one prefix listing. The
// isolation is the point: revoking one recipient removes exactly two
// objects and can never disturb another recipient's access.
//
// Distribution lists are resolved at share time and never stored on a
// contact; membership changes trigger a retroactive scan that extends or
// revokes grants on the contacts shared with the rest of the list.
package sharing
