// Package swift contains the hash tree engine
// for verifying a large file chunk by chunk
// as it arrives from untrusted peers.
//
// A [Tree] is a binary Merkle tree of SHA-1 hashes
// over fixed-size chunks of one file.
// The whole tree reduces to a single root hash that the network agrees on.
// A downloading Tree starts knowing only that root hash;
// it learns the file's size from the "peak" hashes a peer sends first
// (see [*Tree.OfferPeakHash]),
// and from then on it accepts each hash or chunk
// only if it proves out against the root
// (see [*Tree.OfferHash] and [*Tree.OfferData]).
//
// A Tree keeps three files next to the content:
// the content itself, the hash array (".mhash"),
// and a checkpoint of verification progress (".mbinmap").
// Opening a Tree picks the cheapest way to recover its state
// from whatever is already on disk.
//
// Packages [github.com/gordian-engine/swift/sbin],
// [github.com/gordian-engine/swift/shash],
// [github.com/gordian-engine/swift/sbinmap],
// and [github.com/gordian-engine/swift/sstore]
// contain the bin numbering, digest, acknowledgment set,
// and hash storage that the Tree is built from.
//
// A Tree is not safe for concurrent use.
// Callers that drive one Tree from several goroutines
// should wrap it in a [Synchronized].
package swift
