package model

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows a future algorithm migration.
const (
	DomainTransaction = "datahog/transaction/v1"
	DomainRoot        = "datahog/root/v1"
	DomainContent     = "datahog/content/v1"
	DomainSource      = "datahog/source/v1"
	DomainNode        = "datahog/node/v1"
	DomainEdge        = "datahog/edge/v1"
	DomainChain       = "datahog/chain/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) U256 {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var out U256
	copy(out[:], h.Sum(nil))
	return out
}

// hashParts hashes several byte strings under one domain. Each part is
// length-prefixed so ("ab","c") and ("a","bc") never collide.
func hashParts(domain string, parts ...[]byte) U256 {
	var buf []byte
	for _, p := range parts {
		buf = binary.BigEndian.AppendUint64(buf, uint64(len(p)))
		buf = append(buf, p...)
	}
	return hashWithDomain(domain, buf)
}

// ContentHash addresses an external payload. It is the value stored in
// DataHash.Hash for content too large to carry inline.
func ContentHash(data []byte) U256 {
	return hashWithDomain(DomainContent, data)
}

// ChainHash links a log entry to its predecessor: SHA256(prev || hash).
func ChainHash(prev, hash U256) U256 {
	return hashParts(DomainChain, prev[:], hash[:])
}

// TransactionHash computes the content address of a transaction from its
// canonical encoding.
func TransactionHash(tx Transaction) (U256, error) {
	canonical, err := CanonicalJSON(tx)
	if err != nil {
		return U256{}, fmt.Errorf("TransactionHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTransaction, canonical), nil
}

// MustTransactionHash is like TransactionHash but panics on error.
// Use only in tests or when the transaction is known to be valid.
func MustTransactionHash(tx Transaction) U256 {
	h, err := TransactionHash(tx)
	if err != nil {
		panic(err)
	}
	return h
}

// RootID is the well-known NodeID of the bootstrap "Universe" node.
var RootID = NodeIDFromContent(DomainRoot, []byte("Universe"))

// NamedNodeID derives a NodeID from a human-readable name. Fixtures and the
// import command use it so readable names map onto stable identifiers.
func NamedNodeID(name string) NodeID {
	return NodeIDFromContent(DomainNode, []byte(name))
}

// NamedEdgeID derives an EdgeID from a human-readable name.
func NamedEdgeID(name string) EdgeID {
	return EdgeIDFromContent(DomainEdge, []byte(name))
}

// NamedSourceID derives a SourceID from a human-readable name.
func NamedSourceID(name string) SourceID {
	return SourceIDFromContent(DomainSource, []byte(name))
}
