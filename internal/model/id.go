package model

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// U256 is a 256-bit identifier or content hash.
// Equality and ordering are bitwise.
type U256 [32]byte

// NodeID identifies a Node.
type NodeID U256

// EdgeID identifies an Edge.
type EdgeID U256

// SourceID identifies a Source. The zero SourceID is reserved for the
// genesis transaction that creates the root node.
type SourceID U256

func randomU256() U256 {
	var u U256
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(u[:])
	return u
}

// RandomNodeID samples a fresh NodeID from crypto/rand.
func RandomNodeID() NodeID { return NodeID(randomU256()) }

// RandomEdgeID samples a fresh EdgeID from crypto/rand.
func RandomEdgeID() EdgeID { return EdgeID(randomU256()) }

// RandomSourceID samples a fresh SourceID from crypto/rand.
func RandomSourceID() SourceID { return SourceID(randomU256()) }

// NodeIDFromContent derives a content-addressed NodeID.
func NodeIDFromContent(domain string, parts ...[]byte) NodeID {
	return NodeID(hashParts(domain, parts...))
}

// EdgeIDFromContent derives a content-addressed EdgeID.
func EdgeIDFromContent(domain string, parts ...[]byte) EdgeID {
	return EdgeID(hashParts(domain, parts...))
}

// SourceIDFromContent derives a content-addressed SourceID, typically from a
// stable source name or path.
func SourceIDFromContent(domain string, parts ...[]byte) SourceID {
	return SourceID(hashParts(domain, parts...))
}

func (u U256) String() string { return hex.EncodeToString(u[:]) }
func (u U256) Short() string { return hex.EncodeToString(u[:4]) }
func (u U256) IsZero() bool { return u == U256{} }
func (u U256) Compare(o U256) int { return bytes.Compare(u[:], o[:]) }

// MarshalText encodes the identifier as 64 lowercase hex characters.
func (u U256) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText decodes 64 hex characters.
func (u *U256) UnmarshalText(text []byte) error {
	parsed, err := ParseU256(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// ParseU256 parses a 64-character hex string.
func ParseU256(s string) (U256, error) {
	var u U256
	if len(s) != hex.EncodedLen(len(u)) {
		return u, fmt.Errorf("parse id: want %d hex chars, got %d", hex.EncodedLen(len(u)), len(s))
	}
	if _, err := hex.Decode(u[:], []byte(s)); err != nil {
		return u, fmt.Errorf("parse id: %w", err)
	}
	return u, nil
}

func (id NodeID) String() string { return U256(id).String() }
func (id NodeID) Short() string { return U256(id).Short() }
func (id NodeID) IsZero() bool { return U256(id).IsZero() }
func (id NodeID) Compare(o NodeID) int { return U256(id).Compare(U256(o)) }
func (id NodeID) Less(o NodeID) bool { return id.Compare(o) < 0 }
func (id NodeID) MarshalText() ([]byte, error) { return U256(id).MarshalText() }
func (id *NodeID) UnmarshalText(text []byte) error {
	return (*U256)(id).UnmarshalText(text)
}

func (id EdgeID) String() string { return U256(id).String() }
func (id EdgeID) Short() string { return U256(id).Short() }
func (id EdgeID) IsZero() bool { return U256(id).IsZero() }
func (id EdgeID) Compare(o EdgeID) int { return U256(id).Compare(U256(o)) }
func (id EdgeID) Less(o EdgeID) bool { return id.Compare(o) < 0 }
func (id EdgeID) MarshalText() ([]byte, error) { return U256(id).MarshalText() }
func (id *EdgeID) UnmarshalText(text []byte) error {
	return (*U256)(id).UnmarshalText(text)
}

func (id SourceID) String() string { return U256(id).String() }
func (id SourceID) Short() string { return U256(id).Short() }
func (id SourceID) IsZero() bool { return U256(id).IsZero() }
func (id SourceID) Compare(o SourceID) int { return U256(id).Compare(U256(o)) }
func (id SourceID) MarshalText() ([]byte, error) { return U256(id).MarshalText() }
func (id *SourceID) UnmarshalText(text []byte) error {
	return (*U256)(id).UnmarshalText(text)
}

// ParseNodeID parses a hex NodeID.
func ParseNodeID(s string) (NodeID, error) {
	u, err := ParseU256(s)
	return NodeID(u), err
}

// ParseEdgeID parses a hex EdgeID.
func ParseEdgeID(s string) (EdgeID, error) {
	u, err := ParseU256(s)
	return EdgeID(u), err
}

// ParseSourceID parses a hex SourceID.
func ParseSourceID(s string) (SourceID, error) {
	u, err := ParseU256(s)
	return SourceID(u), err
}
