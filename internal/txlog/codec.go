package txlog

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/datahog/internal/model"
)

// rawEntry is an entry as stored, before verification.
type rawEntry struct {
	Seq     int64
	Hash    model.U256
	Chain   model.U256
	Payload []byte
}

// encode prepares tx for storage at seq, chained from prev.
func encode(seq int64, prev model.U256, tx model.Transaction) (rawEntry, error) {
	if err := tx.Validate(); err != nil {
		return rawEntry{}, fmt.Errorf("encode seq %d: %w", seq, err)
	}
	payload, err := model.CanonicalJSON(tx)
	if err != nil {
		return rawEntry{}, fmt.Errorf("encode seq %d: %w", seq, err)
	}
	hash, err := tx.Hash()
	if err != nil {
		return rawEntry{}, fmt.Errorf("encode seq %d: %w", seq, err)
	}
	return rawEntry{
		Seq:     seq,
		Hash:    hash,
		Chain:   model.ChainHash(prev, hash),
		Payload: payload,
	}, nil
}

// verifier checks a run of raw entries for continuity and integrity.
type verifier struct {
	seq   int64
	chain model.U256
}

func (v *verifier) next(raw rawEntry) (Entry, error) {
	if raw.Seq != v.seq+1 {
		return Entry{}, model.Replay("log sequence gap",
			fmt.Errorf("%w: expected %d, got %d", ErrSequenceGap, v.seq+1, raw.Seq))
	}

	var tx model.Transaction
	if err := json.Unmarshal(raw.Payload, &tx); err != nil {
		return Entry{}, corrupt(raw.Seq, "undecodable payload: %v", err)
	}
	if err := tx.Validate(); err != nil {
		return Entry{}, corrupt(raw.Seq, "invalid transaction: %v", err)
	}
	hash, err := tx.Hash()
	if err != nil {
		return Entry{}, corrupt(raw.Seq, "unhashable transaction: %v", err)
	}
	if hash != raw.Hash {
		return Entry{}, corrupt(raw.Seq, "hash mismatch: stored %s, computed %s", raw.Hash.Short(), hash.Short())
	}
	if want := model.ChainHash(v.chain, hash); want != raw.Chain {
		return Entry{}, corrupt(raw.Seq, "chain mismatch")
	}

	v.seq = raw.Seq
	v.chain = raw.Chain
	return Entry{Seq: raw.Seq, Hash: raw.Hash, Chain: raw.Chain, Tx: tx}, nil
}

func corrupt(seq int64, format string, args ...any) error {
	return model.Replay("log corrupt",
		fmt.Errorf("seq %d: %w: %s", seq, ErrCorrupt, fmt.Sprintf(format, args...)))
}
