package model

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// Transaction is the atomic unit of ingestion: an ordered batch of records
// from one source, stamped with a timestamp. Transactions are immutable once
// built; the world view never modifies one it has been handed.
type Transaction struct {
	Timestamp Timestamp `json:"timestamp"`
	Source    SourceID  `json:"source"`
	Records   []Record  `json:"records"`
}

// ErrEmptyTransaction is wrapped by Malformed for a transaction with no records.
var ErrEmptyTransaction = errors.New("transaction carries no records")

// NewTransaction stamps records with the current time from DefaultClock.
// It fails with a malformed-transaction error when records is empty.
func NewTransaction(source SourceID, records ...Record) (Transaction, error) {
	return NewTransactionAt(DefaultClock.Now(), source, records...)
}

// NewTransactionAt builds a transaction with an explicit timestamp.
func NewTransactionAt(ts Timestamp, source SourceID, records ...Record) (Transaction, error) {
	if len(records) == 0 {
		return Transaction{}, Malformed(ErrEmptyTransaction)
	}
	return Transaction{Timestamp: ts, Source: source, Records: records}, nil
}

// MustTransaction is like NewTransactionAt but panics on error.
// Use only in tests.
func MustTransaction(ts Timestamp, source SourceID, records ...Record) Transaction {
	tx, err := NewTransactionAt(ts, source, records...)
	if err != nil {
		panic(err)
	}
	return tx
}

// Validate checks the transaction's structure without consulting any state.
// Every failure is a malformed-transaction error.
func (tx Transaction) Validate() error {
	if len(tx.Records) == 0 {
		return Malformed(ErrEmptyTransaction)
	}
	for i, r := range tx.Records {
		if err := r.Validate(); err != nil {
			return Malformed(fmt.Errorf("record[%d]: %w", i, err))
		}
	}
	return nil
}

// Hash returns the transaction's content address.
func (tx Transaction) Hash() (U256, error) { return TransactionHash(tx) }

// Compare orders transactions by (timestamp, source bytes, content hash).
// The hash term only matters for two transactions from the same source at
// the same nanosecond; it keeps the order total and reproducible.
func (tx Transaction) Compare(o Transaction) int {
	if c := cmp.Compare(tx.Timestamp, o.Timestamp); c != 0 {
		return c
	}
	if c := tx.Source.Compare(o.Source); c != 0 {
		return c
	}
	// Hash errors only arise for unencodable transactions, which Validate
	// never admits. Both sides then compare as the zero hash.
	a, _ := tx.Hash()
	b, _ := o.Hash()
	return a.Compare(b)
}

// Less reports whether tx sorts before o.
func (tx Transaction) Less(o Transaction) bool { return tx.Compare(o) < 0 }

// SortTransactions sorts txs into canonical replay order in place.
func SortTransactions(txs []Transaction) {
	slices.SortStableFunc(txs, Transaction.Compare)
}

// Key is the precomputed ordering key of a transaction. Buffers that sort
// many transactions use it to avoid rehashing on every comparison.
type Key struct {
	Timestamp Timestamp
	Source    SourceID
	Hash      U256
}

// KeyOf computes the ordering key of tx.
func KeyOf(tx Transaction) (Key, error) {
	h, err := tx.Hash()
	if err != nil {
		return Key{}, err
	}
	return Key{Timestamp: tx.Timestamp, Source: tx.Source, Hash: h}, nil
}

// Compare orders keys the same way Transaction.Compare orders transactions.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.Timestamp, o.Timestamp); c != 0 {
		return c
	}
	if c := k.Source.Compare(o.Source); c != 0 {
		return c
	}
	return k.Hash.Compare(o.Hash)
}
