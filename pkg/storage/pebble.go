// Package storage provides the durable ledger backends: Pebble for the
// default single-node deployment and Postgres when the ledger must live
// in a shared database.
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/danielgvb/betting-app/pkg/ledger"
)

// PebbleLedger is an append-only ledger on a Pebble key-value store.
// Commits are synced batches: either every record of a submission is on
// disk or none is.
type PebbleLedger struct {
	mu   sync.Mutex
	db   *pebble.DB
	next uint64 // last assigned sequence
}

// OpenPebble opens (or creates) a ledger at path and resumes the
// sequence counter from the last persisted record.
func OpenPebble(path string) (*PebbleLedger, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble ledger: %w", err)
	}

	l := &PebbleLedger{db: db}
	if err := l.resumeSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *PebbleLedger) resumeSeq() error {
	prefix := recordPrefix()
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("resume sequence: %w", err)
	}
	defer iter.Close()

	if iter.Last() && iter.Valid() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return fmt.Errorf("resume sequence: decode last record: %w", err)
		}
		l.next = rec.Seq
	}
	return nil
}

func (l *PebbleLedger) Commit(_ context.Context, recs []ledger.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	batch := l.db.NewBatch()
	defer batch.Close()

	seq := l.next
	for _, r := range recs {
		seq++
		r.Seq = seq
		val, err := encodeRecord(r)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if err := batch.Set(recordKey(seq), val, nil); err != nil {
			return fmt.Errorf("stage record: %w", err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	l.next = seq
	return nil
}

func (l *PebbleLedger) Replay(_ context.Context, fn func(ledger.Record) error) error {
	prefix := recordPrefix()
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return fmt.Errorf("replay: decode record at %s: %w", iter.Key(), err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (l *PebbleLedger) Close() error { return l.db.Close() }

var _ ledger.Ledger = (*PebbleLedger)(nil)
