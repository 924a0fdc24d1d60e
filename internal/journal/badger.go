// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

const itemPrefix = "item:"

// BadgerJournal stores entries as JSON under "item:<id>".
type BadgerJournal struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a journal in dir. An empty dir opens an
// in-memory journal.
func OpenBadger(dir string) (*BadgerJournal, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return &BadgerJournal{db: db}, nil
}

func (j *BadgerJournal) Close() error { return j.db.Close() }

func (j *BadgerJournal) Save(e Entry) error {
	if e.Item.ID == "" {
		return errors.New("journal: entry without item id")
	}
	buf, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(itemPrefix+e.Item.ID), buf)
	})
}

func (j *BadgerJournal) Delete(itemID string) error {
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(itemPrefix + itemID))
	})
}

func (j *BadgerJournal) Load() ([]Entry, error) {
	var out []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(itemPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal: load: %w", err)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Seq < out[b].Seq })
	return out, nil
}

var _ Journal = (*BadgerJournal)(nil)
