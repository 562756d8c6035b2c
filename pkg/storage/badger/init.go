package badger

import (
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/dgraph-io/badger/v4"
)

type Database struct {
	db *badger.DB
}

func NewDatabase(path string) (*Database, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrDBConnection, err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) get(key []byte) ([]byte, error) {
	var val []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)

		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, pkgerrors.ErrNotFound
		}

		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrDBQuery, err)
	}

	return val, nil
}

func (d *Database) set(key, val []byte) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrUpdate, err)
	}

	return nil
}

// setNew writes val only when key is absent.
func (d *Database) setNew(key, val []byte) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return pkgerrors.ErrEntityExists
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		return txn.Set(key, val)
	})
	switch {
	case errors.Is(err, pkgerrors.ErrEntityExists):
		return err
	case err != nil:
		return fmt.Errorf("%w: %w", pkgerrors.ErrCreate, err)
	}

	return nil
}

func (d *Database) listWithPrefix(prefix []byte, offset, limit uint64) ([][]byte, error) {
	var items [][]byte
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = int(max(min(limit, 1000), 1))
		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := uint64(0)
		count := uint64(0)

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if skipped < offset {
				skipped++

				continue
			}
			if count >= limit {
				break
			}

			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			items = append(items, val)
			count++
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrDBQuery, err)
	}

	return items, nil
}

func (d *Database) lastWithPrefix(prefix []byte) ([]byte, error) {
	var val []byte
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(append(append([]byte(nil), prefix...), 0xFF))
		if !it.ValidForPrefix(prefix) {
			return pkgerrors.ErrNotFound
		}
		var err error
		val, err = it.Item().ValueCopy(nil)

		return err
	})
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrDBQuery, err)
	}

	return val, nil
}

func (d *Database) countWithPrefix(prefix []byte) (uint64, error) {
	count := uint64(0)
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", pkgerrors.ErrDBQuery, err)
	}

	return count, nil
}
