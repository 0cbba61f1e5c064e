// Package storage is a thin wrapper over badger for the submission journal.
package storage

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

type Config struct {
	Path string
}

type Storage interface {
	Close() error
	Destroy() error

	GetKey(key []byte) ([]byte, error)
	GetByPrefix(prefix []byte) ([]*KeyValueItem, error)

	// key only scan, cheap because it never touches the value log
	ListKeys(prefix string) ([]string, error)
	CountKeysByPrefix(prefix []byte) (int64, error)

	Set(key, value []byte) error
	Delete(key []byte) error

	// Transaction runs fn inside a single read-write transaction. Every
	// mutation fn makes through txn commits atomically or not at all.
	Transaction(fn func(txn Txn) error) error

	GetCounter(key []byte, defaultValue ...uint64) (uint64, error)

	Vacuum() error
	DbPath() string
}

// Txn is the mutation surface handed to Transaction callbacks.
type Txn interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
}

type KeyValueItem struct {
	Key   []byte
	Value []byte
}

type BadgerStorage struct {
	config *Config
	db     *badger.DB
}

func NewWithPath(path string) (Storage, error) {
	return New(&Config{Path: path})
}

func New(c *Config) (Storage, error) {
	opts := badger.DefaultOptions(c.Path)
	db, err := badger.Open(opts.WithSyncWrites(true))
	if err != nil {
		return nil, err
	}

	return &BadgerStorage{config: c, db: db}, nil
}

func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

// Destroy shuts down the database and wipes its data directory.
func (s *BadgerStorage) Destroy() error {
	s.Close()
	return os.RemoveAll(s.config.Path)
}

func (s *BadgerStorage) Set(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *BadgerStorage) Delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

type badgerTxn struct {
	txn *badger.Txn
}

func (t badgerTxn) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t badgerTxn) Set(key, value []byte) error {
	return t.txn.Set(key, value)
}

func (t badgerTxn) Delete(key []byte) error {
	return t.txn.Delete(key)
}

func (s *BadgerStorage) Transaction(fn func(txn Txn) error) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(badgerTxn{txn: txn})
	})
}

func (s *BadgerStorage) GetKey(key []byte) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})

	return value, err
}

func (s *BadgerStorage) GetByPrefix(prefix []byte) ([]*KeyValueItem, error) {
	var result []*KeyValueItem

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 30
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			result = append(result, &KeyValueItem{
				Key:   item.KeyCopy(nil),
				Value: v,
			})
		}
		return nil
	})

	return result, err
}

func (s *BadgerStorage) ListKeys(prefix string) ([]string, error) {
	var keys []string

	if prefix == "*" {
		prefix = ""
	} else {
		prefix = strings.TrimSuffix(prefix, "*")
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

func (s *BadgerStorage) CountKeysByPrefix(prefix []byte) (int64, error) {
	if len(prefix) == 0 {
		return 0, fmt.Errorf("cannot count prefix with length 0")
	}

	total := int64(0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			total++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}

// Counters are stored as decimal strings so they read cleanly in the badger
// console tooling.

func (s *BadgerStorage) GetCounter(key []byte, defaultValue ...uint64) (uint64, error) {
	var counter uint64

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			if len(defaultValue) > 0 {
				counter = defaultValue[0]
				return nil
			}
			return err
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			counter, err = strconv.ParseUint(string(val), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid counter format: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	return counter, nil
}

// bumpCounter increments the decimal counter at key within an open
// transaction, so callers can tie it to their other writes.
func bumpCounter(txn Txn, key []byte, defaultValue ...uint64) (uint64, error) {
	var start uint64
	if len(defaultValue) > 0 {
		start = defaultValue[0]
	}

	var newValue uint64
	val, err := txn.Get(key)
	switch {
	case err == badger.ErrKeyNotFound:
		newValue = start + 1
	case err != nil:
		return 0, err
	default:
		current, perr := strconv.ParseUint(string(val), 10, 64)
		if perr != nil {
			return 0, fmt.Errorf("invalid counter format: %w", perr)
		}
		newValue = current + 1
	}

	return newValue, txn.Set(key, []byte(strconv.FormatUint(newValue, 10)))
}

func (s *BadgerStorage) Vacuum() error {
	if err := s.db.RunValueLogGC(0.7); err != nil && err != badger.ErrNoRewrite {
		return err
	}
	return nil
}

func (s *BadgerStorage) DbPath() string {
	return s.config.Path
}
