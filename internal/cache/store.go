// internal/cache/store.go
package cache

import (
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Size is the capacity of the byte store (the device EEPROM).
const Size = 256

// erased is the content of a never-written cell.
const erased = 0xFF

// Store is a byte-addressed persistent memory.
type Store interface {
	Get(addr uint16) (byte, error)
	Put(addr uint16, v byte) error
}

// Committer is implemented by stores that buffer writes.
type Committer interface {
	Commit() error
}

var ErrAddress = errors.New("cache: address out of range")

func checkAddr(addr uint16) error {
	if int(addr) >= Size {
		return fmt.Errorf("%w: 0x%03X", ErrAddress, addr)
	}
	return nil
}

// ---- memory ----

// MemStore is an in-memory store. Writes counts physical writes.
type MemStore struct {
	mem    [Size]byte
	Writes int
}

// NewMemStore returns an erased store.
func NewMemStore() *MemStore {
	s := &MemStore{}
	for i := range s.mem {
		s.mem[i] = erased
	}
	return s
}

func (s *MemStore) Get(addr uint16) (byte, error) {
	if err := checkAddr(addr); err != nil {
		return 0, err
	}
	return s.mem[addr], nil
}

func (s *MemStore) Put(addr uint16, v byte) error {
	if err := checkAddr(addr); err != nil {
		return err
	}
	s.mem[addr] = v
	s.Writes++
	return nil
}

// Image returns a copy of the whole store.
func (s *MemStore) Image() [Size]byte { return s.mem }

// ---- bbolt ----

var (
	bucketEEPROM = []byte("eeprom")
	keyImage     = []byte("image")
)

// BoltStore keeps the EEPROM image in a bbolt file. Writes go to memory
// and reach disk on Commit, once per pass.
type BoltStore struct {
	db    *bolt.DB
	mem   [Size]byte
	dirty bool
}

// OpenBolt opens (or creates) the image at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}

	s := &BoltStore{db: db}
	for i := range s.mem {
		s.mem[i] = erased
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketEEPROM)
		if err != nil {
			return err
		}
		if img := b.Get(keyImage); img != nil {
			copy(s.mem[:], img)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: load %s: %w", path, err)
	}
	return s, nil
}

func (s *BoltStore) Get(addr uint16) (byte, error) {
	if err := checkAddr(addr); err != nil {
		return 0, err
	}
	return s.mem[addr], nil
}

func (s *BoltStore) Put(addr uint16, v byte) error {
	if err := checkAddr(addr); err != nil {
		return err
	}
	s.mem[addr] = v
	s.dirty = true
	return nil
}

// Commit writes the image if anything changed since the last commit.
func (s *BoltStore) Commit() error {
	if !s.dirty {
		return nil
	}
	img := s.mem
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEEPROM).Put(keyImage, img[:])
	})
	if err != nil {
		return fmt.Errorf("cache: commit: %w", err)
	}
	s.dirty = false
	return nil
}

// Close commits pending writes and closes the file.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	cerr := s.Commit()
	if err := s.db.Close(); err != nil {
		return err
	}
	return cerr
}
