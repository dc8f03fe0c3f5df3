package storage

import (
	"fmt"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"

	"github.com/auroca-io/Asset-Referenced-Token/native/basket"
)

var (
	bucketMeta     = []byte("meta")
	bucketBalances = []byte("balances")
	bucketDust     = []byte("dust")

	keyBasket = []byte("basket")
	keySupply = []byte("supply")
	keyPaused = []byte("paused")
)

// BoltState persists wrapper supply, the basket composition, the pause flag
// and dust counters in a BoltDB file. Every engine Update maps onto a single
// Bolt write transaction, so the closure's writes commit or abort together.
type BoltState struct {
	db *bolt.DB
}

// OpenBolt opens (and migrates) the database at path.
func OpenBolt(path string, options *bolt.Options) (*BoltState, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketMeta, bucketBalances, bucketDust} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltState{db: db}, nil
}

// Close releases the underlying Bolt database handle.
func (s *BoltState) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// View runs fn against a read-only transaction.
func (s *BoltState) View(fn func(basket.StateReader) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: bolt state not initialised")
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&boltTxn{tx: tx})
	})
}

// Update runs fn against a writable transaction. An error from fn rolls back
// every write issued inside it.
func (s *BoltState) Update(fn func(basket.StateTxn) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: bolt state not initialised")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltTxn{tx: tx})
	})
}

type boltTxn struct {
	tx *bolt.Tx
}

func (t *boltTxn) Basket() (*basket.Basket, bool, error) {
	raw := t.tx.Bucket(bucketMeta).Get(keyBasket)
	if raw == nil {
		return nil, false, nil
	}
	current, err := decodeBasket(raw)
	if err != nil {
		return nil, false, err
	}
	return current, true, nil
}

func (t *boltTxn) Balance(holder ethcommon.Address) (*big.Int, error) {
	return decodeAmount(t.tx.Bucket(bucketBalances).Get(holder.Bytes()))
}

func (t *boltTxn) TotalSupply() (*big.Int, error) {
	return decodeAmount(t.tx.Bucket(bucketMeta).Get(keySupply))
}

func (t *boltTxn) Holders() ([]ethcommon.Address, error) {
	var holders []ethcommon.Address
	err := t.tx.Bucket(bucketBalances).ForEach(func(key, _ []byte) error {
		if len(key) != ethcommon.AddressLength {
			return fmt.Errorf("storage: malformed holder key of %d bytes", len(key))
		}
		holders = append(holders, ethcommon.BytesToAddress(key))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return holders, nil
}

func (t *boltTxn) Paused() (bool, error) {
	raw := t.tx.Bucket(bucketMeta).Get(keyPaused)
	return len(raw) == 1 && raw[0] == 1, nil
}

func (t *boltTxn) Dust(token ethcommon.Address) (*big.Int, error) {
	return decodeAmount(t.tx.Bucket(bucketDust).Get(token.Bytes()))
}

func (t *boltTxn) DustBalances() (map[ethcommon.Address]*big.Int, error) {
	dust := make(map[ethcommon.Address]*big.Int)
	err := t.tx.Bucket(bucketDust).ForEach(func(key, value []byte) error {
		if len(key) != ethcommon.AddressLength {
			return fmt.Errorf("storage: malformed dust key of %d bytes", len(key))
		}
		units, err := decodeAmount(value)
		if err != nil {
			return err
		}
		dust[ethcommon.BytesToAddress(key)] = units
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dust, nil
}

func (t *boltTxn) PutBasket(b *basket.Basket) error {
	raw, err := encodeBasket(b)
	if err != nil {
		return err
	}
	return t.tx.Bucket(bucketMeta).Put(keyBasket, raw)
}

func (t *boltTxn) SetBalance(holder ethcommon.Address, amount *big.Int) error {
	bucket := t.tx.Bucket(bucketBalances)
	if amount == nil || amount.Sign() == 0 {
		return bucket.Delete(holder.Bytes())
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("storage: negative balance for %s", holder.Hex())
	}
	return bucket.Put(holder.Bytes(), encodeAmount(amount))
}

func (t *boltTxn) SetTotalSupply(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("storage: total supply must be non-negative")
	}
	return t.tx.Bucket(bucketMeta).Put(keySupply, encodeAmount(amount))
}

func (t *boltTxn) SetPaused(paused bool) error {
	value := []byte{0}
	if paused {
		value[0] = 1
	}
	return t.tx.Bucket(bucketMeta).Put(keyPaused, value)
}

func (t *boltTxn) AddDust(token ethcommon.Address, units *big.Int) error {
	if units == nil || units.Sign() == 0 {
		return nil
	}
	bucket := t.tx.Bucket(bucketDust)
	current, err := decodeAmount(bucket.Get(token.Bytes()))
	if err != nil {
		return err
	}
	// Mint-side rounding drives the counter negative, so any non-zero total
	// persists; only an exact cancellation clears the record.
	next := current.Add(current, units)
	if next.Sign() == 0 {
		return bucket.Delete(token.Bytes())
	}
	return bucket.Put(token.Bytes(), encodeAmount(next))
}
