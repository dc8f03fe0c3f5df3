package storage

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/auroca-io/Asset-Referenced-Token/native/basket"
)

var (
	assetA = ethcommon.HexToAddress("0x0000000000000000000000000000000000000a01")
	assetB = ethcommon.HexToAddress("0x0000000000000000000000000000000000000a02")
	holder = ethcommon.HexToAddress("0x0000000000000000000000000000000000000a03")
)

func openTestBolt(t *testing.T) *BoltState {
	t.Helper()
	state, err := OpenBolt(filepath.Join(t.TempDir(), "wrapper.db"), &bolt.Options{Timeout: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = state.Close() })
	return state
}

func TestBoltStateRoundTripsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wrapper.db")

	state, err := OpenBolt(path, &bolt.Options{Timeout: 10 * time.Millisecond})
	require.NoError(t, err)

	composition := &basket.Basket{
		Version: 3,
		Entries: []basket.AssetEntry{
			{Token: assetA, WeightBps: 6000, Active: true},
			{Token: assetB, WeightBps: 4000, Active: true},
		},
	}
	require.NoError(t, state.Update(func(txn basket.StateTxn) error {
		if err := txn.PutBasket(composition); err != nil {
			return err
		}
		if err := txn.SetBalance(holder, big.NewInt(750)); err != nil {
			return err
		}
		if err := txn.SetTotalSupply(big.NewInt(750)); err != nil {
			return err
		}
		if err := txn.SetPaused(true); err != nil {
			return err
		}
		return txn.AddDust(assetA, big.NewInt(1234))
	}))
	require.NoError(t, state.Close())

	reopened, err := OpenBolt(path, &bolt.Options{Timeout: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	require.NoError(t, reopened.View(func(reader basket.StateReader) error {
		stored, ok, err := reader.Basket()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint64(3), stored.Version)
		require.Equal(t, composition.Entries, stored.Entries)

		balance, err := reader.Balance(holder)
		require.NoError(t, err)
		require.Zero(t, balance.Cmp(big.NewInt(750)))

		supply, err := reader.TotalSupply()
		require.NoError(t, err)
		require.Zero(t, supply.Cmp(big.NewInt(750)))

		paused, err := reader.Paused()
		require.NoError(t, err)
		require.True(t, paused)

		dust, err := reader.Dust(assetA)
		require.NoError(t, err)
		require.Zero(t, dust.Cmp(big.NewInt(1234)))

		holders, err := reader.Holders()
		require.NoError(t, err)
		require.Equal(t, []ethcommon.Address{holder}, holders)
		return nil
	}))
}

func TestBoltStateRollsBackFailedUpdate(t *testing.T) {
	state := openTestBolt(t)
	require.NoError(t, state.Update(func(txn basket.StateTxn) error {
		return txn.SetTotalSupply(big.NewInt(100))
	}))

	boom := errors.New("boom")
	err := state.Update(func(txn basket.StateTxn) error {
		if err := txn.SetTotalSupply(big.NewInt(999)); err != nil {
			return err
		}
		if err := txn.SetBalance(holder, big.NewInt(999)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, state.View(func(reader basket.StateReader) error {
		supply, err := reader.TotalSupply()
		require.NoError(t, err)
		require.Zero(t, supply.Cmp(big.NewInt(100)))

		balance, err := reader.Balance(holder)
		require.NoError(t, err)
		require.Zero(t, balance.Sign())
		return nil
	}))
}

func TestBoltStateDustArithmetic(t *testing.T) {
	state := openTestBolt(t)
	require.NoError(t, state.Update(func(txn basket.StateTxn) error {
		if err := txn.AddDust(assetA, big.NewInt(40)); err != nil {
			return err
		}
		return txn.AddDust(assetA, big.NewInt(60))
	}))

	require.NoError(t, state.View(func(reader basket.StateReader) error {
		dust, err := reader.Dust(assetA)
		require.NoError(t, err)
		require.Zero(t, dust.Cmp(big.NewInt(100)))
		return nil
	}))

	// An exact cancellation clears the record.
	require.NoError(t, state.Update(func(txn basket.StateTxn) error {
		return txn.AddDust(assetA, big.NewInt(-100))
	}))
	require.NoError(t, state.View(func(reader basket.StateReader) error {
		dust, err := reader.DustBalances()
		require.NoError(t, err)
		require.Empty(t, dust)
		return nil
	}))

	// Mint-side rounding legitimately drives the drift below zero, and the
	// negative total must survive persistence.
	require.NoError(t, state.Update(func(txn basket.StateTxn) error {
		return txn.AddDust(assetA, big.NewInt(-7))
	}))
	require.NoError(t, state.View(func(reader basket.StateReader) error {
		dust, err := reader.Dust(assetA)
		require.NoError(t, err)
		require.Zero(t, dust.Cmp(big.NewInt(-7)))
		return nil
	}))
}

func TestBoltStateRejectsNegativeWrites(t *testing.T) {
	state := openTestBolt(t)
	require.Error(t, state.Update(func(txn basket.StateTxn) error {
		return txn.SetBalance(holder, big.NewInt(-1))
	}))
	require.Error(t, state.Update(func(txn basket.StateTxn) error {
		return txn.SetTotalSupply(big.NewInt(-1))
	}))
}

func TestBoltStateZeroBalanceClearsHolder(t *testing.T) {
	state := openTestBolt(t)
	require.NoError(t, state.Update(func(txn basket.StateTxn) error {
		return txn.SetBalance(holder, big.NewInt(10))
	}))
	require.NoError(t, state.Update(func(txn basket.StateTxn) error {
		return txn.SetBalance(holder, big.NewInt(0))
	}))
	require.NoError(t, state.View(func(reader basket.StateReader) error {
		holders, err := reader.Holders()
		require.NoError(t, err)
		require.Empty(t, holders)
		return nil
	}))
}
