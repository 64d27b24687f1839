// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wallet implements a simulated wallet persisted in BoltDB. It holds a
// spendable balance and a record for every payment channel whose value is
// locked up.
package wallet

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blinklabs-io/payfile/cbor"
	"github.com/boltdb/bolt"
	"github.com/btcsuite/btcd/btcutil"
)

const (
	walletBucket   = "wallet"
	channelsBucket = "channels"
	balanceKey     = "balance"

	openTimeout = 2 * time.Second
)

var (
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
	ErrInvalidAmount     = errors.New("wallet: invalid amount")
	ErrChannelExists     = errors.New("wallet: channel already exists")
	ErrChannelNotFound   = errors.New("wallet: channel not found")
)

// ChannelRecord is the persisted state of a payment channel
type ChannelRecord struct {
	cbor.StructAsArray
	Counterparty [32]byte
	Value        btcutil.Amount
	Paid         btcutil.Amount
	// Expiry is a Unix timestamp in seconds
	Expiry int64
}

// Refundable returns the part of the channel value that has not been paid
func (r ChannelRecord) Refundable() btcutil.Amount {
	return r.Value - r.Paid
}

// ExpiresAt returns the channel expiry time
func (r ChannelRecord) ExpiresAt() time.Time {
	return time.Unix(r.Expiry, 0)
}

func (r ChannelRecord) String() string {
	return fmt.Sprintf(
		"channel %s: value %s, paid %s, expires %s",
		hex.EncodeToString(r.Counterparty[:8]),
		r.Value,
		r.Paid,
		r.ExpiresAt().UTC().Format(time.RFC3339),
	)
}

// Wallet is safe for concurrent use
type Wallet struct {
	db *bolt.DB
}

// Open opens the wallet at path, creating it if it does not exist
func Open(path string) (*Wallet, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("wallet: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucketName := range []string{walletBucket, channelsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucketName)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("wallet: init: %w", err)
	}
	return &Wallet{db: db}, nil
}

// Close closes the underlying database
func (w *Wallet) Close() error {
	return w.db.Close()
}

// Path returns the database file path
func (w *Wallet) Path() string {
	return w.db.Path()
}

// Balance returns the spendable balance
func (w *Wallet) Balance() (btcutil.Amount, error) {
	var ret btcutil.Amount
	err := w.db.View(func(tx *bolt.Tx) error {
		ret = getBalance(tx)
		return nil
	})
	return ret, err
}

// Deposit adds funds to the spendable balance
func (w *Wallet) Deposit(amount btcutil.Amount) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return w.db.Update(func(tx *bolt.Tx) error {
		return putBalance(tx, getBalance(tx)+amount)
	})
}

// OpenChannel moves the channel value from the spendable balance into a new
// channel record
func (w *Wallet) OpenChannel(rec ChannelRecord) error {
	if rec.Value <= 0 || rec.Paid != 0 {
		return fmt.Errorf("%w: channel value %s", ErrInvalidAmount, rec.Value)
	}
	return w.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(channelsBucket))
		if b.Get(rec.Counterparty[:]) != nil {
			return ErrChannelExists
		}
		balance := getBalance(tx)
		if rec.Value > balance {
			return fmt.Errorf(
				"%w: channel value %s exceeds balance %s",
				ErrInsufficientFunds,
				rec.Value,
				balance,
			)
		}
		if err := putChannel(b, rec); err != nil {
			return err
		}
		return putBalance(tx, balance-rec.Value)
	})
}

// UpdateChannel records the total amount paid on a channel
func (w *Wallet) UpdateChannel(counterparty [32]byte, paid btcutil.Amount) error {
	return w.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(channelsBucket))
		rec, err := getChannel(b, counterparty)
		if err != nil {
			return err
		}
		if paid < rec.Paid || paid > rec.Value {
			return fmt.Errorf(
				"%w: paid %s outside [%s, %s]",
				ErrInvalidAmount,
				paid,
				rec.Paid,
				rec.Value,
			)
		}
		rec.Paid = paid
		return putChannel(b, rec)
	})
}

// SetChannelExpiry records the expiry agreed with the counterparty
func (w *Wallet) SetChannelExpiry(counterparty [32]byte, expiry time.Time) error {
	return w.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(channelsBucket))
		rec, err := getChannel(b, counterparty)
		if err != nil {
			return err
		}
		rec.Expiry = expiry.Unix()
		return putChannel(b, rec)
	})
}

// SettleChannel removes a channel record and returns the unpaid part of the
// channel value to the spendable balance. The amount refunded is returned.
func (w *Wallet) SettleChannel(counterparty [32]byte, paid btcutil.Amount) (btcutil.Amount, error) {
	var refund btcutil.Amount
	err := w.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(channelsBucket))
		rec, err := getChannel(b, counterparty)
		if err != nil {
			return err
		}
		if paid < 0 || paid > rec.Value {
			return fmt.Errorf("%w: paid %s", ErrInvalidAmount, paid)
		}
		refund = rec.Value - paid
		if err := b.Delete(counterparty[:]); err != nil {
			return err
		}
		return putBalance(tx, getBalance(tx)+refund)
	})
	if err != nil {
		return 0, err
	}
	return refund, nil
}

// Channel returns the record for the channel with a counterparty
func (w *Wallet) Channel(counterparty [32]byte) (ChannelRecord, error) {
	var ret ChannelRecord
	err := w.db.View(func(tx *bolt.Tx) error {
		var err error
		ret, err = getChannel(tx.Bucket([]byte(channelsBucket)), counterparty)
		return err
	})
	return ret, err
}

// Channels returns all channel records
func (w *Wallet) Channels() ([]ChannelRecord, error) {
	var ret []ChannelRecord
	err := w.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(channelsBucket)).ForEach(func(k, v []byte) error {
			var rec ChannelRecord
			if _, err := cbor.Decode(v, &rec); err != nil {
				return fmt.Errorf("wallet: decode channel %x: %w", k, err)
			}
			ret = append(ret, rec)
			return nil
		})
	})
	return ret, err
}

func getBalance(tx *bolt.Tx) btcutil.Amount {
	v := tx.Bucket([]byte(walletBucket)).Get([]byte(balanceKey))
	if len(v) != 8 {
		return 0
	}
	// #nosec G115 -- balances are never negative
	return btcutil.Amount(binary.BigEndian.Uint64(v))
}

func putBalance(tx *bolt.Tx, balance btcutil.Amount) error {
	if balance < 0 {
		return fmt.Errorf("%w: negative balance %s", ErrInvalidAmount, balance)
	}
	buf := make([]byte, 8)
	// #nosec G115 -- checked above
	binary.BigEndian.PutUint64(buf, uint64(balance))
	return tx.Bucket([]byte(walletBucket)).Put([]byte(balanceKey), buf)
}

func getChannel(b *bolt.Bucket, counterparty [32]byte) (ChannelRecord, error) {
	var rec ChannelRecord
	v := b.Get(counterparty[:])
	if v == nil {
		return rec, ErrChannelNotFound
	}
	if _, err := cbor.Decode(v, &rec); err != nil {
		return rec, fmt.Errorf("wallet: decode channel: %w", err)
	}
	return rec, nil
}

func putChannel(b *bolt.Bucket, rec ChannelRecord) error {
	data, err := cbor.Encode(&rec)
	if err != nil {
		return err
	}
	return b.Put(rec.Counterparty[:], data)
}
