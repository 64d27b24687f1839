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

package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
)

var (
	ErrNonPositiveCredit   = errors.New("ledger: credit amount must be positive")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
)

// ledger tracks the balance paid by one client and not yet spent on chunks.
// Payment channel callbacks may arrive on other goroutines.
type ledger struct {
	mutex   sync.Mutex
	balance btcutil.Amount
}

func (l *ledger) Balance() btcutil.Amount {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.balance
}

func (l *ledger) Credit(amount btcutil.Amount) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %s", ErrNonPositiveCredit, amount)
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.balance += amount
	return nil
}

// CanAfford returns whether the balance covers numChunks chunks at
// pricePerChunk
func (l *ledger) CanAfford(pricePerChunk btcutil.Amount, numChunks int) bool {
	if pricePerChunk <= 0 {
		return true
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return canAfford(l.balance, pricePerChunk, numChunks)
}

// Debit charges numChunks chunks at pricePerChunk. The balance is unchanged if
// it does not cover the charge.
func (l *ledger) Debit(pricePerChunk btcutil.Amount, numChunks int) error {
	if pricePerChunk <= 0 {
		return nil
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if !canAfford(l.balance, pricePerChunk, numChunks) {
		return fmt.Errorf(
			"%w: %d chunks at %s with balance %s",
			ErrInsufficientBalance,
			numChunks,
			pricePerChunk,
			l.balance,
		)
	}
	l.balance -= pricePerChunk * btcutil.Amount(numChunks)
	return nil
}

// canAfford divides rather than multiplies so that large chunk counts cannot
// overflow
func canAfford(balance btcutil.Amount, pricePerChunk btcutil.Amount, numChunks int) bool {
	if numChunks < 0 || balance < 0 {
		return false
	}
	return int64(balance/pricePerChunk) >= int64(numChunks)
}
