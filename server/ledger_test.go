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
	"math"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerCredit(t *testing.T) {
	var l ledger
	require.NoError(t, l.Credit(500))
	require.NoError(t, l.Credit(250))
	assert.Equal(t, btcutil.Amount(750), l.Balance())
	assert.ErrorIs(t, l.Credit(0), ErrNonPositiveCredit)
	assert.ErrorIs(t, l.Credit(-1), ErrNonPositiveCredit)
	assert.Equal(t, btcutil.Amount(750), l.Balance())
}

func TestLedgerDebit(t *testing.T) {
	testDefs := []struct {
		balance   btcutil.Amount
		price     btcutil.Amount
		numChunks int
		expected  btcutil.Amount
		expectErr bool
	}{
		{balance: 500, price: 100, numChunks: 5, expected: 0},
		{balance: 500, price: 100, numChunks: 1, expected: 400},
		{balance: 500, price: 100, numChunks: 6, expected: 500, expectErr: true},
		{balance: 99, price: 100, numChunks: 1, expected: 99, expectErr: true},
		{balance: 500, price: 0, numChunks: 1000, expected: 500},
		{balance: 0, price: 0, numChunks: 1, expected: 0},
		{balance: 500, price: 100, numChunks: math.MaxInt, expected: 500, expectErr: true},
	}
	for _, testDef := range testDefs {
		l := ledger{balance: testDef.balance}
		err := l.Debit(testDef.price, testDef.numChunks)
		if testDef.expectErr {
			assert.ErrorIs(t, err, ErrInsufficientBalance)
		} else {
			assert.NoError(t, err)
		}
		assert.Equal(t, testDef.expected, l.Balance())
		assert.GreaterOrEqual(t, l.Balance(), btcutil.Amount(0))
	}
}

func TestLedgerCanAfford(t *testing.T) {
	l := ledger{balance: 300}
	assert.True(t, l.CanAfford(100, 3))
	assert.False(t, l.CanAfford(100, 4))
	assert.True(t, l.CanAfford(0, 1_000_000))
	assert.False(t, l.CanAfford(100, -1))
}
