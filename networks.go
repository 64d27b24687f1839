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

package payfile

import "github.com/btcsuite/btcd/btcutil"

// DefaultTxFee is the reference minimum transaction fee held back from a
// wallet balance when a client funds a payment channel
const DefaultTxFee btcutil.Amount = 10000

// Network definitions
var (
	NetworkMainnet = Network{
		Id:    "org.bitcoin.production",
		Name:  "mainnet",
		TxFee: DefaultTxFee,
	}
	NetworkTestnet = Network{
		Id:    "org.bitcoin.test",
		Name:  "testnet",
		TxFee: DefaultTxFee,
	}
	NetworkRegtest = Network{
		Id:    "org.bitcoin.regtest",
		Name:  "regtest",
		TxFee: DefaultTxFee,
	}

	NetworkInvalid = Network{
		Id:   "",
		Name: "invalid",
	} // NetworkInvalid is used as a return value for lookup functions when a network isn't found
)

// List of valid networks for use in lookup functions
var networks = []Network{
	NetworkMainnet,
	NetworkTestnet,
	NetworkRegtest,
}

// NetworkByName returns a predefined network by name
func NetworkByName(name string) Network {
	for _, network := range networks {
		if network.Name == name {
			return network
		}
	}
	return NetworkInvalid
}

// NetworkById returns a predefined network by its currency network identifier
func NetworkById(id string) Network {
	for _, network := range networks {
		if network.Id == id {
			return network
		}
	}
	return NetworkInvalid
}

// Network represents a currency network. Client and server must agree on the
// network before any file is listed.
type Network struct {
	Id    string // identifier exchanged in QueryFiles
	Name  string
	TxFee btcutil.Amount
}

func (n Network) String() string {
	return n.Name
}

// Valid returns whether the network is one of the predefined networks
func (n Network) Valid() bool {
	return n.Id != ""
}
