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

// Package config handles the payfile TOML configuration file.
//
// A config file has optional [server] and [client] tables:
//
//	network = "testnet"
//
//	[server]
//	dir = "/srv/files"
//	port = 18754
//	price = 100
//	chunk-size = 51200
//
//	[client]
//	server = "files.example.com"
//	wallet = "client.wallet"
package config

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/blinklabs-io/payfile"
	"github.com/blinklabs-io/payfile/client"
	"github.com/blinklabs-io/payfile/paychan"
	"github.com/blinklabs-io/payfile/server"
	"github.com/btcsuite/btcd/btcutil"
)

const (
	DefaultServerWallet = "payfile-server.wallet"
	DefaultClientWallet = "payfile-client.wallet"
)

// Config is a payfile configuration
type Config struct {
	Network string       `toml:"network"`
	Debug   bool         `toml:"debug"`
	Server  ServerConfig `toml:"server"`
	Client  ClientConfig `toml:"client"`
}

// ServerConfig holds the settings of payfile-server
type ServerConfig struct {
	Dir                 string        `toml:"dir"`
	Listen              string        `toml:"listen"`
	Port                int           `toml:"port"`
	Price               int64         `toml:"price"`
	ChunkSize           uint32        `toml:"chunk-size"`
	Wallet              string        `toml:"wallet"`
	MaxSessions         int64         `toml:"max-sessions"`
	MaxChunksPerRequest int           `toml:"max-chunks-per-request"`
	ChannelLifetime     time.Duration `toml:"channel-lifetime"`
}

// ClientConfig holds the settings of payfile-client
type ClientConfig struct {
	Server        string        `toml:"server"`
	Wallet        string        `toml:"wallet"`
	SettleTimeout time.Duration `toml:"settle-timeout"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Network: payfile.NetworkMainnet.Name,
		Server: ServerConfig{
			Port:                payfile.DefaultPort,
			Price:               int64(payfile.DefaultPricePerChunk),
			ChunkSize:           payfile.DefaultChunkSize,
			Wallet:              DefaultServerWallet,
			MaxSessions:         server.DefaultMaxSessions,
			MaxChunksPerRequest: server.DefaultMaxChunksPerRequest,
			ChannelLifetime:     paychan.DefaultChannelLifetime,
		},
		Client: ClientConfig{
			Wallet:        DefaultClientWallet,
			SettleTimeout: client.DefaultSettleTimeout,
		},
	}
}

// Load reads the config file at path over the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf(
			"unknown keys in %s: %s",
			path,
			strings.Join(keys, ", "),
		)
	}
	return cfg, nil
}

// NetworkValue returns the configured network
func (c *Config) NetworkValue() payfile.Network {
	return payfile.NetworkByName(c.Network)
}

// Validate checks the settings shared by both binaries
func (c *Config) Validate() error {
	if !c.NetworkValue().Valid() {
		return fmt.Errorf("invalid network: %s", c.Network)
	}
	return nil
}

// ValidateServer checks the server settings
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Server.Dir == "" {
		return errors.New("no directory specified")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.Price < 0 {
		return fmt.Errorf("invalid price: %d", c.Server.Price)
	}
	if c.Server.ChunkSize == 0 {
		return errors.New("chunk size must be positive")
	}
	if c.Server.MaxSessions < 1 {
		return fmt.Errorf("invalid max sessions: %d", c.Server.MaxSessions)
	}
	if c.Server.MaxChunksPerRequest < 1 {
		return fmt.Errorf(
			"invalid max chunks per request: %d",
			c.Server.MaxChunksPerRequest,
		)
	}
	if c.Server.ChannelLifetime <= 0 {
		return errors.New("channel lifetime must be positive")
	}
	return nil
}

// ValidateClient checks the client settings
func (c *Config) ValidateClient() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Client.Server == "" {
		return errors.New("no server specified")
	}
	if c.Client.Wallet == "" {
		return errors.New("no wallet specified")
	}
	if c.Client.SettleTimeout <= 0 {
		return errors.New("settle timeout must be positive")
	}
	return nil
}

// ListenAddress returns the address the server listens on
func (s ServerConfig) ListenAddress() string {
	return net.JoinHostPort(s.Listen, strconv.Itoa(s.Port))
}

// PricePerChunk returns the configured price as an amount
func (s ServerConfig) PricePerChunk() btcutil.Amount {
	return btcutil.Amount(s.Price)
}
