// Package config loads node settings from a .env file and the environment
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvListenAddr      = "GC_LISTEN_ADDR"
	EnvAnnounceAddr    = "GC_ANNOUNCE_ADDR"
	EnvAPIPort         = "GC_API_PORT"
	EnvAPIKeys         = "GC_API_KEYS"
	EnvDataDir         = "GC_DATA_DIR"
	EnvDHTPort         = "GC_DHT_PORT"
	EnvBootstrapPeers  = "GC_BOOTSTRAP_PEERS"
	EnvKeyringDir      = "GC_KEYRING_DIR"
	EnvKeyringPassword = "GC_KEYRING_PASSWORD"
	EnvKeyName         = "GC_KEY_NAME"
	EnvNick            = "GC_NICK"
	EnvTickInterval    = "GC_TICK_INTERVAL"
	EnvRateLimit       = "GC_RATE_LIMIT"
)

// Config holds everything needed to run a node
type Config struct {
	ListenAddr   string         // UDP address for group traffic
	AnnounceAddr netip.AddrPort // published address; defaults to the bound address
	APIPort      int            // 0 disables the HTTP API
	APIKeys      []string
	RateLimit    int

	DataDir        string
	DHTPort        int // 0 disables the announcement DHT
	BootstrapPeers []string

	KeyringDir      string // empty uses the platform keyring
	KeyringPassword string
	KeyName         string

	Nick         string
	TickInterval time.Duration
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		ListenAddr:   "0.0.0.0:33445",
		APIPort:      8080,
		RateLimit:    100,
		DataDir:      "./gc-data",
		KeyName:      "default",
		Nick:         "anonymous",
		TickInterval: 500 * time.Millisecond,
	}
}

// Load applies envFile (when it exists) and then the environment on top of
// the defaults. Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		} else {
			log.Printf("Loaded settings from %s", envFile)
		}
	}

	cfg := Default()
	var err error

	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvAnnounceAddr); v != "" {
		if cfg.AnnounceAddr, err = netip.ParseAddrPort(v); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvAnnounceAddr, err)
		}
	}
	if cfg.APIPort, err = intVar(EnvAPIPort, cfg.APIPort); err != nil {
		return nil, err
	}
	if v := os.Getenv(EnvAPIKeys); v != "" {
		cfg.APIKeys = splitList(v)
	}
	if cfg.RateLimit, err = intVar(EnvRateLimit, cfg.RateLimit); err != nil {
		return nil, err
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if cfg.DHTPort, err = intVar(EnvDHTPort, cfg.DHTPort); err != nil {
		return nil, err
	}
	if v := os.Getenv(EnvBootstrapPeers); v != "" {
		cfg.BootstrapPeers = splitList(v)
	}
	if v := os.Getenv(EnvKeyringDir); v != "" {
		cfg.KeyringDir = v
	}
	cfg.KeyringPassword = os.Getenv(EnvKeyringPassword)
	if v := os.Getenv(EnvKeyName); v != "" {
		cfg.KeyName = v
	}
	if v := os.Getenv(EnvNick); v != "" {
		cfg.Nick = v
	}
	if v := os.Getenv(EnvTickInterval); v != "" {
		if cfg.TickInterval, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvTickInterval, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges
func (c *Config) Validate() error {
	if _, err := netip.ParseAddrPort(c.ListenAddr); err != nil {
		return fmt.Errorf("listen address %q: %w", c.ListenAddr, err)
	}
	if c.APIPort < 0 || c.APIPort > 65535 {
		return fmt.Errorf("api port %d out of range", c.APIPort)
	}
	if c.DHTPort < 0 || c.DHTPort > 65535 {
		return fmt.Errorf("dht port %d out of range", c.DHTPort)
	}
	if c.TickInterval <= 0 || c.TickInterval > time.Second {
		return fmt.Errorf("tick interval %s must be in (0, 1s]", c.TickInterval)
	}
	if c.Nick == "" {
		return fmt.Errorf("nick must not be empty")
	}
	return nil
}

// AnnounceDBPath is the SQLite announcement cache
func (c *Config) AnnounceDBPath() string {
	return filepath.Join(c.DataDir, "announce.db")
}

// DHTListenAddrs are the libp2p listen multiaddrs for the DHT port
func (c *Config) DHTListenAddrs() []string {
	return []string{
		fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", c.DHTPort),
		fmt.Sprintf("/ip6/::/tcp/%d", c.DHTPort),
	}
}

func intVar(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
