// Package config loads collector and replay settings from the
// environment, typically populated from a .env file via godotenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds every tunable of the indexer binaries. Zero values fall
// back to component defaults where one exists; Validate enforces the
// settings that have none.
type Config struct {
	// ProtocolAddresses are the lending program addresses to index.
	ProtocolAddresses []string

	// ProtocolFlavors maps a program address to the protocol family that
	// decides its event handlers and valuation convention. Unmapped
	// addresses fall back to the solend shape.
	ProtocolFlavors map[string]string

	// RiskParamsFile points at the JSON reserve risk parameter tables
	// used by the valuation snapshotter.
	RiskParamsFile string

	RPCEndpoint string
	WSEndpoint  string

	// CallsPerSecond caps outbound RPC across all collectors.
	CallsPerSecond int

	SignatureBatchSize int
	ScanWindow         int
	ScanInterval       time.Duration
	BackfillInterval   time.Duration
	ReplayInterval     time.Duration
	SnapshotInterval   time.Duration

	PostgresDSN   string
	ClickhouseDSN string

	MetricsAddr string
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		ProtocolAddresses:  splitList(os.Getenv("PROTOCOL_PUBLIC_KEYS")),
		ProtocolFlavors:    splitPairs(os.Getenv("PROTOCOL_FLAVORS")),
		RiskParamsFile:     os.Getenv("RISK_PARAMS_FILE"),
		RPCEndpoint:        os.Getenv("RPC_ENDPOINT"),
		WSEndpoint:         os.Getenv("WS_ENDPOINT"),
		CallsPerSecond:     envInt("RATE_LIMIT_CPS", 5),
		SignatureBatchSize: envInt("SIGNATURE_BATCH_SIZE", 1000),
		ScanWindow:         envInt("SCAN_WINDOW", 10),
		ScanInterval:       envDuration("SCAN_INTERVAL", 2*time.Second),
		BackfillInterval:   envDuration("BACKFILL_INTERVAL", 10*time.Second),
		ReplayInterval:     envDuration("REPLAY_INTERVAL", 5*time.Second),
		SnapshotInterval:   envDuration("SNAPSHOT_INTERVAL", time.Minute),
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN:      os.Getenv("CLICKHOUSE_DSN"),
		MetricsAddr:        envDefault("METRICS_ADDR", ":9090"),
	}
}

// Validate checks the settings no component can default.
func (c *Config) Validate() error {
	if len(c.ProtocolAddresses) == 0 {
		return fmt.Errorf("PROTOCOL_PUBLIC_KEYS is required")
	}
	if c.RPCEndpoint == "" {
		return fmt.Errorf("RPC_ENDPOINT is required")
	}
	if c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	if c.CallsPerSecond <= 0 {
		return fmt.Errorf("RATE_LIMIT_CPS must be positive, got %d", c.CallsPerSecond)
	}
	return nil
}

// AddressSet is a concurrency-safe protocol address list that satisfies
// the collector's address provider. Replace swaps the whole set so new
// addresses take effect on the next collection cycle without a restart.
type AddressSet struct {
	mu        sync.RWMutex
	addresses []string
}

// NewAddressSet creates an address set with an initial list.
func NewAddressSet(addresses []string) *AddressSet {
	s := &AddressSet{}
	s.Replace(addresses)
	return s
}

// ProtocolAddresses returns a copy of the current set.
func (s *AddressSet) ProtocolAddresses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.addresses))
	copy(out, s.addresses)
	return out
}

// Replace swaps the set for a new list, dropping empty entries.
func (s *AddressSet) Replace(addresses []string) {
	cleaned := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if a = strings.TrimSpace(a); a != "" {
			cleaned = append(cleaned, a)
		}
	}

	s.mu.Lock()
	s.addresses = cleaned
	s.mu.Unlock()
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// splitPairs parses "key=value,key=value" lists.
func splitPairs(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
