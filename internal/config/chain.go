package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultChain = "arbitrum-one"

const builtinNetworksYml = `
default: arbitrum-one
networks:
  - name: arbitrum-one
    rpc_url: https://arb1.arbitrum.io/rpc
    chain_id: 42161
    stylus: true
  - name: arbitrum-sepolia
    rpc_url: https://sepolia-rollup.arbitrum.io/rpc
    chain_id: 421614
    stylus: true
`

type Network struct {
	Name    string `yaml:"name"`
	RPCURL  string `yaml:"rpc_url"`
	ChainID uint64 `yaml:"chain_id"`
	// Stylus enables deployed-code lookups for WASM detection.
	Stylus bool `yaml:"stylus"`
	// ReplayURL is the endpoint printed in replay commands. Reports are
	// public, so it must not carry credentials.
	ReplayURL string `yaml:"replay_url"`
}

// ReplayEndpoint is the RPC endpoint safe to publish in reports: ReplayURL
// when set, otherwise RPCURL without credentials, query or key-like path
// segments.
func (n Network) ReplayEndpoint() string {
	if v := strings.TrimSpace(n.ReplayURL); v != "" {
		return v
	}
	return redactEndpoint(n.RPCURL)
}

func redactEndpoint(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return redactedSegment
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if looksLikeKey(seg) {
			segments[i] = redactedSegment
		}
	}
	u.Path = ""
	u.RawPath = ""
	if joined := strings.Join(segments, "/"); joined != "" {
		u.Path = "/" + joined
	}
	return u.String()
}

const redactedSegment = "REDACTED"

// looksLikeKey matches long random path tokens such as /v2/<key>.
func looksLikeKey(seg string) bool {
	if len(seg) < 16 {
		return false
	}
	var digits, letters int
	for _, r := range seg {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			letters++
		}
	}
	return (digits > 0 && letters > 0) || len(seg) >= 32
}

type networksFile struct {
	Default  string    `yaml:"default"`
	Networks []Network `yaml:"networks"`
}

type ChainConfig struct {
	Default  string
	Networks map[string]Network
}

// Resolve maps a chain identifier to its network. Unknown identifiers fall
// back to the default network instead of failing.
func (c ChainConfig) Resolve(chain string) Network {
	if n, ok := c.Networks[normalizeChain(chain)]; ok {
		return n
	}
	if n, ok := c.Networks[c.Default]; ok {
		return n
	}
	builtin, _ := parseNetworks([]byte(builtinNetworksYml))
	return builtin.Networks[DefaultChain]
}

// Known reports whether chain names a configured network.
func (c ChainConfig) Known(chain string) bool {
	_, ok := c.Networks[normalizeChain(chain)]
	return ok
}

func (c ChainConfig) Names() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	return names
}

func normalizeChain(chain string) string {
	return strings.ToLower(strings.TrimSpace(chain))
}

func parseNetworks(raw []byte) (ChainConfig, error) {
	var file networksFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return ChainConfig{}, err
	}
	cfg := ChainConfig{
		Default:  normalizeChain(file.Default),
		Networks: make(map[string]Network, len(file.Networks)),
	}
	for _, n := range file.Networks {
		n.Name = normalizeChain(n.Name)
		if n.Name == "" {
			return ChainConfig{}, fmt.Errorf("network without a name")
		}
		if strings.TrimSpace(n.RPCURL) == "" {
			return ChainConfig{}, fmt.Errorf("network %s has no rpc_url", n.Name)
		}
		cfg.Networks[n.Name] = n
	}
	return cfg, nil
}

// MergeNetworksFile overlays the networks in path on top of base. Networks
// with the same name are replaced.
func MergeNetworksFile(base ChainConfig, path string) (ChainConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read networks file %s: %w", path, err)
	}
	extra, err := parseNetworks(raw)
	if err != nil {
		return base, fmt.Errorf("decode networks file %s: %w", path, err)
	}
	merged := ChainConfig{Default: base.Default, Networks: make(map[string]Network, len(base.Networks)+len(extra.Networks))}
	for name, n := range base.Networks {
		merged.Networks[name] = n
	}
	for name, n := range extra.Networks {
		merged.Networks[name] = n
	}
	if extra.Default != "" {
		merged.Default = extra.Default
	}
	return merged, nil
}

func loadChain() ChainConfig {
	cfg, err := parseNetworks([]byte(builtinNetworksYml))
	if err != nil {
		log.Fatalf("builtin networks: %v", err)
	}
	if rpc := getenv("ARBITRUM_ONE_RPC", ""); rpc != "" {
		n := cfg.Networks["arbitrum-one"]
		n.RPCURL = rpc
		cfg.Networks["arbitrum-one"] = n
	}
	if rpc := getenv("ARBITRUM_SEPOLIA_RPC", ""); rpc != "" {
		n := cfg.Networks["arbitrum-sepolia"]
		n.RPCURL = rpc
		cfg.Networks["arbitrum-sepolia"] = n
	}
	if path := getenv("CHAINS_FILE", ""); path != "" {
		cfg, err = MergeNetworksFile(cfg, path)
		if err != nil {
			log.Fatalf("%v", err)
		}
	}
	if def := normalizeChain(getenv("DEFAULT_CHAIN", "")); def != "" {
		if _, ok := cfg.Networks[def]; ok {
			cfg.Default = def
		} else {
			log.Printf("warning: DEFAULT_CHAIN %q is not configured, keeping %s", def, cfg.Default)
		}
	}
	return cfg
}
