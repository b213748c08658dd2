// SPDX-License-Identifier: MPL-2.0
//
// noiseconf loads the on-disk identity and peer table a process needs to
// start handshaking, generalized down from the teacher's own
// config/v1alpha1.Config (which additionally carries IP assignment, DNS
// and gateway fields that spec.md's Non-goals explicitly exclude: key
// generation/storage policy and the surrounding network layer are out of
// scope, but the config file format itself is ambient plumbing every
// deployment needs). The struct-tag and GetKind/GetAPIVersion shape is
// kept from the teacher; the field set is trimmed to identity + peers.
package noiseconf

import (
	"encoding/base64"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const ApiVersion = "shas.github.com/v1alpha1"

// Config is the on-disk identity and peer table for one process.
type Config struct {
	Kind       string       `yaml:"kind"`
	APIVersion string       `yaml:"apiVersion"`
	Name       string       `yaml:"name,omitempty"`
	PrivateKey string       `yaml:"privateKey"`
	Peers      []PeerConfig `yaml:"peers,omitempty"`
}

// PeerConfig names one peer this process may handshake with.
type PeerConfig struct {
	// Name is an optional human-readable label for this peer.
	Name string `yaml:"name,omitempty"`
	// PublicKey is the peer's base64-encoded Noise static public key.
	PublicKey string `yaml:"publicKey"`
	// Endpoint is an optional address (e.g. a wsconn URL) at which this
	// peer can be dialed.
	Endpoint string `yaml:"endpoint,omitempty"`
}

func (c Config) GetKind() string       { return "Config" }
func (c Config) GetAPIVersion() string { return ApiVersion }

// Load reads and parses a Config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("noiseconf: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("noiseconf: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("noiseconf: %s: %w", path, err)
	}
	return &c, nil
}

// Validate checks that the config decodes to well-formed key material
// without reporting on anything this package has no opinion about (trust
// decisions, key provenance: spec.md's Non-goals).
func (c Config) Validate() error {
	if c.APIVersion != "" && c.APIVersion != ApiVersion {
		return fmt.Errorf("unsupported apiVersion %q", c.APIVersion)
	}
	if _, err := c.StaticKey(); err != nil {
		return fmt.Errorf("privateKey: %w", err)
	}
	seen := make(map[string]struct{}, len(c.Peers))
	for _, p := range c.Peers {
		key, err := p.Key()
		if err != nil {
			return fmt.Errorf("peer %q: %w", p.Name, err)
		}
		k := string(key[:])
		if _, dup := seen[k]; dup {
			return fmt.Errorf("peer %q: duplicate publicKey", p.Name)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// StaticKey decodes this process's own 32-byte Noise static private key.
func (c Config) StaticKey() ([32]byte, error) {
	return decodeKey(c.PrivateKey)
}

// Key decodes this peer's 32-byte Noise static public key.
func (p PeerConfig) Key() ([32]byte, error) {
	return decodeKey(p.PublicKey)
}

func decodeKey(s string) ([32]byte, error) {
	var key [32]byte
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("invalid base64: %w", err)
	}
	if len(raw) != 32 {
		return key, fmt.Errorf("key must decode to 32 bytes, got %d", len(raw))
	}
	copy(key[:], raw)
	return key, nil
}
