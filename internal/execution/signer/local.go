package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	EnvPrivateKey     = "DEFI_PRIVATE_KEY"
	EnvPrivateKeyFile = "DEFI_PRIVATE_KEY_FILE"

	// DefaultKeyFile is looked up under the user config dir when neither
	// variable is set.
	DefaultKeyFile = "defi-intents/key.hex"
)

// LocalSigner signs with an in-memory secp256k1 key. It serves env wallet
// mode and keys decrypted from the per-user keystore.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func (s *LocalSigner) Address() common.Address { return s.address }

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("local signer is not initialized")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// FromKey wraps an already decrypted key.
func FromKey(pk *ecdsa.PrivateKey) (*LocalSigner, error) {
	if pk == nil {
		return nil, errors.New("missing private key")
	}
	return &LocalSigner{key: pk, address: crypto.PubkeyToAddress(pk.PublicKey)}, nil
}

type LocalSignerConfig struct {
	PrivateKeyHex  string
	PrivateKeyFile string
}

// NewLocalSigner prefers the inline hex key over the key file.
func NewLocalSigner(cfg LocalSignerConfig) (*LocalSigner, error) {
	raw := strings.TrimSpace(cfg.PrivateKeyHex)
	if raw == "" && strings.TrimSpace(cfg.PrivateKeyFile) != "" {
		buf, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		raw = string(buf)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("missing signing key: set %s or %s", EnvPrivateKey, EnvPrivateKeyFile)
	}
	pk, err := ParseHexKey(raw)
	if err != nil {
		return nil, err
	}
	return FromKey(pk)
}

// NewLocalSignerFromEnv loads the env wallet: DEFI_PRIVATE_KEY, then
// DEFI_PRIVATE_KEY_FILE, then DefaultKeyFile.
func NewLocalSignerFromEnv() (*LocalSigner, error) {
	cfg := LocalSignerConfig{
		PrivateKeyHex:  os.Getenv(EnvPrivateKey),
		PrivateKeyFile: strings.TrimSpace(os.Getenv(EnvPrivateKeyFile)),
	}
	if cfg.PrivateKeyFile == "" {
		cfg.PrivateKeyFile = defaultKeyFile()
	}
	return NewLocalSigner(cfg)
}

// ParseHexKey parses a secp256k1 key with or without 0x prefix.
func ParseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, errors.New("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}

func defaultKeyFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, DefaultKeyFile)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}
