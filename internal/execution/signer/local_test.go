package signer

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

// clearKeyEnv points the config dir at an empty temp dir and unsets both
// key variables.
func clearKeyEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv(EnvPrivateKey, "")
	t.Setenv(EnvPrivateKeyFile, "")
	return dir
}

func TestNewLocalSignerFromEnvHex(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvPrivateKey, "0x"+testPrivateKey)
	s, err := NewLocalSignerFromEnv()
	if err != nil {
		t.Fatalf("NewLocalSignerFromEnv failed: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Fatal("expected non-zero signer address")
	}
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(43114),
		Nonce:     0,
		To:        &to,
		Value:     big.NewInt(0),
		Gas:       21_000,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
	})
	signed, err := s.SignTx(big.NewInt(43114), tx)
	if err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(43114)), signed)
	if err != nil || from != s.Address() {
		t.Fatalf("recovered sender %s does not match %s (err=%v)", from.Hex(), s.Address().Hex(), err)
	}
}

func TestNewLocalSignerFromEnvFile(t *testing.T) {
	dir := clearKeyEnv(t)
	keyFile := filepath.Join(dir, "key.txt")
	if err := os.WriteFile(keyFile, []byte(testPrivateKey+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv(EnvPrivateKeyFile, keyFile)

	s, err := NewLocalSignerFromEnv()
	if err != nil {
		t.Fatalf("NewLocalSignerFromEnv failed: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Fatal("expected non-zero signer address")
	}
}

func TestNewLocalSignerPrefersInlineKey(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "other.hex")
	other := "8b3a350cf5c34c9194ca85829a2df0ec3153be0318b5e2d3348e872092edffba"
	if err := os.WriteFile(keyFile, []byte(other), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	inline, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: testPrivateKey, PrivateKeyFile: keyFile})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	fromFile, err := NewLocalSigner(LocalSignerConfig{PrivateKeyFile: keyFile})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	if inline.Address() == fromFile.Address() {
		t.Fatal("expected the inline key to win over the key file")
	}
}

func TestNewLocalSignerFromEnvUsesDefaultKeyFile(t *testing.T) {
	cfgDir := clearKeyEnv(t)
	keyDir := filepath.Join(cfgDir, "defi-intents")
	if err := os.MkdirAll(keyDir, 0o755); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(keyDir, "key.hex"), []byte(testPrivateKey), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	s, err := NewLocalSignerFromEnv()
	if err != nil {
		t.Fatalf("expected the default key path to be used: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Fatal("expected non-zero signer address")
	}
}

func TestNewLocalSignerMissingKey(t *testing.T) {
	clearKeyEnv(t)
	if _, err := NewLocalSignerFromEnv(); err == nil {
		t.Fatal("expected missing key error")
	}
	if _, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: "0xzz"}); err == nil {
		t.Fatal("expected parse error for a malformed key")
	}
}
