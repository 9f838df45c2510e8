// Package wallet resolves the signer for a user. Keys never leave this
// package except as a signer.Signer borrowed for one execution.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
	"github.com/ggonzalez94/defi-intents/internal/execution/signer"
	"github.com/google/uuid"
)

// Wallets hands out signers per user.
type Wallets interface {
	Address(ctx context.Context, userID string) (common.Address, error)
	Signer(ctx context.Context, userID string) (signer.Signer, error)
}

// NoWallet is returned when a user has no wallet on record.
func NoWallet(userID string) error {
	return clierr.New(clierr.CodeNoWallet, fmt.Sprintf("no wallet for user %q; create or import one first", userID))
}

var unsafeUserChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// KeystoreWallets keeps one scrypt-encrypted key file per user in Dir.
type KeystoreWallets struct {
	Dir        string
	Passphrase string
	// LightKDF trades key-file strength for speed; tests enable it.
	LightKDF bool
}

func NewKeystoreWallets(dir, passphrase string) *KeystoreWallets {
	return &KeystoreWallets{Dir: dir, Passphrase: passphrase}
}

func (w *KeystoreWallets) path(userID string) (string, error) {
	clean := strings.TrimSpace(userID)
	if clean == "" {
		return "", clierr.New(clierr.CodeUsage, "user id is required")
	}
	return filepath.Join(w.Dir, unsafeUserChars.ReplaceAllString(clean, "_")+".json"), nil
}

// Create generates a fresh key for the user. An existing wallet is never
// overwritten.
func (w *KeystoreWallets) Create(ctx context.Context, userID string) (common.Address, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeInternal, "generate key", err)
	}
	return w.store(userID, pk)
}

// Import stores a hex private key for the user.
func (w *KeystoreWallets) Import(ctx context.Context, userID, privateKeyHex string) (common.Address, error) {
	pk, err := signer.ParseHexKey(privateKeyHex)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeUsage, "import key", err)
	}
	return w.store(userID, pk)
}

func (w *KeystoreWallets) store(userID string, pk *ecdsa.PrivateKey) (common.Address, error) {
	if strings.TrimSpace(w.Passphrase) == "" {
		return common.Address{}, clierr.New(clierr.CodeUsage, "keystore passphrase is required")
	}
	path, err := w.path(userID)
	if err != nil {
		return common.Address{}, err
	}
	if err := os.MkdirAll(w.Dir, 0o700); err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeInternal, "create keystore directory", err)
	}
	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(pk.PublicKey),
		PrivateKey: pk,
	}
	scryptN, scryptP := keystore.StandardScryptN, keystore.StandardScryptP
	if w.LightKDF {
		scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
	}
	blob, err := keystore.EncryptKey(key, w.Passphrase, scryptN, scryptP)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeInternal, "encrypt key", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("user %q already has a wallet", userID))
		}
		return common.Address{}, clierr.Wrap(clierr.CodeInternal, "write key file", err)
	}
	defer f.Close()
	if _, err := f.Write(blob); err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeInternal, "write key file", err)
	}
	return key.Address, nil
}

// Address reads the public address without decrypting the key.
func (w *KeystoreWallets) Address(ctx context.Context, userID string) (common.Address, error) {
	blob, err := w.read(userID)
	if err != nil {
		return common.Address{}, err
	}
	var header struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(blob, &header); err != nil || !common.IsHexAddress(header.Address) {
		return common.Address{}, clierr.New(clierr.CodeInternal, "key file has no address")
	}
	return common.HexToAddress(header.Address), nil
}

func (w *KeystoreWallets) Signer(ctx context.Context, userID string) (signer.Signer, error) {
	blob, err := w.read(userID)
	if err != nil {
		return nil, err
	}
	key, err := keystore.DecryptKey(blob, w.Passphrase)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "decrypt key", err)
	}
	s, err := signer.FromKey(key.PrivateKey)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load signer", err)
	}
	return s, nil
}

func (w *KeystoreWallets) read(userID string) ([]byte, error) {
	path, err := w.path(userID)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NoWallet(userID)
		}
		return nil, clierr.Wrap(clierr.CodeInternal, "read key file", err)
	}
	return blob, nil
}

// StaticWallets serves the same signer to every user. It backs the
// single-user CLI where the key comes from env or a key file.
type StaticWallets struct {
	Load func() (signer.Signer, error)
}

func (w StaticWallets) Address(ctx context.Context, userID string) (common.Address, error) {
	s, err := w.Signer(ctx, userID)
	if err != nil {
		return common.Address{}, err
	}
	return s.Address(), nil
}

func (w StaticWallets) Signer(ctx context.Context, userID string) (signer.Signer, error) {
	if w.Load == nil {
		return nil, NoWallet(userID)
	}
	s, err := w.Load()
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeNoWallet, "no signing key configured", err)
	}
	return s, nil
}
