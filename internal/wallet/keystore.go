package wallet

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Klingon-tech/scrooge-ledger/internal/log"
	"github.com/Klingon-tech/scrooge-ledger/pkg/crypto"
)

// Keystore errors.
var (
	ErrWalletExists   = errors.New("wallet already exists")
	ErrWalletNotFound = errors.New("wallet not found")
)

const keystoreVersion = 1

// keystoreFile is the on-disk JSON format for an encrypted wallet.
type keystoreFile struct {
	Version       int          `json:"version"`
	CreatedAt     time.Time    `json:"created_at"`
	EncryptedSeed []byte       `json:"encrypted_seed"`
	Owners        []OwnerEntry `json:"owners"`
	NextIndex     uint32       `json:"next_index"`
}

// OwnerEntry records a derived owner key. Only the public half is stored.
type OwnerEntry struct {
	Account uint32 `json:"account"`
	Index   uint32 `json:"index"`
	Owner   string `json:"owner"` // hex compressed public key
}

// Keystore keeps encrypted wallet seeds, one file per wallet.
type Keystore struct {
	path string
}

// NewKeystore opens (creating if needed) a keystore directory.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Create stores seed encrypted under password as wallet name.
func (ks *Keystore) Create(name string, seed, password []byte, params EncryptionParams) error {
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("invalid wallet name %q", name)
	}
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %q", ErrWalletExists, name)
	}

	encrypted, err := Encrypt(seed, password, params)
	if err != nil {
		return fmt.Errorf("encrypt seed: %w", err)
	}

	kf := keystoreFile{
		Version:       keystoreVersion,
		CreatedAt:     time.Now().UTC(),
		EncryptedSeed: encrypted,
		Owners:        []OwnerEntry{},
	}
	if err := ks.writeFile(path, &kf); err != nil {
		return err
	}
	log.Wallet.Info().Str("wallet", name).Msg("Wallet created")
	return nil
}

// Load decrypts and returns the seed of wallet name.
func (ks *Keystore) Load(name string, password []byte) ([]byte, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return nil, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet %q: %w", name, err)
	}
	return seed, nil
}

// NewOwner derives the next owner key of wallet name, records it, and
// returns its signer.
func (ks *Keystore) NewOwner(name string, password []byte) (*crypto.PrivateKey, OwnerEntry, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return nil, OwnerEntry{}, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, OwnerEntry{}, fmt.Errorf("decrypt wallet %q: %w", name, err)
	}
	defer zero(seed)

	signer, err := deriveSigner(seed, 0, kf.NextIndex)
	if err != nil {
		return nil, OwnerEntry{}, err
	}
	entry := OwnerEntry{Account: 0, Index: kf.NextIndex, Owner: hex.EncodeToString(signer.PublicKey())}
	kf.Owners = append(kf.Owners, entry)
	kf.NextIndex++
	if err := ks.writeFile(ks.walletPath(name), kf); err != nil {
		return nil, OwnerEntry{}, err
	}
	return signer, entry, nil
}

// Signer returns the signer for the recorded owner key matching owner.
func (ks *Keystore) Signer(name string, password, owner []byte) (*crypto.PrivateKey, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return nil, err
	}
	want := hex.EncodeToString(owner)
	for _, e := range kf.Owners {
		if e.Owner != want {
			continue
		}
		seed, err := Decrypt(kf.EncryptedSeed, password)
		if err != nil {
			return nil, fmt.Errorf("decrypt wallet %q: %w", name, err)
		}
		defer zero(seed)
		return deriveSigner(seed, e.Account, e.Index)
	}
	return nil, fmt.Errorf("wallet %q has no key for owner %s", name, want)
}

// Owners returns the owner keys recorded for wallet name.
func (ks *Keystore) Owners(name string) ([]OwnerEntry, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return nil, err
	}
	return kf.Owners, nil
}

// List returns the names of all wallets, sorted.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".wallet" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	sort.Strings(names)
	return names, nil
}

func deriveSigner(seed []byte, account, index uint32) (*crypto.PrivateKey, error) {
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	key, err := master.DeriveOwner(account, index)
	if err != nil {
		return nil, err
	}
	return key.Signer()
}

func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(name string) (*keystoreFile, error) {
	data, err := os.ReadFile(ks.walletPath(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, nil
}
