// derive_owner.go prints the owner key for a hex-encoded private key file,
// and a genesis allocation entry when a value is given.
// Usage: go run scripts/derive_owner.go <keyfile> [value]
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/scrooge-ledger/config"
	"github.com/Klingon-tech/scrooge-ledger/pkg/crypto"
	"github.com/shopspring/decimal"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_owner <keyfile> [value]")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fail(err)
	}
	keyBytes, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		fail(err)
	}
	key, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		fail(err)
	}
	owner := hex.EncodeToString(key.PublicKey())
	fmt.Printf("owner=%s\n", owner)

	if len(os.Args) < 3 {
		return
	}
	value, err := decimal.NewFromString(os.Args[2])
	if err != nil {
		fail(fmt.Errorf("value: %w", err))
	}
	entry, err := json.Marshal(config.Allocation{Owner: owner, Value: value})
	if err != nil {
		fail(err)
	}
	fmt.Printf("alloc=%s\n", entry)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
