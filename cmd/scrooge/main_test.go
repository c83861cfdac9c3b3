package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Klingon-tech/scrooge-ledger/config"
	"github.com/Klingon-tech/scrooge-ledger/pkg/crypto"
	"github.com/Klingon-tech/scrooge-ledger/pkg/tx"
	"github.com/Klingon-tech/scrooge-ledger/pkg/types"
	"github.com/shopspring/decimal"
)

// cli runs one command line against dataDir and returns its stdout.
func cli(t *testing.T, dataDir string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{"--datadir", dataDir, "--store", "badger", "--log-level", "error", "--metrics=false"}, args...)
	if err := run(full, &out); err != nil {
		t.Fatalf("scrooge %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func writeGenesis(t *testing.T, dir string, alloc ...config.Allocation) (string, types.Hash) {
	t.Helper()
	g := &config.Genesis{Name: "test", Alloc: alloc}
	path := filepath.Join(dir, "genesis.json")
	if err := g.Save(path); err != nil {
		t.Fatalf("save genesis: %v", err)
	}
	h, err := g.Hash()
	if err != nil {
		t.Fatalf("genesis hash: %v", err)
	}
	return path, h
}

func writeTxs(t *testing.T, path string, txs ...*tx.Transaction) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := tx.EncodeBatch(f, txs); err != nil {
		t.Fatalf("encode batch: %v", err)
	}
}

func readTxs(t *testing.T, path string) []*tx.Transaction {
	t.Helper()
	txs, err := readBatch(path)
	if err != nil {
		t.Fatalf("read batch: %v", err)
	}
	return txs
}

func TestRun_Version(t *testing.T) {
	out := cli(t, t.TempDir(), "--version")
	if !strings.Contains(out, config.Version) {
		t.Errorf("version output = %q", out)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"--datadir", t.TempDir(), "frobnicate"}, &out)
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRun_InitApplyShow(t *testing.T) {
	dir := t.TempDir()
	alice, _ := crypto.GenerateKey()
	bob, _ := crypto.GenerateKey()

	genesisPath, gh := writeGenesis(t, dir, config.Allocation{
		Owner: hex.EncodeToString(alice.PublicKey()),
		Value: decimal.NewFromInt(100),
	})

	out := cli(t, dir, "init", "--genesis", genesisPath)
	if !strings.Contains(out, "1 outputs, total 100") {
		t.Errorf("init output = %q", out)
	}

	// A second init without --force must refuse.
	var buf bytes.Buffer
	if err := run([]string{"--datadir", dir, "--store", "badger", "init", "--genesis", genesisPath}, &buf); err == nil {
		t.Fatal("expected init to refuse a non-empty pool")
	}

	// pay spends the genesis output; conflict claims it again and must lose.
	pay := tx.NewBuilder().
		AddInput(types.Outpoint{TxID: gh, Index: 0}).
		AddOutput(decimal.NewFromInt(60), bob.PublicKey()).
		AddOutput(decimal.NewFromInt(39), alice.PublicKey())
	if err := pay.SignAll(alice); err != nil {
		t.Fatal(err)
	}
	conflict := tx.NewBuilder().
		AddInput(types.Outpoint{TxID: gh, Index: 0}).
		AddOutput(decimal.NewFromInt(100), bob.PublicKey())
	if err := conflict.SignAll(alice); err != nil {
		t.Fatal(err)
	}
	payTx, conflictTx := pay.Build(), conflict.Build()

	batchPath := filepath.Join(dir, "batch.json")
	writeTxs(t, batchPath, payTx, conflictTx)

	// check evaluates each candidate alone, so both look valid.
	out = cli(t, dir, "check", "--batch", batchPath)
	if strings.Count(out, " valid") != 2 {
		t.Errorf("check output = %q", out)
	}
	out = cli(t, dir, "check", "--batch", batchPath, "--simulate")
	if !strings.Contains(out, "1 accepted, 1 rejected") {
		t.Errorf("simulate output = %q", out)
	}

	acceptedPath := filepath.Join(dir, "accepted.json")
	out = cli(t, dir, "apply", "--batch", batchPath, "--out", acceptedPath)
	if !strings.Contains(out, "accepted "+payTx.Hash().String()) {
		t.Errorf("apply output missing accepted tx: %q", out)
	}
	if !strings.Contains(out, "missing_utxo") {
		t.Errorf("apply output missing rejection reason: %q", out)
	}
	if !strings.Contains(out, "Epoch 1 sealed, fees 1") {
		t.Errorf("apply output = %q", out)
	}

	accepted := readTxs(t, acceptedPath)
	if len(accepted) != 1 || accepted[0].Hash() != payTx.Hash() {
		t.Fatalf("accepted file = %v", accepted)
	}

	out = cli(t, dir, "show")
	if !strings.Contains(out, "Outputs:    2") || !strings.Contains(out, "Total:      99") {
		t.Errorf("show output = %q", out)
	}
	if !strings.Contains(out, "Epoch:      1") {
		t.Errorf("show output missing epoch: %q", out)
	}

	out = cli(t, dir, "show", "--owner", hex.EncodeToString(bob.PublicKey()))
	if !strings.Contains(out, "Outputs:    1") || !strings.Contains(out, "Total:      60") {
		t.Errorf("show --owner output = %q", out)
	}

	// Replaying the same batch accepts nothing: the genesis output is gone.
	out = cli(t, dir, "apply", "--batch", batchPath)
	if !strings.Contains(out, "0 accepted, 2 rejected") {
		t.Errorf("replay output = %q", out)
	}
}

func TestRun_KeygenSign(t *testing.T) {
	dir := t.TempDir()
	pwFile := filepath.Join(dir, "password")
	if err := os.WriteFile(pwFile, []byte("hunter2\n"), 0600); err != nil {
		t.Fatal(err)
	}

	out := cli(t, dir, "keygen", "--name", "main", "--password-file", pwFile)
	if !strings.Contains(out, "Mnemonic") {
		t.Errorf("first keygen should print a mnemonic: %q", out)
	}
	owner := ownerFrom(t, out)

	out = cli(t, dir, "keygen", "--name", "main", "--password-file", pwFile)
	if strings.Contains(out, "Mnemonic") {
		t.Errorf("second keygen must reuse the wallet: %q", out)
	}
	change := ownerFrom(t, out)
	if change == owner {
		t.Fatal("keygen returned the same owner twice")
	}

	genesisPath, gh := writeGenesis(t, dir, config.Allocation{Owner: owner, Value: decimal.NewFromInt(50)})
	cli(t, dir, "init", "--genesis", genesisPath)

	changeBytes, _ := hex.DecodeString(change)
	first := tx.NewBuilder().
		AddInput(types.Outpoint{TxID: gh, Index: 0}).
		AddOutput(decimal.NewFromInt(50), changeBytes).
		Build()
	// second spends first's output, whose owner only appears in the file.
	second := tx.NewBuilder().
		AddInput(first.Outpoint(0)).
		AddOutput(decimal.NewFromInt(50), changeBytes).
		Build()

	unsigned := filepath.Join(dir, "unsigned.json")
	signed := filepath.Join(dir, "signed.json")
	writeTxs(t, unsigned, first, second)

	out = cli(t, dir, "sign", "--name", "main", "--tx", unsigned, "--out", signed, "--password-file", pwFile)
	if !strings.Contains(out, "Signed 2 inputs across 2 transactions") {
		t.Errorf("sign output = %q", out)
	}

	out = cli(t, dir, "apply", "--batch", signed)
	if !strings.Contains(out, "2 accepted, 0 rejected") {
		t.Errorf("apply output = %q", out)
	}
}

func TestRun_SignWrongPassword(t *testing.T) {
	dir := t.TempDir()
	pwFile := filepath.Join(dir, "password")
	badFile := filepath.Join(dir, "bad")
	os.WriteFile(pwFile, []byte("right"), 0600)
	os.WriteFile(badFile, []byte("wrong"), 0600)

	owner := ownerFrom(t, cli(t, dir, "keygen", "--name", "w", "--password-file", pwFile))
	genesisPath, gh := writeGenesis(t, dir, config.Allocation{Owner: owner, Value: decimal.NewFromInt(5)})
	cli(t, dir, "init", "--genesis", genesisPath)

	in := filepath.Join(dir, "in.json")
	out := filepath.Join(dir, "out.json")
	writeTxs(t, in, tx.NewBuilder().AddInput(types.Outpoint{TxID: gh}).Build())

	res := cli(t, dir, "sign", "--name", "w", "--tx", in, "--out", out, "--password-file", badFile)
	if !strings.Contains(res, "left unsigned") || !strings.Contains(res, "Signed 0 inputs") {
		t.Errorf("sign output = %q", res)
	}
	if txs := readTxs(t, out); len(txs[0].Inputs[0].Signature) != 0 {
		t.Error("input should stay unsigned")
	}
}

func ownerFrom(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Owner ") {
			if i := strings.LastIndex(line, " "); i >= 0 {
				return line[i+1:]
			}
		}
	}
	t.Fatalf("no owner in output %q", out)
	return ""
}

func TestRun_KeygenAllocAndList(t *testing.T) {
	dir := t.TempDir()
	pwFile := filepath.Join(dir, "password")
	if err := os.WriteFile(pwFile, []byte("pw"), 0600); err != nil {
		t.Fatal(err)
	}
	genesisPath := filepath.Join(dir, "alloc.json")

	first := ownerFrom(t, cli(t, dir, "keygen", "--name", "w", "--password-file", pwFile,
		"--alloc", genesisPath, "--value", "40"))
	second := ownerFrom(t, cli(t, dir, "keygen", "--name", "w", "--password-file", pwFile,
		"--alloc", genesisPath, "--value", "2.5"))

	g, err := config.LoadGenesis(genesisPath)
	if err != nil {
		t.Fatalf("LoadGenesis: %v", err)
	}
	if len(g.Alloc) != 2 || g.Alloc[0].Owner != first || g.Alloc[1].Owner != second {
		t.Fatalf("alloc = %+v", g.Alloc)
	}

	out := cli(t, dir, "keygen", "--list")
	if !strings.Contains(out, "w (2 owners)") || !strings.Contains(out, first) || !strings.Contains(out, second) {
		t.Errorf("list output = %q", out)
	}

	out = cli(t, dir, "init", "--genesis", genesisPath)
	if !strings.Contains(out, "2 outputs, total 42.5") {
		t.Errorf("init output = %q", out)
	}
}
