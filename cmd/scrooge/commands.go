package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Klingon-tech/scrooge-ledger/config"
	"github.com/Klingon-tech/scrooge-ledger/internal/epoch"
	"github.com/Klingon-tech/scrooge-ledger/internal/ledger"
	"github.com/Klingon-tech/scrooge-ledger/internal/log"
	"github.com/Klingon-tech/scrooge-ledger/internal/utxo"
	"github.com/Klingon-tech/scrooge-ledger/internal/wallet"
	"github.com/Klingon-tech/scrooge-ledger/pkg/crypto"
	"github.com/Klingon-tech/scrooge-ledger/pkg/tx"
	"github.com/Klingon-tech/scrooge-ledger/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// ── init ────────────────────────────────────────────────────────────────

func cmdInit(cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	genesisPath := fs.String("genesis", "", "Genesis allocation file (JSON)")
	force := fs.Bool("force", false, "Replace an existing pool")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *genesisPath == "" {
		return errors.New("usage: scrooge init --genesis <file>")
	}

	g, err := config.LoadGenesis(*genesisPath)
	if err != nil {
		return err
	}
	pool, err := utxo.GenesisPool(g)
	if err != nil {
		return err
	}

	st, err := openState(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	existing, err := st.store.LoadPool()
	if err != nil {
		return err
	}
	if existing.Len() > 0 && !*force {
		return fmt.Errorf("pool already holds %d outputs (use --force to replace)", existing.Len())
	}

	if err := st.commit(pool, 0); err != nil {
		return fmt.Errorf("save pool: %w", err)
	}
	log.CLI.Info().Str("genesis", g.Name).Int("outputs", pool.Len()).Msg("Pool initialized")

	fmt.Fprintf(stdout, "Initialized %q: %d outputs, total %s\n", g.Name, pool.Len(), pool.TotalValue())
	fmt.Fprintf(stdout, "Commitment: %s\n", pool.Commitment())
	return nil
}

// ── apply ───────────────────────────────────────────────────────────────

func cmdApply(cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	batchPath := fs.String("batch", "", "Candidate transactions (JSON array)")
	outPath := fs.String("out", "", "Write accepted transactions here")
	metricsPath := fs.String("metrics-out", "", "Write prometheus metrics in text format here")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *batchPath == "" {
		return errors.New("usage: scrooge apply --batch <file> [--out <file>]")
	}

	candidates, err := readBatch(*batchPath)
	if err != nil {
		return err
	}

	st, err := openState(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	pool, err := st.store.LoadPool()
	if err != nil {
		return err
	}
	n, err := st.epoch()
	if err != nil {
		return err
	}

	done := log.Benchmark("apply")
	h := ledger.New(pool, crypto.SchnorrVerifier{}, ledger.WithMetrics(cfg.Ledger.Metrics))
	c := epoch.New(h, cfg.Ledger.MaxBatch)
	for i, t := range candidates {
		if _, err := c.Submit(t); err != nil {
			fmt.Fprintf(stdout, "skipped %d: %v\n", i, err)
		}
	}
	report := c.Seal()
	done()

	if err := st.commit(c.Snapshot(), n+1); err != nil {
		return fmt.Errorf("save pool: %w", err)
	}

	printReport(stdout, report)
	fmt.Fprintf(stdout, "Epoch %d sealed, fees %s\n", n+1, report.Fees)

	if *outPath != "" {
		if err := writeBatch(*outPath, report.Accepted); err != nil {
			return err
		}
	}
	if *metricsPath != "" && cfg.Ledger.Metrics {
		if err := prometheus.WriteToTextfile(*metricsPath, prometheus.DefaultGatherer); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// ── check ───────────────────────────────────────────────────────────────

func cmdCheck(cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	batchPath := fs.String("batch", "", "Candidate transactions (JSON array)")
	simulate := fs.Bool("simulate", false, "Evaluate as one batch, so earlier candidates affect later ones")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *batchPath == "" {
		return errors.New("usage: scrooge check --batch <file> [--simulate]")
	}

	candidates, err := readBatch(*batchPath)
	if err != nil {
		return err
	}

	st, err := openState(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	pool, err := st.store.LoadPool()
	if err != nil {
		return err
	}

	// The handler works on its own copy; nothing is written back.
	h := ledger.New(pool, crypto.SchnorrVerifier{}, ledger.WithMetrics(false))
	if *simulate {
		printReport(stdout, h.HandleTxsReport(candidates))
		return nil
	}
	for i, t := range candidates {
		if err := h.CheckTx(t); err != nil {
			fmt.Fprintf(stdout, "%d %s invalid (%s): %v\n", i, t.Hash(), ledger.ReasonOf(err), err)
			continue
		}
		fmt.Fprintf(stdout, "%d %s valid\n", i, t.Hash())
	}
	return nil
}

// ── show ────────────────────────────────────────────────────────────────

func cmdShow(cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	ownerHex := fs.String("owner", "", "Only outputs owned by this key (hex)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := openState(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if *ownerHex != "" {
		owner, err := hex.DecodeString(*ownerHex)
		if err != nil {
			return fmt.Errorf("owner: %w", err)
		}
		owned, err := st.store.GetByOwner(owner)
		if err != nil {
			return err
		}
		pool := utxo.NewPool()
		for _, u := range owned {
			pool.Add(u.Outpoint, u.Output)
		}
		printPool(stdout, pool)
		return nil
	}

	pool, err := st.store.LoadPool()
	if err != nil {
		return err
	}
	n, err := st.epoch()
	if err != nil {
		return err
	}
	printPool(stdout, pool)
	fmt.Fprintf(stdout, "Epoch:      %d\n", n)
	fmt.Fprintf(stdout, "Commitment: %s\n", pool.Commitment())
	return nil
}

// ── keygen ──────────────────────────────────────────────────────────────

func cmdKeygen(cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	name := fs.String("name", "", "Wallet name")
	passwordFile := fs.String("password-file", "", "Read the password from a file instead of the terminal")
	list := fs.Bool("list", false, "List wallets and their owner keys")
	allocPath := fs.String("alloc", "", "Add the new owner to this genesis allocation file")
	allocValue := fs.String("value", "0", "Value of the genesis allocation (with --alloc)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		return err
	}
	if *list {
		return listWallets(ks, stdout)
	}
	if *name == "" {
		return errors.New("usage: scrooge keygen --name <wallet> [--alloc <genesis> --value <n>] | --list")
	}

	var value decimal.Decimal
	if *allocPath != "" {
		if value, err = decimal.NewFromString(*allocValue); err != nil {
			return fmt.Errorf("value: %w", err)
		}
	}

	names, err := ks.List()
	if err != nil {
		return err
	}
	exists := false
	for _, n := range names {
		exists = exists || n == *name
	}

	password, err := obtainPassword(*passwordFile, !exists)
	if err != nil {
		return err
	}

	if !exists {
		mnemonic, err := wallet.GenerateMnemonic()
		if err != nil {
			return err
		}
		seed, err := wallet.SeedFromMnemonic(mnemonic, "")
		if err != nil {
			return err
		}
		err = ks.Create(*name, seed, password, wallet.DefaultParams())
		for i := range seed {
			seed[i] = 0
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Mnemonic (write this down!):")
		fmt.Fprintf(stdout, "  %s\n\n", mnemonic)
	}

	_, entry, err := ks.NewOwner(*name, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Owner %d: %s\n", entry.Index, entry.Owner)

	if *allocPath != "" {
		if err := addAllocation(*allocPath, string(cfg.Network), entry.Owner, value); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Allocated %s in %s\n", value, *allocPath)
	}
	return nil
}

func listWallets(ks *wallet.Keystore, stdout io.Writer) error {
	names, err := ks.List()
	if err != nil {
		return err
	}
	for _, n := range names {
		owners, err := ks.Owners(n)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s (%d owners)\n", n, len(owners))
		for _, o := range owners {
			fmt.Fprintf(stdout, "  %d/%d  %s\n", o.Account, o.Index, o.Owner)
		}
	}
	return nil
}

// addAllocation appends an allocation to the genesis file at path,
// creating the file when it does not exist yet.
func addAllocation(path, name, owner string, value decimal.Decimal) error {
	g, err := config.LoadGenesis(path)
	if errors.Is(err, os.ErrNotExist) {
		g, err = &config.Genesis{Name: name}, nil
	}
	if err != nil {
		return err
	}
	g.Alloc = append(g.Alloc, config.Allocation{Owner: owner, Value: value})
	if err := g.Validate(); err != nil {
		return fmt.Errorf("invalid genesis: %w", err)
	}
	return g.Save(path)
}

// ── sign ────────────────────────────────────────────────────────────────

func cmdSign(cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	name := fs.String("name", "", "Wallet name")
	inPath := fs.String("tx", "", "Transactions to sign (JSON array)")
	outPath := fs.String("out", "", "Write signed transactions here")
	passwordFile := fs.String("password-file", "", "Read the password from a file instead of the terminal")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *inPath == "" || *outPath == "" {
		return errors.New("usage: scrooge sign --name <wallet> --tx <file> --out <file>")
	}

	batch, err := readBatch(*inPath)
	if err != nil {
		return err
	}

	st, err := openState(cfg)
	if err != nil {
		return err
	}
	pool, err := st.store.LoadPool()
	st.Close()
	if err != nil {
		return err
	}

	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		return err
	}
	password, err := obtainPassword(*passwordFile, false)
	if err != nil {
		return err
	}

	// Outputs of earlier transactions in the file may be spent by later
	// ones, so owners are resolved against the pool plus those outputs.
	owners := make(map[types.Outpoint][]byte)
	signers := make(map[string]crypto.Signer)
	signed := 0
	for ti, t := range batch {
		for i, in := range t.Inputs {
			owner, ok := owners[in.PrevOut]
			if !ok {
				out, err := pool.Get(in.PrevOut)
				if err != nil {
					fmt.Fprintf(stdout, "tx %d input %d: unknown outpoint %s, left unsigned\n", ti, i, in.PrevOut)
					continue
				}
				owner = out.Owner
			}
			signer, ok := signers[string(owner)]
			if !ok {
				s, err := ks.Signer(*name, password, owner)
				if err != nil {
					fmt.Fprintf(stdout, "tx %d input %d: %v, left unsigned\n", ti, i, err)
					continue
				}
				signers[string(owner)] = s
				signer = s
			}
			sig, err := signer.SignMessage(t.AuthorizePayload(i))
			if err != nil {
				return fmt.Errorf("tx %d input %d: %w", ti, i, err)
			}
			t.Inputs[i].Signature = sig
			signed++
		}
		txid := t.Hash()
		for j, out := range t.Outputs {
			owners[types.Outpoint{TxID: txid, Index: uint32(j)}] = out.Owner
		}
	}

	if err := writeBatch(*outPath, batch); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Signed %d inputs across %d transactions\n", signed, len(batch))
	return nil
}

// ── helpers ─────────────────────────────────────────────────────────────

func readBatch(path string) ([]*tx.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch: %w", err)
	}
	defer f.Close()
	return tx.DecodeBatch(f)
}

func writeBatch(path string, batch []*tx.Transaction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := tx.EncodeBatch(f, batch); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func printReport(w io.Writer, report ledger.BatchReport) {
	for _, t := range report.Accepted {
		fmt.Fprintf(w, "accepted %s\n", t.Hash())
	}
	for _, r := range report.Rejected {
		fmt.Fprintf(w, "rejected %d %s (%s)\n", r.Index, r.TxID, r.Reason)
	}
	fmt.Fprintf(w, "%d accepted, %d rejected\n", len(report.Accepted), len(report.Rejected))
}

func printPool(w io.Writer, pool *utxo.Pool) {
	pool.ForEach(func(u utxo.UTXO) error {
		fmt.Fprintf(w, "%s  %s  %s\n", u.Outpoint, u.Output.Value, hex.EncodeToString(u.Output.Owner))
		return nil
	})
	fmt.Fprintf(w, "Outputs:    %d\n", pool.Len())
	fmt.Fprintf(w, "Total:      %s\n", pool.TotalValue())
}
