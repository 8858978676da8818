package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/balancemap"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/logger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/util"
)

func main() {
	storeFlag := &cli.StringFlag{
		Name:     "store",
		Usage:    "Directory of the LevelDB balance store",
		Required: true,
	}
	outputFlag := &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Write the snapshot to this file instead of stdout",
	}

	app := &cli.App{
		Name:  "merkle-builder",
		Usage: "Build Merkle distribution snapshots from account balances",
		Description: `Turns a mapping of account to entitlement into a Merkle root and per account proofs.

Input files are either a JSON object of account to amount:
  {"0xabc...": "1000", "0xdef...": "0x2ee"}
or a list of records with optional comma separated reasons:
  [{"address": "0xabc...", "earnings": "0x3e8", "reasons": "socks,lp"}]

add, update and remove operate on a balance store created by generate --store.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Build a snapshot from a balances file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "Balances file",
						Required: true,
					},
					outputFlag,
					&cli.StringFlag{
						Name:  "store",
						Usage: "Also persist the balances to this LevelDB directory",
					},
				},
				Action: generateCommand,
			},
			{
				Name:  "add",
				Usage: "Add amounts to stored balances, creating accounts as needed",
				Flags: []cli.Flag{
					storeFlag,
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "File of amounts to add",
						Required: true,
					},
					outputFlag,
				},
				Action: func(c *cli.Context) error {
					return mutateCommand(c, func(bm *balancemap.BalanceMap, amounts map[common.Address]*uint256.Int) (*balancemap.Snapshot, error) {
						return bm.Add(amounts)
					})
				},
			},
			{
				Name:  "update",
				Usage: "Overwrite stored balances of existing accounts",
				Flags: []cli.Flag{
					storeFlag,
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "File of new amounts",
						Required: true,
					},
					outputFlag,
				},
				Action: func(c *cli.Context) error {
					return mutateCommand(c, func(bm *balancemap.BalanceMap, amounts map[common.Address]*uint256.Int) (*balancemap.Snapshot, error) {
						return bm.Update(amounts)
					})
				},
			},
			{
				Name:  "remove",
				Usage: "Remove accounts from the stored balances",
				Flags: []cli.Flag{
					storeFlag,
					&cli.StringSliceFlag{
						Name:     "account",
						Aliases:  []string{"a"},
						Usage:    "Account to remove, repeatable",
						Required: true,
					},
					outputFlag,
				},
				Action: removeCommand,
			},
			{
				Name:  "verify",
				Usage: "Check every proof of a snapshot file against its root",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "Snapshot file",
						Required: true,
					},
				},
				Action: verifyCommand,
			},
			{
				Name:  "proof",
				Usage: "Print the claim record of one account from the balance store",
				Flags: []cli.Flag{
					storeFlag,
					&cli.StringFlag{
						Name:     "account",
						Aliases:  []string{"a"},
						Usage:    "Account to look up",
						Required: true,
					},
				},
				Action: proofCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

func readEntries(path string) ([]balancemap.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	entries, err := balancemap.ParseInput(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return entries, nil
}

// amountsOf keys entries by account, rejecting repeated accounts.
func amountsOf(entries []balancemap.Entry) (map[common.Address]*uint256.Int, error) {
	amounts := make(map[common.Address]*uint256.Int, len(entries))
	for _, e := range entries {
		if _, dup := amounts[e.Account]; dup {
			return nil, fmt.Errorf("%w: %s", balancemap.ErrDuplicateAccount, e.Account.Hex())
		}
		amounts[e.Account] = e.Amount
	}
	return amounts, nil
}

func writeSnapshot(path string, snapshot *balancemap.Snapshot) error {
	data, err := json.MarshalIndent(snapshot.Info(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot to %s: %w", path, err)
	}
	return nil
}

func generateCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	entries, err := readEntries(c.String("input"))
	if err != nil {
		return err
	}
	bm, err := balancemap.New(entries)
	if err != nil {
		return fmt.Errorf("failed to build balance map: %w", err)
	}
	snapshot := bm.Snapshot()

	if dir := c.String("store"); dir != "" {
		store, err := balancemap.OpenStore(dir)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		if err := store.Save(bm); err != nil {
			return err
		}
	}

	l.Sugar().Infow("Generated snapshot",
		"accounts", bm.Len(),
		"root", hexutil.Encode(snapshot.Root[:]),
		"total", snapshot.Total.Dec(),
	)
	return writeSnapshot(c.String("output"), snapshot)
}

// mutateCommand loads the store, applies op to the amounts in --input and
// saves the result.
func mutateCommand(c *cli.Context, op func(*balancemap.BalanceMap, map[common.Address]*uint256.Int) (*balancemap.Snapshot, error)) error {
	entries, err := readEntries(c.String("input"))
	if err != nil {
		return err
	}
	amounts, err := amountsOf(entries)
	if err != nil {
		return err
	}
	return withStore(c, func(bm *balancemap.BalanceMap) (*balancemap.Snapshot, error) {
		return op(bm, amounts)
	})
}

func removeCommand(c *cli.Context) error {
	raw := c.StringSlice("account")
	if invalid := util.Filter(raw, func(s string) bool {
		_, err := util.ParseAddress(s)
		return err != nil
	}); len(invalid) > 0 {
		return fmt.Errorf("%w: %s", balancemap.ErrInvalidAddress, strings.Join(invalid, ", "))
	}
	accounts := util.Map(raw, func(s string, _ uint64) common.Address {
		return common.HexToAddress(s)
	})
	return withStore(c, func(bm *balancemap.BalanceMap) (*balancemap.Snapshot, error) {
		return bm.Remove(accounts)
	})
}

func withStore(c *cli.Context, mutate func(*balancemap.BalanceMap) (*balancemap.Snapshot, error)) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	store, err := balancemap.OpenStore(c.String("store"))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	bm, err := store.Load()
	if err != nil {
		return err
	}
	previous, _, err := store.LastRoot()
	if err != nil {
		return err
	}

	snapshot, err := mutate(bm)
	if err != nil {
		return fmt.Errorf("%s failed: %w", c.Command.Name, err)
	}
	if err := store.Save(bm); err != nil {
		return err
	}

	l.Sugar().Infow("Updated balance store",
		"command", c.Command.Name,
		"accounts", bm.Len(),
		"previousRoot", hexutil.Encode(previous[:]),
		"root", hexutil.Encode(snapshot.Root[:]),
		"total", snapshot.Total.Dec(),
	)
	return writeSnapshot(c.String("output"), snapshot)
}

func verifyCommand(c *cli.Context) error {
	path := c.String("input")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	snapshot, err := balancemap.ParseSnapshot(data)
	if err != nil {
		return err
	}
	if err := balancemap.Verify(snapshot); err != nil {
		return err
	}

	fmt.Printf("Snapshot OK\n")
	fmt.Printf("  root:     %s\n", hexutil.Encode(snapshot.Root[:]))
	fmt.Printf("  accounts: %d\n", len(snapshot.Claims))
	fmt.Printf("  total:    %s\n", snapshot.Total.Dec())
	return nil
}

func proofCommand(c *cli.Context) error {
	raw := c.String("account")
	account, err := util.ParseAddress(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", balancemap.ErrInvalidAddress, raw, err)
	}

	store, err := balancemap.OpenStore(c.String("store"))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	bm, err := store.Load()
	if err != nil {
		return err
	}
	info := bm.Snapshot().Info()
	claim, ok := info.Claims[account.Hex()]
	if !ok {
		return fmt.Errorf("%w: %s", balancemap.ErrUnknownAccount, account.Hex())
	}

	out, err := json.MarshalIndent(map[string]any{
		"account":    account.Hex(),
		"merkleRoot": info.MerkleRoot,
		"claim":      claim,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
