package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/balancemap"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/transport"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/util"
)

const (
	envServerURL  = "DISTRIBUTOR_URL"
	envPrivateKey = "DISTRIBUTOR_CLIENT_PRIVATE_KEY"
)

func main() {
	snapshotFlag := &cli.StringFlag{
		Name:     "snapshot",
		Aliases:  []string{"s"},
		Usage:    "Snapshot file produced by merkle-builder",
		Required: true,
	}
	accountFlag := &cli.StringFlag{
		Name:     "account",
		Aliases:  []string{"a"},
		Usage:    "Account address",
		Required: true,
	}

	app := &cli.App{
		Name:  "distributor-client",
		Usage: "Claim from and administer a distributor server",
		Description: `A client for a distributor server.

Claims and owner operations are signed with --private-key; the signer is the
account that claims or acts as owner. Claim commands look up the signer's
index, amount and proof in the snapshot file.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Usage:   "Distributor server URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{envServerURL},
			},
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "ECDSA private key (hex) used to sign requests",
				EnvVars: []string{envPrivateKey},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Show registry state",
				Action: infoCommand,
			},
			{
				Name:   "account",
				Usage:  "Show block status and claimed amount of an account",
				Flags:  []cli.Flag{accountFlag},
				Action: accountCommand,
			},
			{
				Name:   "claimable",
				Usage:  "Show how much an account can still claim",
				Flags:  []cli.Flag{snapshotFlag, accountFlag},
				Action: claimableCommand,
			},
			{
				Name:  "claim",
				Usage: "Claim part of the signer's entitlement",
				Flags: []cli.Flag{
					snapshotFlag,
					&cli.StringFlag{
						Name:     "amount",
						Usage:    "Amount to claim (hex or decimal)",
						Required: true,
					},
				},
				Action: claimCommand,
			},
			{
				Name:   "claim-all",
				Usage:  "Claim the signer's whole entitlement",
				Flags:  []cli.Flag{snapshotFlag},
				Action: claimAllCommand,
			},
			{
				Name:  "events",
				Usage: "Print the registry event log",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "after", Usage: "Only events after this sequence number"},
					&cli.IntFlag{Name: "limit", Usage: "Page size", Value: 100},
				},
				Action: eventsCommand,
			},
			{
				Name:  "admin",
				Usage: "Owner operations",
				Subcommands: []*cli.Command{
					{
						Name:  "set-root",
						Usage: "Replace the Merkle root with the root of a snapshot",
						Flags: []cli.Flag{snapshotFlag},
						Action: func(c *cli.Context) error {
							snapshot, err := readSnapshot(c.String("snapshot"))
							if err != nil {
								return err
							}
							client, err := newClient(c, true)
							if err != nil {
								return err
							}
							return client.UpdateMerkleRoot(c.Context, common.Hash(snapshot.Root))
						},
					},
					{
						Name:  "blacklist",
						Usage: "Block an account from claiming",
						Flags: []cli.Flag{accountFlag},
						Action: func(c *cli.Context) error {
							return withAccount(c, func(client *transport.Client, account common.Address) error {
								return client.Blacklist(c.Context, account)
							})
						},
					},
					{
						Name:  "whitelist",
						Usage: "Unblock an account",
						Flags: []cli.Flag{accountFlag},
						Action: func(c *cli.Context) error {
							return withAccount(c, func(client *transport.Client, account common.Address) error {
								return client.Whitelist(c.Context, account)
							})
						},
					},
					{
						Name:  "transfer-ownership",
						Usage: "Hand the registry to a new owner",
						Flags: []cli.Flag{accountFlag},
						Action: func(c *cli.Context) error {
							return withAccount(c, func(client *transport.Client, account common.Address) error {
								return client.TransferOwnership(c.Context, account)
							})
						},
					},
					{
						Name:  "pause",
						Usage: "Stop all claims",
						Action: func(c *cli.Context) error {
							client, err := newClient(c, true)
							if err != nil {
								return err
							}
							return client.Pause(c.Context)
						},
					},
					{
						Name:  "unpause",
						Usage: "Resume claims",
						Action: func(c *cli.Context) error {
							client, err := newClient(c, true)
							if err != nil {
								return err
							}
							return client.Unpause(c.Context)
						},
					},
					{
						Name:  "withdraw",
						Usage: "Send tokens from the registry to the owner",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "amount", Usage: "Amount (hex or decimal)", Required: true},
						},
						Action: func(c *cli.Context) error {
							amount, err := balancemap.ParseAmount(c.String("amount"))
							if err != nil {
								return err
							}
							client, err := newClient(c, true)
							if err != nil {
								return err
							}
							return client.WithdrawToken(c.Context, amount)
						},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newClient creates a transport client from CLI context
func newClient(c *cli.Context, needsKey bool) (*transport.Client, error) {
	var key *ecdsa.PrivateKey
	if raw := c.String("private-key"); raw != "" {
		k, err := util.StringToECDSAPrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		key = k
	} else if needsKey {
		return nil, fmt.Errorf("--private-key is required for this command")
	}
	return transport.NewClient(c.String("url"), key, nil), nil
}

func parseAccount(raw string) (common.Address, error) {
	account, err := util.ParseAddress(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %s: %v", balancemap.ErrInvalidAddress, raw, err)
	}
	return account, nil
}

func withAccount(c *cli.Context, fn func(*transport.Client, common.Address) error) error {
	account, err := parseAccount(c.String("account"))
	if err != nil {
		return err
	}
	client, err := newClient(c, true)
	if err != nil {
		return err
	}
	return fn(client, account)
}

func readSnapshot(path string) (*balancemap.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return balancemap.ParseSnapshot(data)
}

func recordFor(path string, account common.Address) (*balancemap.ClaimRecord, error) {
	snapshot, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	record, ok := snapshot.Claims[account]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not in %s", balancemap.ErrUnknownAccount, account.Hex(), path)
	}
	return record, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func infoCommand(c *cli.Context) error {
	client, err := newClient(c, false)
	if err != nil {
		return err
	}
	info, err := client.Info(c.Context)
	if err != nil {
		return err
	}
	return printJSON(info)
}

func accountCommand(c *cli.Context) error {
	account, err := parseAccount(c.String("account"))
	if err != nil {
		return err
	}
	client, err := newClient(c, false)
	if err != nil {
		return err
	}
	resp, err := client.Account(c.Context, account)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func claimableCommand(c *cli.Context) error {
	account, err := parseAccount(c.String("account"))
	if err != nil {
		return err
	}
	record, err := recordFor(c.String("snapshot"), account)
	if err != nil {
		return err
	}
	client, err := newClient(c, false)
	if err != nil {
		return err
	}
	amount, err := client.Claimable(c.Context, account, record)
	if err != nil {
		return err
	}
	fmt.Printf("%s can claim %s of %s\n", account.Hex(), amount.Dec(), record.Amount.Dec())
	return nil
}

func claimCommand(c *cli.Context) error {
	amount, err := balancemap.ParseAmount(c.String("amount"))
	if err != nil {
		return err
	}
	client, err := newClient(c, true)
	if err != nil {
		return err
	}
	record, err := recordFor(c.String("snapshot"), client.Address())
	if err != nil {
		return err
	}
	claimed, err := client.Claim(c.Context, record, amount)
	if err != nil {
		return err
	}
	fmt.Printf("Claimed %s, %s of %s claimed in total\n", amount.Dec(), claimed.Dec(), record.Amount.Dec())
	return nil
}

func claimAllCommand(c *cli.Context) error {
	client, err := newClient(c, true)
	if err != nil {
		return err
	}
	record, err := recordFor(c.String("snapshot"), client.Address())
	if err != nil {
		return err
	}
	claimed, err := client.ClaimAll(c.Context, record)
	if err != nil {
		return err
	}
	fmt.Printf("Claimed %s\n", claimed.Dec())
	return nil
}

func eventsCommand(c *cli.Context) error {
	client, err := newClient(c, false)
	if err != nil {
		return err
	}
	page, err := client.Events(c.Context, c.Uint64("after"), c.Int("limit"))
	if err != nil {
		return err
	}
	return printJSON(page)
}
