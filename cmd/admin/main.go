package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/tee-agent-registry/api/clients"
	"github.com/ruteri/tee-agent-registry/cmd/flags"
	"github.com/ruteri/tee-agent-registry/cryptoutils"
	"github.com/ruteri/tee-agent-registry/interfaces"
	"github.com/urfave/cli/v2"
)

var flagAccount *cli.StringFlag = &cli.StringFlag{
	Name:     "account",
	Required: true,
	Usage:    "account address (0x-prefixed)",
}
var flagMeasurementsFile *cli.StringFlag = &cli.StringFlag{
	Name:     "measurements-file",
	Required: true,
	Usage:    "JSON file with the measurement bundle (mrtd, rtmr0, rtmr1, rtmr2, key_provider_event_digest, app_compose_hash_payload)",
}
var flagPlatformIDs *cli.StringSliceFlag = &cli.StringSliceFlag{
	Name:     "platform-id",
	Required: true,
	Usage:    "hex platform id (PPID); repeatable",
}
var flagEndpoint *cli.StringFlag = &cli.StringFlag{
	Name:     "endpoint",
	Required: true,
	Usage:    "signer endpoint",
}
var flagDuration *cli.DurationFlag = &cli.DurationFlag{
	Name:     "duration",
	Required: true,
	Usage:    "expiration duration, e.g. 168h",
}
var flagOffset *cli.IntFlag = &cli.IntFlag{
	Name:  "offset",
	Usage: "pagination offset",
}
var flagLimit *cli.IntFlag = &cli.IntFlag{
	Name:  "limit",
	Usage: "pagination limit, 0 for all",
}

func ownerClient(cCtx *cli.Context) (*clients.RegistryClient, error) {
	key, err := flags.PrivateKey(cCtx)
	if err != nil {
		return nil, err
	}
	return clients.NewRegistryClient(cCtx.String(flags.RegistryAddrFlag.Name), key), nil
}

func readClient(cCtx *cli.Context) *clients.RegistryClient {
	return clients.NewRegistryClient(cCtx.String(flags.RegistryAddrFlag.Name), nil)
}

func accountArg(cCtx *cli.Context) (interfaces.AccountID, error) {
	return interfaces.NewAccountIDFromHex(cCtx.String(flagAccount.Name))
}

func loadMeasurements(cCtx *cli.Context) (interfaces.MeasurementBundle, error) {
	data, err := os.ReadFile(cCtx.String(flagMeasurementsFile.Name))
	if err != nil {
		return interfaces.MeasurementBundle{}, err
	}
	var bundle interfaces.MeasurementBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return interfaces.MeasurementBundle{}, err
	}
	return bundle, nil
}

func platformIDsArg(cCtx *cli.Context) ([]interfaces.PlatformID, error) {
	var ids []interfaces.PlatformID
	for _, s := range cCtx.StringSlice(flagPlatformIDs.Name) {
		id, err := interfaces.NewPlatformIDFromHex(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// ownerCommand wraps an owner call that only needs the signed client.
func ownerCommand(name, usage string, cmdFlags []cli.Flag, fn func(cCtx *cli.Context, c *clients.RegistryClient) error) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: append([]cli.Flag{flags.PrivateKeyFlag}, cmdFlags...),
		Action: func(cCtx *cli.Context) error {
			c, err := ownerClient(cCtx)
			if err != nil {
				return err
			}
			if err := fn(cCtx, c); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func main() {
	app := &cli.App{
		Name:  "registry admin",
		Usage: "Owner tooling for the TEE agent registry",
		Flags: []cli.Flag{
			flags.RegistryAddrFlag,
		},
		DefaultCommand: "info",
		Commands: []*cli.Command{
			{
				Name:  "generate-key",
				Usage: "generate a secp256k1 key and print it with its account",
				Action: func(cCtx *cli.Context) error {
					key, err := crypto.GenerateKey()
					if err != nil {
						return fmt.Errorf("failed to generate key: %w", err)
					}
					return printJSON(map[string]string{
						"privkey": hex.EncodeToString(crypto.FromECDSA(key)),
						"account": cryptoutils.AccountFromKey(key).String(),
					})
				},
			},
			{
				Name:  "info",
				Usage: "print the registry configuration",
				Action: func(cCtx *cli.Context) error {
					info, err := readClient(cCtx).ContractInfo(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(info)
				},
			},
			ownerCommand("approve-measurements", "approve a measurement bundle", []cli.Flag{flagMeasurementsFile},
				func(cCtx *cli.Context, c *clients.RegistryClient) error {
					bundle, err := loadMeasurements(cCtx)
					if err != nil {
						return err
					}
					return c.ApproveMeasurements(cCtx.Context, bundle)
				}),
			ownerCommand("remove-measurements", "remove an approved measurement bundle", []cli.Flag{flagMeasurementsFile},
				func(cCtx *cli.Context, c *clients.RegistryClient) error {
					bundle, err := loadMeasurements(cCtx)
					if err != nil {
						return err
					}
					return c.RemoveMeasurements(cCtx.Context, bundle)
				}),
			ownerCommand("approve-platform-ids", "approve platform ids", []cli.Flag{flagPlatformIDs},
				func(cCtx *cli.Context, c *clients.RegistryClient) error {
					ids, err := platformIDsArg(cCtx)
					if err != nil {
						return err
					}
					return c.ApprovePlatformIDs(cCtx.Context, ids)
				}),
			ownerCommand("remove-platform-ids", "remove approved platform ids; fails without changes if any is not approved", []cli.Flag{flagPlatformIDs},
				func(cCtx *cli.Context, c *clients.RegistryClient) error {
					ids, err := platformIDsArg(cCtx)
					if err != nil {
						return err
					}
					return c.RemovePlatformIDs(cCtx.Context, ids)
				}),
			ownerCommand("remove-agent", "delete an agent record", []cli.Flag{flagAccount},
				func(cCtx *cli.Context, c *clients.RegistryClient) error {
					account, err := accountArg(cCtx)
					if err != nil {
						return err
					}
					return c.RemoveAgent(cCtx.Context, account)
				}),
			ownerCommand("update-owner", "transfer ownership", []cli.Flag{flagAccount},
				func(cCtx *cli.Context, c *clients.RegistryClient) error {
					account, err := accountArg(cCtx)
					if err != nil {
						return err
					}
					return c.UpdateOwner(cCtx.Context, account)
				}),
			ownerCommand("update-signer-endpoint", "change the signer endpoint", []cli.Flag{flagEndpoint},
				func(cCtx *cli.Context, c *clients.RegistryClient) error {
					return c.UpdateSignerEndpoint(cCtx.Context, cCtx.String(flagEndpoint.Name))
				}),
			ownerCommand("update-expiration-duration", "change the validity window of future registrations", []cli.Flag{flagDuration},
				func(cCtx *cli.Context, c *clients.RegistryClient) error {
					return c.UpdateExpirationDuration(cCtx.Context, cCtx.Duration(flagDuration.Name))
				}),
			ownerCommand("whitelist-add", "whitelist an account for local mode", []cli.Flag{flagAccount},
				func(cCtx *cli.Context, c *clients.RegistryClient) error {
					account, err := accountArg(cCtx)
					if err != nil {
						return err
					}
					return c.WhitelistAgentForLocal(cCtx.Context, account)
				}),
			ownerCommand("whitelist-remove", "remove an account from the local mode whitelist", []cli.Flag{flagAccount},
				func(cCtx *cli.Context, c *clients.RegistryClient) error {
					account, err := accountArg(cCtx)
					if err != nil {
						return err
					}
					return c.RemoveAgentFromWhitelistForLocal(cCtx.Context, account)
				}),
			{
				Name:  "list-agents",
				Flags: []cli.Flag{flagOffset, flagLimit},
				Action: func(cCtx *cli.Context) error {
					views, err := readClient(cCtx).ListAgents(cCtx.Context, cCtx.Int(flagOffset.Name), cCtx.Int(flagLimit.Name))
					if err != nil {
						return err
					}
					return printJSON(views)
				},
			},
			{
				Name:  "list-measurements",
				Flags: []cli.Flag{flagOffset, flagLimit},
				Action: func(cCtx *cli.Context) error {
					bundles, err := readClient(cCtx).ListMeasurements(cCtx.Context, cCtx.Int(flagOffset.Name), cCtx.Int(flagLimit.Name))
					if err != nil {
						return err
					}
					return printJSON(bundles)
				},
			},
			{
				Name:  "list-platform-ids",
				Flags: []cli.Flag{flagOffset, flagLimit},
				Action: func(cCtx *cli.Context) error {
					ids, err := readClient(cCtx).ListPlatformIDs(cCtx.Context, cCtx.Int(flagOffset.Name), cCtx.Int(flagLimit.Name))
					if err != nil {
						return err
					}
					return printJSON(ids)
				},
			},
			{
				Name: "list-whitelist",
				Action: func(cCtx *cli.Context) error {
					accounts, err := readClient(cCtx).ListWhitelistedAgentsForLocal(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(accounts)
				},
			},
			{
				Name:  "events",
				Flags: []cli.Flag{flagOffset, flagLimit},
				Action: func(cCtx *cli.Context) error {
					evs, err := readClient(cCtx).ListEvents(cCtx.Context, cCtx.Int(flagOffset.Name), cCtx.Int(flagLimit.Name))
					if err != nil {
						return err
					}
					return printJSON(evs)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
