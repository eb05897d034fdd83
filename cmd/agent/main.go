package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ruteri/tee-agent-registry/api/clients"
	"github.com/ruteri/tee-agent-registry/cmd/flags"
	"github.com/ruteri/tee-agent-registry/cryptoutils"
	"github.com/ruteri/tee-agent-registry/interfaces"
	"github.com/urfave/cli/v2"
)

var flagAttestationType *cli.StringFlag = &cli.StringFlag{
	Name:  "attestation-type",
	Value: "dcap",
	Usage: "how to obtain the attestation: 'dcap' (local TDX guest), 'remote' (quote service) or 'none' (local mode registry)",
}
var flagEventLog *cli.StringFlag = &cli.StringFlag{
	Name:  "event-log",
	Usage: "JSON file with the RTMR3 event log to submit with a dcap quote",
}
var flagQuoteService *cli.StringFlag = &cli.StringFlag{
	Name:  "quote-service-addr",
	Value: "http://127.0.0.1:8090",
	Usage: "quote service address for --attestation-type=remote",
}
var flagPath *cli.StringFlag = &cli.StringFlag{
	Name:     "path",
	Required: true,
	Usage:    "key derivation path passed to the signer",
}
var flagPayload *cli.StringFlag = &cli.StringFlag{
	Name:     "payload",
	Required: true,
	Usage:    "payload to sign",
}
var flagKeyType *cli.StringFlag = &cli.StringFlag{
	Name:  "key-type",
	Value: string(interfaces.KeyTypeEcdsa),
	Usage: "Ecdsa or Eddsa",
}

func attestationProvider(cCtx *cli.Context) (cryptoutils.AttestationProvider, error) {
	switch t := cCtx.String(flagAttestationType.Name); t {
	case "dcap":
		return cryptoutils.DCAPAttestationProvider{EventLogPath: cCtx.String(flagEventLog.Name)}, nil
	case "remote":
		return &cryptoutils.RemoteAttestationProvider{Address: cCtx.String(flagQuoteService.Name)}, nil
	case "none":
		return cryptoutils.LocalAttestationProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown attestation type %q", t)
	}
}

func agentClient(cCtx *cli.Context) (*clients.RegistryClient, error) {
	key, err := flags.PrivateKey(cCtx)
	if err != nil {
		return nil, err
	}
	return clients.NewRegistryClient(cCtx.String(flags.RegistryAddrFlag.Name), key), nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	app := &cli.App{
		Name:  "registry agent",
		Usage: "Agent tooling for the TEE agent registry",
		Flags: []cli.Flag{
			flags.RegistryAddrFlag,
			flags.PrivateKeyFlag,
		},
		Commands: []*cli.Command{
			{
				Name:  "address",
				Usage: "print the account the agent registers as",
				Action: func(cCtx *cli.Context) error {
					c, err := agentClient(cCtx)
					if err != nil {
						return err
					}
					fmt.Println(c.Account().String())
					return nil
				},
			},
			{
				Name:  "register",
				Usage: "obtain an attestation bound to the agent account and register it",
				Flags: []cli.Flag{flagAttestationType, flagEventLog, flagQuoteService},
				Action: func(cCtx *cli.Context) error {
					c, err := agentClient(cCtx)
					if err != nil {
						return err
					}
					provider, err := attestationProvider(cCtx)
					if err != nil {
						return err
					}

					attestation, err := provider.Attest(c.Account().ReportData())
					if err != nil {
						return fmt.Errorf("failed to obtain attestation: %w", err)
					}

					view, err := c.Register(cCtx.Context, *attestation)
					if err != nil {
						return err
					}
					return printJSON(view)
				},
			},
			{
				Name:  "status",
				Usage: "print the agent's record as seen by the registry",
				Action: func(cCtx *cli.Context) error {
					c, err := agentClient(cCtx)
					if err != nil {
						return err
					}
					view, err := c.GetAgent(cCtx.Context, c.Account())
					if err != nil {
						return err
					}
					return printJSON(view)
				},
			},
			{
				Name:  "sign",
				Usage: "request a signature; the result is reported as a signature_result event",
				Flags: []cli.Flag{flagPath, flagPayload, flagKeyType},
				Action: func(cCtx *cli.Context) error {
					c, err := agentClient(cCtx)
					if err != nil {
						return err
					}
					keyType, err := interfaces.ParseKeyType(cCtx.String(flagKeyType.Name))
					if err != nil {
						return err
					}
					requestID, err := c.RequestSignature(cCtx.Context, cCtx.String(flagPath.Name), cCtx.String(flagPayload.Name), keyType)
					if err != nil {
						return err
					}
					fmt.Println(requestID)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
