package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/tee-agent-registry/api/agents"
	"github.com/ruteri/tee-agent-registry/api/owner"
	"github.com/ruteri/tee-agent-registry/api/servers"
	"github.com/ruteri/tee-agent-registry/attestation"
	"github.com/ruteri/tee-agent-registry/cmd/flags"
	"github.com/ruteri/tee-agent-registry/common"
	"github.com/ruteri/tee-agent-registry/events"
	"github.com/ruteri/tee-agent-registry/governance"
	"github.com/ruteri/tee-agent-registry/interfaces"
	"github.com/ruteri/tee-agent-registry/metrics"
	"github.com/ruteri/tee-agent-registry/signer"
	"github.com/ruteri/tee-agent-registry/storage"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func main() {
	app := &cli.App{
		Name:  "agent-registry-gateway",
		Usage: "Serve the TEE agent registry: attestation-gated registration and signature requests",
		Flags: append([]cli.Flag{
			flags.ListenAddrFlag,
			flags.OwnerFlag,
			flags.SignerEndpointFlag,
			flags.RequiresAttestationFlag,
			flags.ExpirationDurationFlag,
			flags.StateURIFlag,
			flags.CheckCollateralFlag,
			flags.DNSResolverFlag,
			flags.DispatchWorkersFlag,
			flags.DispatchQueueFlag,
			flags.SignerTimeoutFlag,
			flags.RequestMaxAgeFlag,
		}, flags.CommonFlags...),
		Action: runGateway,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runGateway(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	ctx, cancel := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var initialOwner interfaces.AccountID
	if ownerHex := cCtx.String(flags.OwnerFlag.Name); ownerHex != "" {
		parsed, err := interfaces.NewAccountIDFromHex(ownerHex)
		if err != nil {
			return fmt.Errorf("invalid --%s: %w", flags.OwnerFlag.Name, err)
		}
		initialOwner = parsed
	}

	var locations []interfaces.StorageBackendLocation
	for _, uri := range cCtx.StringSlice(flags.StateURIFlag.Name) {
		location, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return fmt.Errorf("invalid --%s %q: %w", flags.StateURIFlag.Name, uri, err)
		}
		locations = append(locations, location)
	}
	store, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
	if err != nil {
		logger.Error("Failed to create state storage", "err", err)
		return err
	}
	logger.Info("State storage configured", "backend", store.Name(), "location", store.LocationURI())

	metricsSrv, err := metrics.New(common.PackageName, cCtx.String(flags.MetricsAddrFlag.Name))
	if err != nil {
		logger.Error("Failed to create metrics server", "err", err)
		return err
	}

	recorder := events.NewRecorder(events.DefaultRecorderCapacity)
	sink := events.Fanout{
		events.NewLogSink(logger),
		recorder,
		events.NewMetricsSink(metricsSrv.Metrics),
	}

	httpSigner := signer.NewHTTPSigner(
		signer.NewSRVResolver(cCtx.String(flags.DNSResolverFlag.Name)),
		logger,
		cCtx.Duration(flags.SignerTimeoutFlag.Name),
	)
	dispatcher := signer.NewDispatcher(httpSigner, sink, logger, signer.DispatcherOpts{
		Workers:     cCtx.Int(flags.DispatchWorkersFlag.Name),
		QueueSize:   cCtx.Int(flags.DispatchQueueFlag.Name),
		CallTimeout: cCtx.Duration(flags.SignerTimeoutFlag.Name),
		Metrics:     metricsSrv.Metrics,
	})

	registry, err := governance.New(ctx, governance.Config{
		Owner:               initialOwner,
		SignerEndpoint:      cCtx.String(flags.SignerEndpointFlag.Name),
		RequiresAttestation: cCtx.Bool(flags.RequiresAttestationFlag.Name),
		ExpirationDuration:  cCtx.Duration(flags.ExpirationDurationFlag.Name),
	}, governance.Deps{
		Verifier:   attestation.NewTDXVerifier(logger, cCtx.Bool(flags.CheckCollateralFlag.Name)),
		Dispatcher: dispatcher,
		Store:      store,
		Sink:       sink,
		Metrics:    metricsSrv.Metrics,
		Log:        logger,
	})
	if err != nil {
		logger.Error("Failed to initialize registry", "err", err)
		return err
	}

	info := registry.ContractInfo()
	logger.Info("Registry ready",
		"owner", info.Owner.String(),
		"requires_attestation", info.RequiresAttestation,
		"expiration_duration", info.ExpirationDuration,
		"signer_endpoint", info.SignerEndpoint)

	serverCfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))
	auth := serverCfg.NewSignedRequestAuth()
	server := servers.New(
		serverCfg,
		metricsSrv,
		agents.NewHandler(registry, recorder, auth, logger),
		owner.NewHandler(registry, auth, logger),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	server.Run(groupCtx, group)
	group.Go(func() error {
		return dispatcher.Run(groupCtx)
	})

	logger.Info("Gateway is running, press Ctrl+C to stop")
	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Error("Gateway stopped with error", "err", err)
		return err
	}
	logger.Info("Gateway shutdown complete")
	return nil
}
