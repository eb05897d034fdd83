package flags

import (
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/ruteri/tee-agent-registry/api"
	"github.com/ruteri/tee-agent-registry/common"
	"github.com/ruteri/tee-agent-registry/governance"
	"github.com/ruteri/tee-agent-registry/signer"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
		RequestMaxAge:            cCtx.Duration(RequestMaxAgeFlag.Name),
		MaxRequestBodySize:       api.MaxRequestBodySize,
	}
}

// PrivateKey parses the hex secp256k1 key given by PrivateKeyFlag.
func PrivateKey(cCtx *cli.Context) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cCtx.String(PrivateKeyFlag.Name), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "tee-agent-registry",
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}

// Gateway flags.

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}
var OwnerFlag = &cli.StringFlag{
	Name:    "owner",
	EnvVars: []string{"REGISTRY_OWNER"},
	Usage:   "initial owner account (0x-prefixed address), used only when no state is persisted",
}
var SignerEndpointFlag = &cli.StringFlag{
	Name:  "signer-endpoint",
	Usage: "initial signer endpoint: http(s)://host:port, srv://name or srv+https://name",
}
var RequiresAttestationFlag = &cli.BoolFlag{
	Name:  "requires-attestation",
	Value: true,
	Usage: "require TDX attestation on registration; when false the registry runs in local mode",
}
var ExpirationDurationFlag = &cli.DurationFlag{
	Name:  "expiration-duration",
	Value: governance.DefaultExpirationDuration,
	Usage: "initial validity window granted on registration",
}
var StateURIFlag = &cli.StringSliceFlag{
	Name:    "state-uri",
	Value:   cli.NewStringSlice("memory://"),
	EnvVars: []string{"REGISTRY_STATE_URI"},
	Usage:   "storage backend URI for the registry state (file://, s3://, vault://, memory://); repeat to mirror to several backends",
}
var CheckCollateralFlag = &cli.BoolFlag{
	Name:  "check-collateral",
	Value: true,
	Usage: "fetch TDX collateral and check revocation when verifying quotes",
}
var DNSResolverFlag = &cli.StringFlag{
	Name:  "dns-resolver",
	Value: signer.DefaultDNSServer,
	Usage: "DNS server used to resolve srv:// signer endpoints",
}
var DispatchWorkersFlag = &cli.IntFlag{
	Name:  "dispatch-workers",
	Value: signer.DefaultWorkers,
	Usage: "number of concurrent signer calls",
}
var DispatchQueueFlag = &cli.IntFlag{
	Name:  "dispatch-queue",
	Value: signer.DefaultQueueSize,
	Usage: "pending signature requests before new ones are refused",
}
var SignerTimeoutFlag = &cli.DurationFlag{
	Name:  "signer-timeout",
	Value: signer.DefaultCallTimeout,
	Usage: "timeout of a single signer call",
}
var RequestMaxAgeFlag = &cli.DurationFlag{
	Name:  "request-max-age",
	Value: api.DefaultRequestMaxAge,
	Usage: "maximum clock difference accepted on signed requests",
}

// Client flags.

var RegistryAddrFlag = &cli.StringFlag{
	Name:  "registry-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "registry API address",
}
var PrivateKeyFlag = &cli.StringFlag{
	Name:     "privkey",
	Required: true,
	EnvVars:  []string{"REGISTRY_PRIVKEY"},
	Usage:    "hex secp256k1 private key to sign requests with",
}
