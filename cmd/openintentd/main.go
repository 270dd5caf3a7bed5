package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/openintent-ai/openintent/pkg/api"
	"github.com/openintent-ai/openintent/pkg/authz"
	"github.com/openintent-ai/openintent/pkg/collections"
	"github.com/openintent-ai/openintent/pkg/config"
	"github.com/openintent-ai/openintent/pkg/eventlog"
	"github.com/openintent-ai/openintent/pkg/federation"
	"github.com/openintent-ai/openintent/pkg/governance"
	"github.com/openintent-ai/openintent/pkg/graph"
	"github.com/openintent-ai/openintent/pkg/intentcore"
	"github.com/openintent-ai/openintent/pkg/leases"
	"github.com/openintent-ai/openintent/pkg/messaging"
	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/portfolio"
	"github.com/openintent-ai/openintent/pkg/statetree"
	"github.com/openintent-ai/openintent/pkg/store"
	"github.com/openintent-ai/openintent/pkg/telemetry"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the CLI entrypoint, factored out from main so tests can drive
// it with fake argv and capture output.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		runServer(stdout)
		return 0
	}
	switch args[1] {
	case "server", "serve":
		runServer(stdout)
		return 0
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if len(args[1]) > 0 && args[1][0] == '-' {
			runServer(stdout)
			return 0
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorBlue  = "\033[34m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sopenintentd%s\n", colorBold+colorBlue, colorReset)
	fmt.Fprintf(w, "%sCoordination substrate for multi-agent systems.%s\n", colorGray, colorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", colorBold, colorReset)
	fmt.Fprintln(w, "  openintentd <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sCOMMANDS:%s\n", colorBold+colorCyan, colorReset)
	fmt.Fprintf(w, "  %s%-10s%s run the server (default)\n", colorGreen, "server", colorReset)
	fmt.Fprintf(w, "  %s%-10s%s check a running server's health\n", colorGreen, "health", colorReset)
	fmt.Fprintf(w, "  %s%-10s%s show this help\n", colorGreen, "help", colorReset)
	fmt.Fprintln(w, "")
}

func runHealthCmd(stdout, stderr io.Writer) int {
	resp, err := http.Get("http://localhost:8081/health")
	if err != nil {
		fmt.Fprintf(stderr, "health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(stdout, "OK")
	return 0
}

func runServer(stdout io.Writer) {
	fmt.Fprintf(stdout, "%sopenintentd starting...%s\n", colorBold+colorBlue, colorReset)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[openintent] config: %v", err)
	}

	if cfg.DatabaseURL == "" {
		fmt.Fprintf(stdout, "DATABASE_URL not set, falling back to %sembedded SQLite%s.\n", colorBold+colorCyan, colorReset)
	}
	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[openintent] store: %v", err)
	}
	log.Println("[openintent] store: ready")

	tp, err := telemetry.New(ctx, telemetry.Config{
		ServiceName:  "openintentd",
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		log.Fatalf("[openintent] telemetry: %v", err)
	}
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	ruleEval, err := governance.NewCustomRuleEvaluator()
	if err != nil {
		log.Fatalf("[openintent] governance rule evaluator: %v", err)
	}

	hub := eventlog.NewHub()
	schemas := statetree.NewSchemaValidator()
	az := authz.New(st)
	gov := governance.New(st, ruleEval)
	graphSvc := graph.New(st)
	leaseSvc := leases.New(st)
	portfolioSvc := portfolio.New(st)
	messagingSvc := messaging.New(st)
	intents := intentcore.New(st, gov, az, hub, schemas, portfolioSvc)
	costSvc := collections.NewCostService(st, gov)
	retrySvc := collections.NewRetryService(st)
	subsSvc := collections.NewSubscriptionService(st)

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		log.Fatalf("[openintent] attachment store: %v", err)
	}
	attachSvc := collections.NewAttachmentService(st, blobs)

	identity := buildIdentity(cfg)
	dispatcher := federation.NewDispatcher(st, identity)
	directory := federation.NewStaticPeerDirectory(nil)
	receiver := federation.NewReceiver(st, identity, model.TrustOpen, directory, federation.NewHTTPPublicKeyResolver())

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("[openintent] redis url: %v", err)
		}
		redisClient = redis.NewClient(opts)
		log.Println("[openintent] redis: rate limiter backed by", cfg.RedisURL)
	}

	srv := api.New(api.Deps{
		Config:      cfg,
		Store:       st,
		Intents:     intents,
		Graph:       graphSvc,
		Leases:      leaseSvc,
		Governance:  gov,
		Authz:       az,
		Portfolios:  portfolioSvc,
		Messaging:   messagingSvc,
		Attachments: attachSvc,
		Costs:       costSvc,
		Retries:     retrySvc,
		Subs:        subsSvc,
		Dispatcher:  dispatcher,
		Receiver:    receiver,
		Identity:    identity,
		TrustPolicy: model.TrustOpen,
		Hub:         hub,
		Redis:       redisClient,
	})

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go func() {
		if err := leaseSvc.RunSweeper(sweepCtx); err != nil && sweepCtx.Err() == nil {
			log.Printf("[openintent] lease sweeper stopped: %v", err)
		}
	}()
	go runSubscriptionSweeper(sweepCtx, subsSvc)

	go func() {
		log.Printf("[openintent] metrics: %s", cfg.MetricsAddr)
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Printf("[openintent] metrics server error: %v", err)
		}
	}()

	go func() {
		log.Printf("[openintent] health: :8081")
		healthMux := http.NewServeMux()
		healthMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})
		if err := http.ListenAndServe(":8081", healthMux); err != nil {
			log.Printf("[openintent] health server error: %v", err)
		}
	}()

	go func() {
		log.Printf("[openintent] ready: http://%s", cfg.Addr())
		if err := http.ListenAndServe(cfg.Addr(), srv.Router()); err != nil {
			log.Fatalf("[openintent] server error: %v", err)
		}
	}()

	log.Println("[openintent] press ctrl+c to stop")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("[openintent] shutting down")
}

// runSubscriptionSweeper periodically removes expired webhook
// subscriptions; there is no dedicated sweep interval in spec.md, so
// this runs at the same cadence as the lease sweeper.
func runSubscriptionSweeper(ctx context.Context, subs *collections.SubscriptionService) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := subs.SweepExpired(ctx, time.Now()); err != nil {
				slog.Error("subscription sweep failed", "error", err)
			}
		}
	}
}

// buildBlobStore selects S3 when S3Bucket is configured, otherwise an
// embedded filesystem store rooted at ./data/attachments, grounded in
// the pack's aws-sdk-go-v2 client construction pattern.
func buildBlobStore(ctx context.Context, cfg *config.Config) (collections.BlobStore, error) {
	if cfg.S3Bucket == "" {
		return collections.NewFileBlobStore(filepath.Join("data", "attachments"))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return collections.NewS3Store(client, cfg.S3Bucket), nil
}

// buildIdentity builds this server's federation identity from a fresh,
// ephemeral Ed25519 keypair on every start; without a configured DID it
// uses the synthetic did:key:openintentd-local (spec.md §9's HMAC fallback remains
// available via federation.NewHMACFallbackIdentity for environments
// that can't provision asymmetric keys).
func buildIdentity(cfg *config.Config) *model.ServerIdentity {
	did := cfg.FederationDID
	if did == "" {
		did = "did:key:openintentd-local"
	}
	identity, err := federation.NewServerIdentity(did)
	if err != nil {
		log.Fatalf("[openintent] federation identity: %v", err)
	}
	return identity
}
