// Package cli wires the coordinator and worker processes behind a
// single binary with subcommands.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"gitlab.com/proxygrid.net/internal/adapter/crypto"
	"gitlab.com/proxygrid.net/internal/adapter/logging"
	"gitlab.com/proxygrid.net/internal/adapter/postgres/proxystore"
	"gitlab.com/proxygrid.net/internal/adapter/redis/workingset"
	"gitlab.com/proxygrid.net/internal/config"
	"gitlab.com/proxygrid.net/internal/core/services/pool"
	"gitlab.com/proxygrid.net/internal/domain"
	"gitlab.com/proxygrid.net/internal/httpapi"
	"gitlab.com/proxygrid.net/internal/metrics"
	"gitlab.com/proxygrid.net/internal/poolengine"
	"gitlab.com/proxygrid.net/internal/sink"
	"gitlab.com/proxygrid.net/internal/tcp"
	"gitlab.com/proxygrid.net/internal/workeragent"
)

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "proxygrid",
		Short:   "proxygrid: distributed proxy validation",
		Long:    "proxygrid coordinates proxy validation jobs across a fleet of worker processes.",
		Version: "1.0.0",
	}

	rootCmd.AddCommand(buildCoordinatorCommand())
	rootCmd.AddCommand(buildWorkerCommand())
	rootCmd.AddCommand(buildValidateCommand())
	rootCmd.AddCommand(buildTokenCommand())

	return rootCmd
}

func buildCoordinatorCommand() *cobra.Command {
	var (
		tcpAddr   string
		httpAddr  string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Run the coordinator process",
		Long:  "Start the TCP worker plane, the management HTTP API and the background sweep loops.",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadDotenv()
			sysCfg := config.NewSystemConfig()
			if tcpAddr != "" {
				sysCfg.CoordinatorCfg.TCPAddr = tcpAddr
			}
			if httpAddr != "" {
				sysCfg.CoordinatorCfg.HTTPAddr = httpAddr
			}
			if batchSize > 0 {
				sysCfg.PoolCfg.BatchSize = batchSize
			}
			return runCoordinator(sysCfg)
		},
	}

	cmd.Flags().StringVar(&tcpAddr, "tcp-addr", "", "Worker-plane listen address (overrides COORDINATOR_TCP_ADDR)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "Management API listen address (overrides COORDINATOR_HTTP_ADDR)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Default proxies per job (overrides POOL_BATCH_SIZE)")

	return cmd
}

func buildWorkerCommand() *cobra.Command {
	var (
		coordinator string
		workerID    string
		capacity    int
		timeoutSec  int
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a validation worker",
		Long:  "Connect to the coordinator, pull jobs and validate the proxies in them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadDotenv()
			sysCfg := config.NewSystemConfig()
			if coordinator != "" {
				sysCfg.WorkerCfg.CoordinatorAddr = coordinator
			}
			if workerID != "" {
				sysCfg.WorkerCfg.WorkerID = workerID
			}
			if capacity > 0 {
				sysCfg.WorkerCfg.Capacity = capacity
			}
			if timeoutSec > 0 {
				sysCfg.WorkerCfg.ValidateTimeout = time.Duration(timeoutSec) * time.Second
			}
			return runWorker(sysCfg)
		},
	}

	cmd.Flags().StringVar(&coordinator, "coordinator", "", "Coordinator address host:port (overrides COORDINATOR_ADDR)")
	cmd.Flags().StringVar(&workerID, "id", "", "Worker identity (default worker-<hostname>-<random>)")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "Max concurrent validations (overrides WORKER_CAPACITY)")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 0, "Per-proxy validation timeout in seconds")

	return cmd
}

func buildValidateCommand() *cobra.Command {
	var (
		limit      int
		batchSize  int
		status     string
		protocol   string
		country    string
		ageMinutes int
		apiAddr    string
		token      string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Queue a validation run",
		Long:  "Ask a running coordinator to fetch candidates and queue them as validation jobs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := submitValidation(apiAddr, token, httpapi.SubmitValidationRequest{
				Limit:      limit,
				BatchSize:  batchSize,
				Status:     status,
				Protocol:   protocol,
				Country:    country,
				AgeMinutes: ageMinutes,
			}); err != nil {
				return err
			}
			if watch {
				return watchRun(apiAddr)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Number of candidates to fetch (0 = coordinator default)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Proxies per job (0 = coordinator default)")
	cmd.Flags().StringVar(&status, "status", "", "Restrict to a candidate status")
	cmd.Flags().StringVar(&protocol, "protocol", "", "Restrict to a protocol (http, https, socks5)")
	cmd.Flags().StringVar(&country, "country", "", "Restrict to a country code")
	cmd.Flags().IntVar(&ageMinutes, "age-minutes", 0, "Only candidates not checked within this many minutes")
	cmd.Flags().StringVar(&apiAddr, "coordinator-api", "http://localhost:8080", "Coordinator API base URL")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token when the API requires auth")
	cmd.Flags().BoolVar(&watch, "watch", false, "Poll stats until the queued jobs drain")

	return cmd
}

func buildTokenCommand() *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the management API",
		Long:  "Sign a bearer token with the coordinator's JWT_SECRET for use against the management API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadDotenv()
			sysCfg := config.NewSystemConfig()
			if !sysCfg.JwtConfig.Enabled() {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			token, err := crypto.NewTokenService(sysCfg.JwtConfig).GenerateToken(subject)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "operator", "Subject claim for the token")

	return cmd
}

func runCoordinator(sysCfg *config.AppConfig) error {
	logger := logging.NewZapLogger(sysCfg.DebugMode)
	defer logger.Sync()
	logger.Info("Starting coordinator")

	db, err := setupDatabase(sysCfg.PostgresConfig)
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     sysCfg.RedisConfig.Url,
		Password: sysCfg.RedisConfig.Password,
		DB:       sysCfg.RedisConfig.DB,
	})
	defer redisClient.Close()

	// Secondary ports
	store := proxystore.NewStore(db, logger)
	workingSet := workingset.NewCache(redisClient, logger)

	collector := metrics.NewCollector()
	resultSink := sink.New(store, workingSet, collector, logger)
	jobPool := pool.NewJobPool(sysCfg.PoolCfg, resultSink, collector, logger)
	engine := poolengine.NewEngine(sysCfg.PoolCfg, jobPool, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resultSink.Start(ctx)
	engine.Start(ctx)

	// Servers
	tcpServer := tcp.NewTCPServer(jobPool, logger, tcp.WithAddress(sysCfg.CoordinatorCfg.TCPAddr))
	if err := tcpServer.Start(); err != nil {
		return err
	}

	var mw *httpapi.MiddlewareProvider
	if sysCfg.JwtConfig.Enabled() {
		mw = httpapi.NewMiddlewareProvider(crypto.NewTokenService(sysCfg.JwtConfig))
	} else {
		logger.Warn("JWT_SECRET not set, management API is unauthenticated")
	}
	apiHandler := httpapi.NewHandler(jobPool, store, workingSet, sysCfg.PoolCfg.BatchSize, logger)
	httpServer := httpapi.NewServer(sysCfg.CoordinatorCfg.HTTPAddr, apiHandler, mw, collector, logger)
	httpServer.Init()
	httpServer.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down coordinator...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := tcpServer.Stop(shutdownCtx); err != nil {
		logger.Error("TCP server shutdown error", "error", err)
	}
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	resultSink.Wait()

	logger.Info("Coordinator stopped")
	return nil
}

func runWorker(sysCfg *config.AppConfig) error {
	logger := logging.NewZapLogger(sysCfg.DebugMode)
	defer logger.Sync()

	agent := workeragent.NewAgent(sysCfg.WorkerCfg, logger)
	logger.Info("Starting worker", "workerID", agent.WorkerID(), "coordinator", sysCfg.WorkerCfg.CoordinatorAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down worker...")
		cancel()
	}()

	if err := agent.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	logger.Info("Worker stopped")
	return nil
}

func submitValidation(apiAddr, token string, req httpapi.SubmitValidationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequest(http.MethodPost, apiAddr+"/api/v1/validate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to reach coordinator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coordinator returned %s", resp.Status)
	}

	var result httpapi.SubmitValidationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("Queued %d jobs covering %d proxies\n", result.JobsCreated, result.ProxyCount)
	for _, id := range result.JobIDs {
		fmt.Printf("  %s\n", id)
	}
	return nil
}

// watchRun polls the stats endpoint until queue and active jobs drain.
func watchRun(apiAddr string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	for {
		time.Sleep(2 * time.Second)

		resp, err := client.Get(apiAddr + "/api/v1/stats")
		if err != nil {
			return fmt.Errorf("failed to poll stats: %w", err)
		}

		var snap domain.PoolSnapshot
		err = json.NewDecoder(resp.Body).Decode(&snap)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to parse stats: %w", err)
		}

		fmt.Printf("queue=%d active=%d completed=%d working=%d\n",
			snap.QueueSize, snap.ActiveJobs,
			snap.Stats.TotalJobsCompleted, snap.Stats.TotalWorkingProxies)

		if snap.QueueSize == 0 && snap.ActiveJobs == 0 {
			fmt.Println("Run finished")
			return nil
		}
	}
}

func loadDotenv() {
	// Missing .env is fine; the environment wins either way.
	_ = godotenv.Load()
}

func setupDatabase(cfg *config.PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.Url)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}
