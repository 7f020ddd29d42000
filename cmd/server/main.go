// Package main provides the launchpad server: it hosts the sale lifecycle
// API, a live websocket event feed and Prometheus metrics over one HTTP
// listener, backed by in-memory or PostgreSQL + ClickHouse storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"token-launchpad/internal/curve"
	"token-launchpad/internal/feed"
	"token-launchpad/internal/ledger"
	"token-launchpad/internal/observability"
	"token-launchpad/internal/recorder"
	"token-launchpad/internal/sale"
	"token-launchpad/internal/storage"
	chstore "token-launchpad/internal/storage/clickhouse"
	"token-launchpad/internal/storage/memory"
	"token-launchpad/internal/storage/migrations"
	pgstore "token-launchpad/internal/storage/postgres"
)

// Server holds all components of the launchpad service.
type Server struct {
	logger   *log.Logger
	decimals curve.DecimalConfig
	fees     feeDefaults

	registry *sale.Registry
	recorder *recorder.Recorder
	hub      *feed.Hub

	custody *ledger.FundsCustody
	venue   *ledger.LiquidityVenue

	stores *allStores
}

// feeDefaults are the platform-wide sale parameters applied when a create
// request leaves them unset.
type feeDefaults struct {
	buyFeeBps   uint
	sellFeeBps  uint
	minRaiseBps uint
	lpShareBps  uint
}

// allStores holds all storage implementations.
type allStores struct {
	saleStore       storage.SaleStore
	tradeStore      storage.TradeStore
	pricePointStore storage.PricePointStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", ":8080", "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL + ClickHouse")
	quoteDecimals := flag.Uint("quote-decimals", 6, "Quote asset decimals")
	tokenDecimals := flag.Uint("token-decimals", 18, "Project token decimals")
	buyFeeBps := flag.Uint("buy-fee-bps", 100, "Default origination fee in basis points")
	sellFeeBps := flag.Uint("sell-fee-bps", 100, "Default exit fee in basis points")
	minRaiseBps := flag.Uint("min-raise-bps", 5000, "Default minimum sold fraction of salable supply to launch at deadline, basis points")
	lpShareBps := flag.Uint("lp-share-bps", 2000, "Default share of collected quote routed to liquidity, basis points")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}
	if *quoteDecimals > 18 || *tokenDecimals > 18 {
		logger.Fatal("decimals out of range")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	decimals := curve.NewDecimalConfig(uint8(*quoteDecimals), uint8(*tokenDecimals))

	hub := feed.NewHub(log.New(os.Stdout, "[feed] ", log.LstdFlags), nil)
	rec := recorder.New(
		log.New(os.Stdout, "[recorder] ", log.LstdFlags),
		decimals,
		stores.saleStore, stores.tradeStore, stores.pricePointStore,
		hub, nil,
	)

	server := &Server{
		logger:   logger,
		decimals: decimals,
		fees: feeDefaults{
			buyFeeBps:   *buyFeeBps,
			sellFeeBps:  *sellFeeBps,
			minRaiseBps: *minRaiseBps,
			lpShareBps:  *lpShareBps,
		},
		registry: sale.NewRegistry(),
		recorder: rec,
		hub:      hub,
		custody:  ledger.NewFundsCustody(),
		venue:    ledger.NewLiquidityVenue(),
		stores:   stores,
	}

	httpServer := &http.Server{
		Addr:              *listenAddr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
		cancel()
	}()

	logger.Printf("Listening on %s", *listenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("HTTP server error: %v", err)
	}

	// Stop the feed before the recorder so no event lands on a closed queue.
	hub.Close()
	rec.Close()
	logger.Println("Shutdown complete")
}

// routes wires all HTTP endpoints.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.Handle("GET /ws", s.hub)

	mux.HandleFunc("POST /sales", s.handleCreateSale)
	mux.HandleFunc("GET /sales", s.handleListSales)
	mux.HandleFunc("GET /sales/{id}", s.handleGetSale)
	mux.HandleFunc("GET /sales/{id}/quote", s.handleQuote)
	mux.HandleFunc("GET /sales/{id}/trades", s.handleTrades)
	mux.HandleFunc("POST /sales/{id}/buy", s.handleBuy)
	mux.HandleFunc("POST /sales/{id}/sell", s.handleSell)
	mux.HandleFunc("POST /sales/{id}/finalize", s.handleFinalize)
	mux.HandleFunc("POST /sales/{id}/claim", s.handleClaim)

	return mux
}

// createStores creates all required stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			saleStore:       memory.NewSaleStore(),
			tradeStore:      memory.NewTradeStore(),
			pricePointStore: memory.NewPricePointStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := &allStores{
		// PostgreSQL stores (sales + trades)
		saleStore:  pgstore.NewSaleStore(pool),
		tradeStore: pgstore.NewTradeStore(pool),

		// ClickHouse store (analytics)
		pricePointStore: chstore.NewPricePointStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
