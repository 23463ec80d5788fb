/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the movement ledger server. Handles
  configuration, dependency wiring and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env / environment, flags override)
  2. Open the SQLite store (movements + directory)
  3. Optionally attach the Kafka publisher and Postgres movement store
  4. Build the engine, handler and router
  5. Start the direct-debit runner and the HTTP server

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the direct-debit runner and close the database
  4. Exit

EXAMPLES:
  # Run with a file database
  ./server -db=./data/bank.db

  # Run with an in-memory database
  ./server -db=:memory:

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment variables
*/
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/vivesbank/banking-engine/api"
	"github.com/vivesbank/banking-engine/config"
	"github.com/vivesbank/banking-engine/events/kafka"
	"github.com/vivesbank/banking-engine/ledger"
	"github.com/vivesbank/banking-engine/sched"
	"github.com/vivesbank/banking-engine/store/postgres"
	"github.com/vivesbank/banking-engine/store/sqlite"
)

func main() {
	cfg := config.Load()

	// Flags override the environment.
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	// The SQLite store always provides the directory; it also provides
	// movement storage unless a Postgres URL is configured.
	st, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer st.Close()

	var movements ledger.MovementStore = st
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open postgres: %v", err)
		}
		defer db.Close()
		movements, err = postgres.New(db)
		if err != nil {
			log.Fatalf("Failed to initialize postgres store: %v", err)
		}
	}

	opts := []ledger.Option{
		ledger.WithReversalWindow(cfg.ReversalWindow),
		ledger.WithLimitEvaluator(ledger.LimitEvaluator{
			ZeroCeilingUnlimited: cfg.ZeroCeilingUnlimited,
		}),
	}
	if len(cfg.KafkaBrokers) > 0 {
		pub := kafka.NewPublisher(cfg.KafkaBrokers)
		defer pub.Close()
		opts = append(opts, ledger.WithPublisher(pub))
	}

	eng := ledger.NewEngine(st, movements, opts...)
	router := api.NewRouter(api.NewHandler(eng))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Direct-debit runner
	runCtx, stopRunner := context.WithCancel(context.Background())
	defer stopRunner()
	if cfg.DebitRunInterval > 0 {
		go sched.NewRunner(eng, cfg.DebitRunInterval).Run(runCtx)
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopRunner()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
