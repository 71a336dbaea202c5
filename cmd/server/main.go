/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loan servicing engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire engine: ledger, classifier, COB processor, catch-up coordinator
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port           HTTP server port (default: 8080)
  -db             SQLite database path (default: servicing.db)
                  Use ":memory:" for in-memory database
  -business-date  Initial global business date (YYYY-MM-DD, default: today UTC)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for an in-flight catch-up batch to finish
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/servicing.db"

  # Run with in-memory database at a fixed business date
  ./server -db=":memory:" -business-date=2026-01-15

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/loan-servicing/api"
	"github.com/warp/loan-servicing/metrics"
	"github.com/warp/loan-servicing/product"
	"github.com/warp/loan-servicing/servicing"
	"github.com/warp/loan-servicing/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "servicing.db", "SQLite database path")
	businessDate := flag.String("business-date", "", "initial business date (YYYY-MM-DD, default today UTC)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Business date
	today := servicing.Today()
	if *businessDate != "" {
		d, err := servicing.ParseDate(*businessDate)
		if err != nil {
			log.Fatalf("Invalid -business-date: %v", err)
		}
		today = d
	}
	clock := servicing.NewFixedClock(today)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Product catalog
	catalog := product.NewCatalog()
	if err := catalog.Register(product.StandardMonthly("STANDARD", false)); err != nil {
		log.Fatalf("Failed to register product: %v", err)
	}
	flexible := product.StandardMonthly("FLEXIBLE", true)
	if err := catalog.Register(flexible); err != nil {
		log.Fatalf("Failed to register product: %v", err)
	}

	// Engine wiring
	publisher := &servicing.LogPublisher{Logger: logger}
	ledger := servicing.NewLedger(store, clock, catalog, publisher)
	classifier := servicing.NewClassifier(store, clock, catalog, publisher)
	ledger.Reactors = append(ledger.Reactors, classifier)

	collector := metrics.NewCollector()
	locks := servicing.NewLockManager()
	processor := servicing.NewProcessor(store, clock, ledger, classifier, catalog, logger)
	coordinator := servicing.NewCoordinator(store, clock, processor, locks, logger)
	coordinator.Observer = collector

	handler := &api.Handler{
		Store:       store,
		Ledger:      ledger,
		Classifier:  classifier,
		Coordinator: coordinator,
		Locks:       locks,
		Clock:       clock,
		Metrics:     collector,
	}

	router := api.NewRouter(handler, collector.Handler())

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			"addr", fmt.Sprintf("http://localhost:%d", *port),
			"business_date", clock.BusinessDate().String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Let an in-flight catch-up batch finish; it holds account locks.
	coordinator.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server stopped")
}
