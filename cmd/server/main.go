/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the lesson scheduling engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Create API handler with the engine components
  4. Start the background session scheduler
  5. Start server with graceful shutdown

CONFIGURATION:
  Flags override environment variables:
    -port     / PORT            HTTP server port (default: 8080)
    -db       / DB_PATH         SQLite database path (default: lessons.db)
                                Use ":memory:" for in-memory
    -horizon  / HORIZON_WEEKS   Generation horizon in weeks (default: 4)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the background scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/lessons.db"
  ./server -db=":memory:" -port=3000

SEE ALSO:
  - api/server.go: router configuration
  - api/scheduler.go: background generation/activation
  - store/sqlite/sqlite.go: database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/classtrack/lesson-engine/api"
	"github.com/classtrack/lesson-engine/schedule"
	"github.com/classtrack/lesson-engine/store/sqlite"
)

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "lessons.db"), "SQLite database path")
	horizon := flag.Int("horizon", envInt("HORIZON_WEEKS", schedule.InitialHorizonWeeks), "Session generation horizon in weeks")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler and background scheduler
	handler := api.NewHandler(store, schedule.SystemClock{})

	scheduler := api.NewSessionScheduler(handler)
	scheduler.HorizonWeeks = *horizon
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
