// Command vtt-server starts the virtual tabletop session server.
//
// It exposes a REST API for game lifecycle, membership, tokens, and dice, a
// WebSocket endpoint for real-time play, and an optional Redis backplane that
// lets several server processes share games. Flags control host/port, the map
// directory, Redis connection details, debug logging, version output, and
// optional ngrok tunneling for easy external access during development.
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
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/vttforge/vtt-server/api"
	"github.com/vttforge/vtt-server/game/config"
	"github.com/vttforge/vtt-server/game/service"
	"github.com/vttforge/vtt-server/game/session"
	"github.com/vttforge/vtt-server/transport/backplane"
	"github.com/vttforge/vtt-server/transport/websocket"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "VTT Session Server"
)

// Configuration flags control how the server starts and which services are enabled.
var (
	port          = flag.Int("port", 8080, "HTTP server port")
	host          = flag.String("host", "localhost", "HTTP server host")
	mapDir        = flag.String("map-dir", getMapDirDefault(), "Directory containing map definitions (empty for built-in default)")
	redisAddr     = flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for the multi-server backplane (empty disables it)")
	redisPassword = flag.String("redis-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	redisDB       = flag.Int("redis-db", getRedisDBDefault(), "Redis database number")
	debug         = flag.Bool("debug", false, "Enable debug logging")
	version       = flag.Bool("version", false, "Show version information")
	ngrokEnabled  = flag.Bool("ngrok", false, "Enable ngrok tunnel")
	ngrokAuth     = flag.String("ngrok-auth", "", "Ngrok auth token (or use NGROK_AUTHTOKEN env var)")
	ngrokDomain   = flag.String("ngrok-domain", "", "Custom ngrok domain (optional)")
)

// getMapDirDefault returns the default map directory. It honors the MAP_DIR
// environment variable; an unset variable means the built-in default map.
func getMapDirDefault() string {
	return os.Getenv("MAP_DIR")
}

func getRedisDBDefault() int {
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			return db
		}
	}
	return 0
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "%s v%s\n\n", AppName, Version)
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                # Single-process server on port 8080\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -port 9090 -map-dir maps       # Custom port and map directory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -redis-addr localhost:6379     # Clustered with a Redis backplane\n", os.Args[0])
	}
}

// main parses flags, wires the services, and runs the HTTP server until a
// shutdown signal arrives.
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	} else {
		log.Println("Loaded environment variables from .env file")
	}

	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", AppName, Version)
		os.Exit(0)
	}

	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}

	log.Printf("Starting %s v%s", AppName, Version)

	maps, err := config.NewManager(*mapDir)
	if err != nil {
		log.Fatalf("Failed to create map manager: %v", err)
	}

	manager := session.NewGameManager()
	gameService := service.NewGameService(manager, maps)

	hub := websocket.NewHub(websocket.DefaultPolicy(), nil)

	// Optional Redis backplane for multi-server deployments. The hub and the
	// adapter reference each other, so the hub binds its side late.
	var adapter *backplane.Adapter
	if *redisAddr != "" {
		adapter = backplane.NewAdapter(backplane.Config{
			Addr:      *redisAddr,
			Password:  *redisPassword,
			DB:        *redisDB,
			KeyPrefix: os.Getenv("REDIS_KEY_PREFIX"),
		}, hub)
		hub.SetBackplane(adapter)

		connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := adapter.Connect(connectCtx); err != nil {
			cancel()
			log.Fatalf("Failed to connect Redis backplane at %s: %v", *redisAddr, err)
		}
		cancel()
		log.Printf("Redis backplane connected (server id %s)", adapter.ServerID())
	}

	if *debug {
		go logGameEvents(hub)
	}

	runHTTPServer(gameService, hub, manager, adapter)
}

// runHTTPServer starts the HTTP server with REST API and WebSocket endpoints.
// If ngrok is enabled (via flag or environment), it also provisions a public
// tunnel.
func runHTTPServer(gameService service.GameService, hub *websocket.Hub, manager *session.GameManager, adapter *backplane.Adapter) {
	apiServer := api.NewServer(gameService, hub)
	addr := fmt.Sprintf("%s:%d", *host, *port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      apiServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Printf("HTTP server listening on %s", addr)
		log.Printf("REST API: http://%s/api", addr)
		log.Printf("WebSocket: ws://%s/ws?sessionId=<game>&userId=<user>&campaignId=<campaign>", addr)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Check if ngrok should be enabled (from flag or environment)
	ngrokShouldRun := *ngrokEnabled
	if !ngrokShouldRun {
		if envEnabled := os.Getenv("NGROK_ENABLED"); envEnabled == "true" || envEnabled == "1" {
			ngrokShouldRun = true
		}
	}

	if ngrokShouldRun {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrokTunnel(ctx, apiServer)
		}()
	}

	sig := <-stop
	log.Printf("Received signal: %v. Shutting down...", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Disconnect clients before tearing down their backplane presence, then
	// stop the game loops.
	hub.Shutdown()
	if adapter != nil {
		if err := adapter.Close(); err != nil {
			log.Printf("Backplane close error: %v", err)
		}
	}
	manager.Shutdown()

	wg.Wait()
	log.Println("Server stopped")
}

// runNgrokTunnel serves the API through a public ngrok endpoint until the
// context is cancelled.
func runNgrokTunnel(ctx context.Context, handler http.Handler) {
	authToken := *ngrokAuth
	if authToken == "" {
		authToken = os.Getenv("NGROK_AUTHTOKEN")
		if authToken == "" {
			authToken = os.Getenv("NGROK_AUTH_TOKEN")
		}
	}
	if authToken == "" {
		log.Println("WARNING: Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	log.Println("Starting ngrok tunnel...")

	domain := *ngrokDomain
	if domain == "" {
		domain = os.Getenv("NGROK_DOMAIN")
	}

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		log.Printf("Using custom ngrok domain: %s", domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Printf("Failed to start ngrok tunnel: %v", err)
		return
	}
	defer func() {
		if err := tun.Close(); err != nil {
			log.Printf("Failed to close ngrok tunnel: %v", err)
		}
	}()

	ngrokURL := tun.URL()
	log.Printf("🚀 Ngrok tunnel established: %s", ngrokURL)
	log.Printf("  REST API (ngrok): %s/api", ngrokURL)
	log.Printf("  WebSocket (ngrok): %s/ws", ngrokURL)

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed {
		log.Printf("Ngrok server error: %v", err)
	}
	log.Println("Ngrok tunnel closed")
}

// logGameEvents tails the hub's world-event stream for debugging.
func logGameEvents(hub *websocket.Hub) {
	events, unsubscribe := hub.SubscribeGameEvents()
	defer unsubscribe()

	for ev := range events {
		log.Printf("[EVENT] session=%s user=%s type=%s", ev.SessionID, ev.UserID, ev.Type)
	}
}
