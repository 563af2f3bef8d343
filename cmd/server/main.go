// Package main provides the entry point for the Qolaba MCP bridge. The
// server speaks MCP over stdio and fulfills each tool call by invoking the
// Qolaba REST API with centralized auth, retries, and rate limiting.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/qolaba/qolaba-mcp/internal/auth"
	"github.com/qolaba/qolaba-mcp/internal/bridge"
	"github.com/qolaba/qolaba-mcp/internal/buildinfo"
	"github.com/qolaba/qolaba-mcp/internal/config"
	"github.com/qolaba/qolaba-mcp/internal/logging"
	log "github.com/qolaba/qolaba-mcp/internal/logging"
	"github.com/qolaba/qolaba-mcp/internal/tools"
	"github.com/qolaba/qolaba-mcp/internal/upstream"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const (
	exitOK     = 0
	exitConfig = 2
	exitFatal  = 3
)

func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	os.Exit(run())
}

func run() int {
	var showVersion bool
	var envFile string

	flag.BoolVarP(&showVersion, "version", "v", false, "Print version and exit")
	flag.StringVar(&envFile, "env-file", "", "Load environment variables from this file before reading settings")
	flag.Parse()

	if showVersion {
		fmt.Printf("qolaba-mcp %s (%s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return exitOK
	}

	// A .env file never overrides variables already present in the
	// environment.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Errorf("failed to load env file %s: %v", envFile, err)
			return exitConfig
		}
	} else {
		_ = godotenv.Load()
	}

	settings, issues := config.Load()
	if len(issues) > 0 {
		for _, issue := range issues {
			log.Errorf("config: %s", issue)
		}
		if settings.IsProductionLike() {
			log.RunExitHandlers()
			return exitConfig
		}
		log.Warnf("continuing in %s with %d configuration issue(s)", settings.Env, len(issues))
	}

	log.SetLevel(logging.ParseLevel(settings.LogLevel))
	if err := logging.ConfigureLogOutput(settings.LogToFile); err != nil {
		log.Errorf("configure log output: %v", err)
		return exitFatal
	}

	log.WithFields(log.Fields(settings.Redacted())).Infof("qolaba-mcp %s starting", buildinfo.Version)

	httpClient := upstream.NewHTTPClient(settings)
	provider := auth.NewProvider(settings, httpClient)
	limiter := upstream.NewLimiter(settings.RateLimit)
	client := upstream.NewClient(settings, provider, limiter, httpClient)
	orchestrator := bridge.New(settings, provider, client)

	if settings.MetricsAddr != "" {
		if err := serveMetrics(settings.MetricsAddr); err != nil {
			log.Errorf("metrics listener failed to start: %v", err)
			return exitFatal
		}
	}

	mcpServer := server.NewMCPServer("qolaba-mcp", buildinfo.Version,
		server.WithToolCapabilities(false),
	)
	registry := tools.Register(mcpServer, orchestrator, settings)

	serveErr := server.ServeStdio(mcpServer)

	// The transport has stopped; let in-flight calls finish, then release
	// credentials and connections.
	registry.Drain()
	provider.Close()
	client.Close()
	log.RunExitHandlers()

	if serveErr != nil {
		log.Errorf("stdio transport failed: %v", serveErr)
		return exitFatal
	}
	return exitOK
}

// serveMetrics exposes Prometheus metrics when an address is configured.
// Binding happens synchronously so startup failures map to exit code 3.
func serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := (&http.Server{Handler: mux}).Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics listener stopped: %v", err)
		}
	}()

	log.Infof("metrics listening on %s", addr)
	return nil
}
