// Command ferragate is the gateway's entrypoint: start/validate/init/gen-certs
// subcommands over the standard flag package rather than a CLI framework.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ferragate/gateway/internal/config"
	"github.com/ferragate/gateway/internal/gateway"
	"github.com/ferragate/gateway/internal/gwlog"
	"github.com/ferragate/gateway/internal/health"
	"github.com/ferragate/gateway/internal/proxy"
	"github.com/ferragate/gateway/internal/routematch"
	"github.com/ferragate/gateway/internal/server"
	"github.com/ferragate/gateway/internal/tlsconfig"
	"github.com/ferragate/gateway/internal/upstream"
	"github.com/ferragate/gateway/internal/version"
)

const (
	exitOK        = 0
	exitConfigErr = 1
	exitBindErr   = 2
	exitSignal    = 130
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitConfigErr)
	}

	var code int
	switch os.Args[1] {
	case "start":
		code = runStart(os.Args[2:])
	case "validate":
		code = runValidate(os.Args[2:])
	case "init":
		code = runInit(os.Args[2:])
	case "gen-certs":
		code = runGenCerts(os.Args[2:])
	case "--version", "version":
		fmt.Println(version.Value)
		code = exitOK
	default:
		usage()
		code = exitConfigErr
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ferragate <start|validate|init|gen-certs> [flags]")
}

func loadWithOverrides(configPath, hostOverride string, portOverride int) (*config.Config, error) {
	path := configPath
	if path == "" {
		if v := os.Getenv("FERRAGATE_CONFIG"); v != "" {
			path = v
		} else {
			path = config.DefaultConfigFile
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FERRAGATE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("FERRAGATE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("FERRAGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if hostOverride != "" {
		cfg.Server.Host = hostOverride
	}
	if portOverride != 0 {
		cfg.Server.Port = portOverride
	}
	return cfg, nil
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to TOML config")
	host := fs.String("host", "", "override server.host")
	port := fs.Int("port", 0, "override server.port")
	if err := fs.Parse(args); err != nil {
		return exitConfigErr
	}

	cfg, err := loadWithOverrides(*configPath, *host, *port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitConfigErr
	}

	log, err := gwlog.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		return exitConfigErr
	}

	table := routematch.New(cfg.Routes)
	up := upstream.New(upstream.DefaultOptions())
	defer up.CloseIdleConnections()

	proxyHandler := proxy.New(table, up, log)
	healthState := health.NewState()
	topHandler := server.New(proxyHandler, healthState, log)

	sup, err := gateway.New(cfg, topHandler, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		return exitConfigErr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go healthState.RunBackground(bgCtx, config.HealthCheckInterval, config.HealthCheckTimeout)

	log.Info("ferragate starting", "version", version.Value, "routes", len(cfg.Routes), "addr", cfg.ListenAddr())

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(ctx) }()

	select {
	case <-ctx.Done():
		<-runErr
		log.Info("shutdown complete")
		return exitSignal
	case err := <-runErr:
		if err != nil {
			var opErr *net.OpError
			if errors.As(err, &opErr) {
				fmt.Fprintf(os.Stderr, "bind: %v\n", err)
				return exitBindErr
			}
			fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
			return exitBindErr
		}
		return exitOK
	}
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigFile, "path to TOML config")
	if err := fs.Parse(args); err != nil {
		return exitConfigErr
	}

	if _, err := config.Load(*configPath); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintln(os.Stderr, verr.Error())
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		return exitConfigErr
	}
	fmt.Println("ok")
	return exitOK
}

func runInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	output := fs.String("output", config.DefaultConfigFile, "output path")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return exitConfigErr
	}

	if !*force {
		if _, err := os.Stat(*output); err == nil {
			fmt.Fprintf(os.Stderr, "%s already exists; use --force to overwrite\n", *output)
			return exitConfigErr
		}
	}

	if err := os.WriteFile(*output, []byte(config.Example()), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *output, err)
		return exitConfigErr
	}
	fmt.Printf("wrote %s\n", *output)
	return exitOK
}

func runGenCerts(args []string) int {
	fs := flag.NewFlagSet("gen-certs", flag.ContinueOnError)
	hostname := fs.String("hostname", "localhost", "certificate hostname")
	outputDir := fs.String("output-dir", config.DefaultCertDir, "output directory")
	force := fs.Bool("force", false, "overwrite existing cert/key")
	if err := fs.Parse(args); err != nil {
		return exitConfigErr
	}

	certPath := *outputDir + "/" + *hostname + ".crt"
	if !*force {
		if _, err := os.Stat(certPath); err == nil {
			fmt.Fprintf(os.Stderr, "%s already exists; use --force to overwrite\n", certPath)
			return exitConfigErr
		}
	}

	cert, key, err := tlsconfig.GenerateSelfSigned(*hostname, *outputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gen-certs: %v\n", err)
		return exitConfigErr
	}
	fmt.Printf("wrote %s and %s\n", cert, key)
	return exitOK
}
