package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sunsetdb/pkg/api"
	"sunsetdb/pkg/config"
	"sunsetdb/pkg/core"
	"sunsetdb/pkg/network"
	"sunsetdb/pkg/storage"
)

// main 是 Sunset 服务器的入口。
func main() {
	configPath := flag.String("config", "", "Path to YAML config (default: configs/sunset.yaml or sunset.yaml)")
	dbPath := flag.String("db", "", "Log file path, overrides storage.path")
	tcpAddr := flag.String("addr", "", "TCP listen address, overrides server.tcp_addr")
	create := flag.Bool("create", false, "Create the log file if it does not exist")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}
	if *tcpAddr != "" {
		cfg.Server.TCPAddr = *tcpAddr
	}
	if *create {
		cfg.Storage.CreateIfMissing = true
	}

	if cfg.Storage.CreateIfMissing {
		created, err := storage.EnsureLogFile(cfg.Storage.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create log file: %v\n", err)
			os.Exit(1)
		}
		if created {
			log.Printf("[Server] Created empty log %s", cfg.Storage.Path)
		}
	}

	store, err := storage.Open(cfg.Storage.Path, cfg.StoreOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}
	engine := core.NewEngine(store, cfg.Storage.QueueSize)

	tcp := network.NewTCPServer(engine, cfg.Server.RequestTimeout, cfg.Protocol.MaxLineSize)
	var httpSrv *api.Server
	if cfg.Server.HTTPAddr != "" {
		httpSrv = api.NewServer(engine, cfg.Server.RequestTimeout)
		go func() {
			if err := httpSrv.Start(cfg.Server.HTTPAddr); err != nil {
				log.Printf("[API] Server error: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- tcp.Start(cfg.Server.TCPAddr) }()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		exitCode = 1
	case <-engine.Done():
		fmt.Fprintf(os.Stderr, "Storage engine stopped: %v\n", engine.Err())
		exitCode = 1
	}

	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		httpSrv.Shutdown(ctx)
		cancel()
	}
	tcp.Close()
	if err := engine.Close(); err != nil {
		log.Printf("[Server] Close store: %v", err)
		exitCode = 1
	}
	os.Exit(exitCode)
}
