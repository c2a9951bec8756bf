// Command demotools runs a small MCP tool server for trying aemassist
// without an AEM instance.
//
//	demotools -transport stdio
//	demotools -transport http -addr :8080
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/MrWong99/aemassist/internal/demotools"
)

func main() {
	os.Exit(run())
}

func run() int {
	transport := flag.String("transport", "http", "stdio or http (streamable HTTP)")
	addr := flag.String("addr", ":8080", "listen address for the http transport")
	flag.Parse()

	// stdout carries the protocol on stdio, so logs go to stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	s := demotools.NewServer(demotools.New(nil))

	switch *transport {
	case "stdio":
		if err := server.ServeStdio(s); err != nil {
			slog.Error("stdio server error", "err", err)
			return 1
		}
		return 0
	case "http":
		return serveHTTP(s, *addr)
	default:
		fmt.Fprintf(os.Stderr, "demotools: unknown transport %q\n", *transport)
		return 2
	}
}

func serveHTTP(s *server.MCPServer, addr string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpSrv := server.NewStreamableHTTPServer(s)
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Start(addr) }()
	slog.Info("demo tool server listening", "addr", addr, "endpoint", "/mcp")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown error", "err", err)
	}
	return 0
}
