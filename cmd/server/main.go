package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	stdnet "net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Guillerming/calavera-arena-game-sub000/internal/config"
	"github.com/Guillerming/calavera-arena-game-sub000/internal/server"
)

const tickInterval = 100 * time.Millisecond

func main() {
	config.InitConfig()
	cfg := config.LoadServer()

	relay := server.NewRelay(server.Options{
		SkullNormal: cfg.SkullNormal,
		SkullEvent:  cfg.SkullEvent,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go relay.Run(ctx, tickInterval, cfg.SkullBroadcast)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWebSocket(relay))
	mux.HandleFunc("/api/status", server.HandleStatus(relay))

	// Serve static files from the web directory when present
	if _, err := os.Stat(cfg.StaticDir); err == nil {
		log.Printf("Serving static files from: %s", cfg.StaticDir)
		fs := http.FileServer(http.Dir(cfg.StaticDir))
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/" {
				http.ServeFile(w, r, filepath.Join(cfg.StaticDir, "index.html"))
				return
			}
			fs.ServeHTTP(w, r)
		})
	} else {
		log.Printf("Static directory %s not found, serving API only", cfg.StaticDir)
	}

	ln, err := listen(cfg.Port)
	if err != nil {
		log.Fatal("Server error:", err)
	}
	port := ln.Addr().(*stdnet.TCPAddr).Port

	srv := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Server starting on :%d", port)
	log.Printf("WebSocket endpoint: ws://localhost:%d/ws", port)
	log.Printf("Status: http://localhost:%d/api/status", port)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Server error:", err)
	}
}

// listen binds port, falling back to port+1 once if it is taken.
func listen(port int) (stdnet.Listener, error) {
	ln, err := stdnet.Listen("tcp", fmt.Sprintf(":%d", port))
	if err == nil {
		return ln, nil
	}
	log.Printf("Port %d unavailable (%v), trying %d", port, err, port+1)
	return stdnet.Listen("tcp", fmt.Sprintf(":%d", port+1))
}
