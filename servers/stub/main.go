// servers/stub/main.go
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mwiater/stochprobe/internal/stubserver"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	stub, err := stubserver.New(cfg)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           stub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("stub config: mode=%s max=%d choices=%v fail_every=%d rate_limit_after=%d latency=%s",
		cfg.Mode, cfg.Max, cfg.Choices, cfg.FailEvery, cfg.RateLimitAfter, cfg.Latency)
	log.Printf("listening on %s (point provider.url at http://%s/v1)", srv.Addr, srv.Addr)
	log.Fatal(srv.ListenAndServe())
}

// loadConfig reads servers/stub/stub.yml, or the file named by
// STOCHPROBE_STUB_CONFIG. A missing file yields the defaults.
func loadConfig() (stubserver.Config, error) {
	cfg := stubserver.Config{Host: "127.0.0.1", Port: 8089}

	path := os.Getenv("STOCHPROBE_STUB_CONFIG")
	if path == "" {
		path = filepath.Join("servers", "stub", "stub.yml")
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
