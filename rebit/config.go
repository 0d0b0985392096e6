package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/rebit/internal/correlation"
	"github.com/animus-labs/rebit/internal/platform/env"
)

const serviceName = "rebit"

const (
	storeMinIO  = "minio"
	storeMemory = "memory"
)

type config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Manifest        string
	Excluded        []string
	StoreBackend    string
	Retention       time.Duration
	SweepInterval   time.Duration
	PollWait        time.Duration
	AuditEnabled    bool
	PublicURL       string
}

func configFromEnv() (config, error) {
	shutdownTimeout, err := env.Duration("REBIT_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return config{}, err
	}
	retention, err := env.Duration("REBIT_RETENTION", correlation.DefaultRetention)
	if err != nil {
		return config{}, err
	}
	sweepInterval, err := env.Duration("REBIT_SWEEP_INTERVAL", 24*time.Hour)
	if err != nil {
		return config{}, err
	}
	pollWait, err := env.Duration("REBIT_POLL_WAIT", 5*time.Second)
	if err != nil {
		return config{}, err
	}
	auditEnabled, err := env.Bool("REBIT_AUDIT_ENABLED", false)
	if err != nil {
		return config{}, err
	}

	addr := env.String("REBIT_HTTP_ADDR", ":8080")
	cfg := config{
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
		Manifest:        env.String("REBIT_MANIFEST", "functions.yaml"),
		Excluded:        env.List("REBIT_EXCLUDED_FUNCTIONS", nil),
		StoreBackend:    strings.ToLower(env.String("REBIT_STORE_BACKEND", storeMinIO)),
		Retention:       retention,
		SweepInterval:   sweepInterval,
		PollWait:        pollWait,
		AuditEnabled:    auditEnabled,
		PublicURL:       env.String("REBIT_PUBLIC_URL", localURL(addr)),
	}
	if err := cfg.Validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("REBIT_HTTP_ADDR is required")
	}
	if strings.TrimSpace(c.Manifest) == "" {
		return errors.New("REBIT_MANIFEST is required")
	}
	switch c.StoreBackend {
	case storeMinIO, storeMemory:
	default:
		return fmt.Errorf("REBIT_STORE_BACKEND must be one of: minio, memory (got %q)", c.StoreBackend)
	}
	if c.Retention <= 0 {
		return errors.New("REBIT_RETENTION must be positive")
	}
	if c.SweepInterval < 0 {
		return errors.New("REBIT_SWEEP_INTERVAL must not be negative")
	}
	if c.PollWait <= 0 {
		return errors.New("REBIT_POLL_WAIT must be positive")
	}
	return nil
}

// localURL derives the host's own base URL from its listen address.
func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
