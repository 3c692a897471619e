// Package config loads server settings from flags, falling back to ONEPASS_* environment variables.
package config

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds server settings.
type Config struct {
	Addr      string
	AdminAddr string

	DSN            string // empty selects the in-memory store
	RedisAddr      string // empty selects the in-process notifier
	RedisPassword  string
	RedisNamespace string

	JWTKey        string
	SigningSecret string
	ProvisionWait time.Duration

	ScanWindow   time.Duration
	ScanMaxFails int
	ScanBlockFor time.Duration

	TLSCert string
	TLSKey  string
	Dev     bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return def
}

func getenvInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return def
}

func getenvBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

// Load parses args (without the program name) and validates the result.
func Load(args []string) (Config, error) {
	var c Config
	fs := flag.NewFlagSet("onepass-server", flag.ContinueOnError)
	fs.StringVar(&c.Addr, "addr", getenv("ONEPASS_ADDR", ":8443"), "gRPC listen address")
	fs.StringVar(&c.AdminAddr, "admin-addr", getenv("ONEPASS_ADMIN_ADDR", ":9090"), "health and metrics listen address")
	fs.StringVar(&c.DSN, "dsn", getenv("ONEPASS_DSN", ""), "PostgreSQL DSN; empty keeps passes in memory")
	fs.StringVar(&c.RedisAddr, "redis-addr", getenv("ONEPASS_REDIS_ADDR", ""), "Redis address for change notifications")
	fs.StringVar(&c.RedisPassword, "redis-password", getenv("ONEPASS_REDIS_PASSWORD", ""), "Redis password")
	fs.StringVar(&c.RedisNamespace, "redis-namespace", getenv("ONEPASS_REDIS_NAMESPACE", "onepass"), "Redis channel prefix")
	fs.StringVar(&c.JWTKey, "jwt-key", getenv("ONEPASS_JWT_KEY", ""), "HS256 signing key (required)")
	fs.StringVar(&c.SigningSecret, "signing-secret", getenv("ONEPASS_SIGNING_SECRET", ""), "master secret for pass signatures (required)")
	fs.DurationVar(&c.ProvisionWait, "provision-wait", getenvDuration("ONEPASS_PROVISION_WAIT", 10*time.Second), "max wait for a provisioned pass")
	fs.DurationVar(&c.ScanWindow, "scan-window", getenvDuration("ONEPASS_SCAN_WINDOW", 15*time.Minute), "failed scan counting window")
	fs.IntVar(&c.ScanMaxFails, "scan-max-fails", getenvInt("ONEPASS_SCAN_MAX_FAILS", 5), "failed scans before lockout")
	fs.DurationVar(&c.ScanBlockFor, "scan-block-for", getenvDuration("ONEPASS_SCAN_BLOCK_FOR", 15*time.Minute), "scanner lockout duration")
	fs.StringVar(&c.TLSCert, "tls-cert", getenv("ONEPASS_TLS_CERT", "cert.pem"), "TLS certificate (PEM)")
	fs.StringVar(&c.TLSKey, "tls-key", getenv("ONEPASS_TLS_KEY", "key.pem"), "TLS private key (PEM)")
	fs.BoolVar(&c.Dev, "dev", getenvBool("ONEPASS_DEV"), "dev mode: reflection, plaintext when no TLS files")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

// Validate checks required settings and combinations.
func (c Config) Validate() error {
	var problems []error
	if c.JWTKey == "" {
		problems = append(problems, errors.New("missing jwt signing key (--jwt-key)"))
	}
	if len(c.SigningSecret) < 16 {
		problems = append(problems, errors.New("signing secret must be at least 16 bytes (--signing-secret)"))
	}
	if c.ProvisionWait <= 0 {
		problems = append(problems, errors.New("provision wait must be positive"))
	}
	if c.RedisAddr != "" && c.DSN == "" {
		problems = append(problems, errors.New("redis notifications need a shared store (--dsn)"))
	}
	if !c.Dev && (c.TLSCert == "" || c.TLSKey == "") {
		problems = append(problems, errors.New("TLS cert and key are required outside dev mode"))
	}
	return errors.Join(problems...)
}

// Plaintext reports whether the gRPC listener runs without TLS.
func (c Config) Plaintext() bool {
	return c.Dev && (c.TLSCert == "" || c.TLSKey == "")
}
