// Command onepass is a CLI client for the onepass service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	passesv1 "github.com/and161185/onepass/internal/api/passesv1"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "onepass")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "onepass")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// tokenExpiry reads exp from a JWT without verifying it; the server verifies.
func tokenExpiry(tok string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no expiry")
	}
	return claims.ExpiresAt.Time, nil
}

// ---- grpc dial ----

type bearerCreds struct {
	token     string
	plaintext bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return !b.plaintext }

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

type dialConfig struct {
	addr      string
	caPath    string
	insecure  bool
	plaintext bool
}

func dial(ctx context.Context, dc dialConfig, bearer string) (*grpc.ClientConn, *passesv1.PassesClient, error) {
	creds := insecure.NewCredentials()
	if !dc.plaintext {
		var err error
		if creds, err = loadTLS(dc.caPath, dc.insecure); err != nil {
			return nil, nil, err
		}
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, plaintext: dc.plaintext}))
	}
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	cc, err := grpc.DialContext(ctx, dc.addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, passesv1.NewPassesClient(cc), nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `onepass CLI
Usage:
  onepass -addr HOST:PORT [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  login      -token <jwt> | -jwt-key <key> -uid <uid> [-ttl 1h]   (saves token)
  pass                                   current pass
  ensure                                 get or create a pass
  revoke     -reason <text>
  scan       -uid <owner> -sig <signature>
  watch                                  stream pass changes until interrupted
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS/auth for RPC calls.
func main() {
	// global flags
	var dc dialConfig
	flag.StringVar(&dc.addr, "addr", "localhost:8443", "server addr")
	flag.StringVar(&dc.caPath, "cacert", "", "CA cert (PEM)")
	flag.BoolVar(&dc.insecure, "insecure", false, "skip cert verify (dev)")
	flag.BoolVar(&dc.plaintext, "plaintext", false, "no TLS (dev server only)")
	timeout := flag.Duration("timeout", 30*time.Second, "deadline for unary calls")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	switch cmd {
	case "version":
		fmt.Printf("onepass %s (%s)\n", version, buildDate)
		return
	case "login":
		if err := login(args); err != nil {
			fail(err)
		}
		return
	}

	tok, err := loadToken()
	if err != nil {
		fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cmd != "watch" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	cc, cli, err := dial(ctx, dc, tok)
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	if err := runCommand(ctx, cli, cmd, args, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			usage()
		}
		fail(err)
	}
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
