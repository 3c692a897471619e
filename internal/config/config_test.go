package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_FlagsAndDefaults(t *testing.T) {
	c, err := Load([]string{"--jwt-key", "k", "--signing-secret", "0123456789abcdef"})
	require.NoError(t, err)
	require.Equal(t, ":8443", c.Addr)
	require.Equal(t, 10*time.Second, c.ProvisionWait)
	require.Equal(t, 5, c.ScanMaxFails)
	require.Equal(t, "onepass", c.RedisNamespace)
	require.Empty(t, c.DSN)
	require.False(t, c.Plaintext())
}

func TestLoad_EnvDefaults(t *testing.T) {
	t.Setenv("ONEPASS_JWT_KEY", "env-key")
	t.Setenv("ONEPASS_SIGNING_SECRET", "env-secret-0123456789")
	t.Setenv("ONEPASS_PROVISION_WAIT", "3s")
	t.Setenv("ONEPASS_SCAN_MAX_FAILS", "9")
	t.Setenv("ONEPASS_DEV", "true")
	t.Setenv("ONEPASS_TLS_CERT", "")

	c, err := Load([]string{"--tls-cert", ""})
	require.NoError(t, err)
	require.Equal(t, "env-key", c.JWTKey)
	require.Equal(t, 3*time.Second, c.ProvisionWait)
	require.Equal(t, 9, c.ScanMaxFails)
	require.True(t, c.Dev)
	require.True(t, c.Plaintext())

	c, err = Load([]string{"--provision-wait", "1s"})
	require.NoError(t, err)
	require.Equal(t, time.Second, c.ProvisionWait, "flags override the environment")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	ok := Config{JWTKey: "k", SigningSecret: "0123456789abcdef", ProvisionWait: time.Second, TLSCert: "c", TLSKey: "k"}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.JWTKey = ""
	bad.SigningSecret = "short"
	err := bad.Validate()
	require.ErrorContains(t, err, "jwt")
	require.ErrorContains(t, err, "signing secret")

	bad = ok
	bad.RedisAddr = "localhost:6379"
	require.ErrorContains(t, bad.Validate(), "shared store")

	bad = ok
	bad.TLSCert = ""
	require.ErrorContains(t, bad.Validate(), "TLS")
	bad.Dev = true
	require.NoError(t, bad.Validate())
	require.True(t, bad.Plaintext())
}

func TestLoad_BadFlag(t *testing.T) {
	_, err := Load([]string{"--no-such-flag"})
	require.Error(t, err)
}
