package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// LOADING AND OVERRIDES
// ============================================================================

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50051, cfg.Server.Port)
	assert.Equal(t, 131072, cfg.Server.MaxEnvBytes)
	assert.Equal(t, 300, cfg.Dedupe.TTLSeconds)
	assert.Equal(t, 50000, cfg.Dedupe.MaxEntries)
	assert.Equal(t, "auto", cfg.Server.Overload)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Dedupe.TTL())
	assert.Equal(t, 72*time.Hour, cfg.WAL.Retention())
	assert.Equal(t, 30*time.Minute, cfg.Correlate.Window())
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 6000
  overload: "off"
wal:
  path: /var/lib/amoskys/wal.db
store:
  backend: postgres
  dsn: postgres://amoskys@localhost/telemetry?sslmode=disable
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, "off", cfg.Server.Overload)
	assert.Equal(t, "/var/lib/amoskys/wal.db", cfg.WAL.Path)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	// Sections the file does not mention keep their defaults.
	assert.Equal(t, 131072, cfg.Server.MaxEnvBytes)
	assert.Equal(t, 50000, cfg.Dedupe.MaxEntries)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 6000\n"), 0o644))

	t.Setenv("BUS_SERVER_PORT", "7000")
	t.Setenv("BUS_MAX_ENV_BYTES", "4096")
	t.Setenv("BUS_DEDUPE_TTL_SEC", "60")
	t.Setenv("BUS_DEDUPE_MAX", "1000")
	t.Setenv("EVENTBUS_REQUIRE_CLIENT_AUTH", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 4096, cfg.Server.MaxEnvBytes)
	assert.Equal(t, 60, cfg.Dedupe.TTLSeconds)
	assert.Equal(t, 1000, cfg.Dedupe.MaxEntries)
	assert.True(t, cfg.TLS.RequireClientAuth)
}

func TestBadEnvValueRejected(t *testing.T) {
	t.Setenv("BUS_SERVER_PORT", "not-a-port")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUS_SERVER_PORT")
}

func TestValidationCatchesBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 99999\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestMissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestOverloadEnabled(t *testing.T) {
	assert.True(t, ServerConfig{Overload: "on"}.OverloadEnabled())
	assert.False(t, ServerConfig{Overload: "off"}.OverloadEnabled())

	t.Setenv("BUS_OVERLOAD", "")
	assert.False(t, ServerConfig{Overload: "auto"}.OverloadEnabled())
	t.Setenv("BUS_OVERLOAD", "1")
	assert.True(t, ServerConfig{Overload: "auto"}.OverloadEnabled())
	t.Setenv("BUS_OVERLOAD", "on")
	assert.True(t, ServerConfig{Overload: "auto"}.OverloadEnabled())
	t.Setenv("BUS_OVERLOAD", "off")
	assert.False(t, ServerConfig{Overload: "auto"}.OverloadEnabled())
	// Explicit setting ignores the environment.
	assert.False(t, ServerConfig{Overload: "off"}.OverloadEnabled())
}

// ============================================================================
// TRUST MAP
// ============================================================================

func writeRawKey(t *testing.T, dir, name string, key ed25519.PublicKey) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, key, 0o644))
	return path
}

func writePEMKey(t *testing.T, dir, name string, key ed25519.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(key)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	body := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	require.NoError(t, os.WriteFile(path, body, 0o644))
	return path
}

func TestLoadTrustMapRawAndPEM(t *testing.T) {
	dir := t.TempDir()
	pubA, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pubB, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	rawPath := writeRawKey(t, dir, "agent-a.key", pubA)
	pemPath := writePEMKey(t, dir, "agent-b.pem", pubB)

	mapPath := filepath.Join(dir, "trust_map.yaml")
	body := "agents:\n  agent-a: " + rawPath + "\n  agent-b: " + pemPath + "\n"
	require.NoError(t, os.WriteFile(mapPath, []byte(body), 0o644))

	tm, err := LoadTrustMap(mapPath)
	require.NoError(t, err)
	assert.Equal(t, 2, tm.Len())

	gotA, ok := tm.Get("agent-a")
	require.True(t, ok)
	assert.Equal(t, pubA, gotA)

	gotB, ok := tm.Get("agent-b")
	require.True(t, ok)
	assert.Equal(t, pubB, gotB)

	assert.False(t, tm.Known("agent-x"))
}

func TestLoadTrustMapMissingFile(t *testing.T) {
	tm, err := LoadTrustMap(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err, "relaxed deployments run without a trust map")
	assert.Zero(t, tm.Len())
}

func TestLoadTrustMapBadKey(t *testing.T) {
	dir := t.TempDir()
	short := filepath.Join(dir, "short.key")
	require.NoError(t, os.WriteFile(short, []byte("too-short"), 0o644))

	mapPath := filepath.Join(dir, "trust_map.yaml")
	require.NoError(t, os.WriteFile(mapPath, []byte("agents:\n  bad: "+short+"\n"), 0o644))

	_, err := LoadTrustMap(mapPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestLoadTrustMapMissingKeyFile(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "trust_map.yaml")
	require.NoError(t, os.WriteFile(mapPath,
		[]byte("agents:\n  ghost: "+filepath.Join(dir, "nope.key")+"\n"), 0o644))

	_, err := LoadTrustMap(mapPath)
	require.Error(t, err)
}
