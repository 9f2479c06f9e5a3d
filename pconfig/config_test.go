package pconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "setting.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validConfig = `{
	"libpath": "/usr/lib/ample.so",
	"transport_opts": {"cert_path": "cert.pem", "key_path": "key.pem", "fqdn": "ample.internal"},
	"bind_addr": "0.0.0.0:9000"
}`

func TestLoadValidConfigAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, uint32(1000), cfg.AccountCoalescerDurationUS)
}

func TestLoadRejectsMissingLibpath(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"transport_opts": {"cert_path": "cert.pem", "key_path": "key.pem", "fqdn": "ample.internal"},
		"bind_addr": "0.0.0.0:9000"
	}`))
	assert.ErrorContains(t, err, "libpath")
}

func TestLoadRejectsMissingCertOrKey(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"libpath": "/usr/lib/ample.so",
		"transport_opts": {"fqdn": "ample.internal"},
		"bind_addr": "0.0.0.0:9000"
	}`))
	assert.ErrorContains(t, err, "cert_path")
}

func TestLoadRejectsMissingFQDN(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"libpath": "/usr/lib/ample.so",
		"transport_opts": {"cert_path": "cert.pem", "key_path": "key.pem"},
		"bind_addr": "0.0.0.0:9000"
	}`))
	assert.ErrorContains(t, err, "fqdn")
}

func TestLoadRejectsMissingBindAddr(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"libpath": "/usr/lib/ample.so",
		"transport_opts": {"cert_path": "cert.pem", "key_path": "key.pem", "fqdn": "ample.internal"}
	}`))
	assert.ErrorContains(t, err, "bind_addr")
}

// TestLoadRejectsZstdAndLz4Together covers spec Open Question 1: requesting
// both compressors at once is a Configuration error, not silently resolved.
func TestLoadRejectsZstdAndLz4Together(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"libpath": "/usr/lib/ample.so",
		"transport_opts": {"cert_path": "cert.pem", "key_path": "key.pem", "fqdn": "ample.internal"},
		"bind_addr": "0.0.0.0:9000",
		"transport_cfg": {"use_zstd_compression": true, "use_lz4_compression": true}
	}`))
	assert.ErrorContains(t, err, "mutually exclusive")
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"libpath": "/usr/lib/ample.so",
		"transport_opts": {"cert_path": "cert.pem", "key_path": "key.pem", "fqdn": "ample.internal"},
		"bind_addr": "0.0.0.0:9000",
		"log_level": "verbose"
	}`))
	assert.ErrorContains(t, err, "log_level")
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Error(t, err)
}
