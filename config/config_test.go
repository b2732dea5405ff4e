package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qbipc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadParsesSizesAndTransports(t *testing.T) {
	path := writeTempConfig(t, `
rings:
  - name: events
    bytes: 1MB
    overwrite: true
services:
  - name: control
    transport: shm
    max_msg_size: 64KB
    max_buffer_size: 1MB
    rate_limit: 2
    poll_priority: high
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Rings, 1)
	require.Equal(t, "events", cfg.Rings[0].Name)
	require.Equal(t, datasize.MB, cfg.Rings[0].Bytes)
	require.True(t, cfg.Rings[0].Overwrite)

	require.Len(t, cfg.Services, 1)
	require.Equal(t, "shm", cfg.Services[0].Transport)
	require.Equal(t, 64*datasize.KB, cfg.Services[0].MaxMsgSize)
}

func TestValidateRejectsUnknownTransport(t *testing.T) {
	c := &Config{Services: []Service{{Name: "x", Transport: "carrier-pigeon", MaxMsgSize: datasize.KB}}}
	require.Error(t, c.Validate())
}

func TestValidateRejectsZeroRingBytes(t *testing.T) {
	c := &Config{Rings: []Ring{{Name: "x"}}}
	require.Error(t, c.Validate())
}

func TestValidateRejectsMissingNames(t *testing.T) {
	require.Error(t, (&Config{Rings: []Ring{{Bytes: datasize.KB}}}).Validate())
	require.Error(t, (&Config{Services: []Service{{Transport: "shm", MaxMsgSize: datasize.KB}}}).Validate())
}
