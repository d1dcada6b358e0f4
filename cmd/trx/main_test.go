package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

func TestRun_ExitCodes(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		want       int
		errContain string
	}{
		{"unexpected argument", []string{"extra"}, exitSetup, "unknown command"},
		{"unknown flag", []string{"--nope"}, exitSetup, "unknown flag"},
		{"conflicting modes", []string{"-x", "1@5000#127.0.0.1:5000", "-S", "9"}, exitSetup, "mutually exclusive"},
		{"malformed list", []string{"-x", "1@5000"}, exitSetup, "malformed"},
		{"bad frame", []string{"-f", "1000"}, exitSetup, "invalid frame size"},
		{"opus transmit at 44.1 kHz", []string{"-e", "opus", "-r", "44100", "-f", "441"}, exitSetup, "opus encodes"},
		{"adjacent receive ports", []string{"-x", "1001@5000#127.0.0.1:6000,1002@5001#127.0.0.1:6001"}, exitSetup, "RTCP port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tt.args, &stdout, &stderr)
			assert.Equal(t, tt.want, code)
			assert.Contains(t, stderr.String(), tt.errContain)
		})
	}
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--help"}, &stdout, &stderr)

	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), "Usage:")
	assert.Contains(t, stdout.String(), "--extended")
	assert.Empty(t, stderr.String())
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--version"}, &stdout, &stderr)

	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), version)
}

func TestRun_SetupFailure(t *testing.T) {
	port := freeUDPPort(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-x", fmt.Sprintf("1@%d#127.0.0.1:%d", port, port),
		"-C", "wav:" + filepath.Join(t.TempDir(), "missing.wav"),
		"--no-rtcp", "-v", "0",
	}, &stdout, &stderr)

	assert.Equal(t, exitSetup, code)
	assert.Contains(t, stderr.String(), "capture device")
}

func TestRun_CleanStop(t *testing.T) {
	port := freeUDPPort(t)
	pidFile := filepath.Join(t.TempDir(), "trx.pid")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{
		"-x", fmt.Sprintf("1@%d#127.0.0.1:%d", port, port),
		"-r", "8000", "-c", "1", "-f", "160",
		"--no-rtcp", "-v", "0",
		"--stats-interval", "100ms",
		"-D", pidFile,
	}, &stdout, &stderr)

	assert.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), fmt.Sprintf(`"1@%d#127.0.0.1:%d"`, port, port))
	assert.NoFileExists(t, pidFile, "the PID file is removed on exit")
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trx.pid")
	require.NoError(t, writePIDFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(os.Getpid()), strings.TrimSpace(string(data)))

	assert.Error(t, writePIDFile(filepath.Join(t.TempDir(), "missing", "trx.pid")))
}
