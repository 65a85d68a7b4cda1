package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hannahoo/UCLA-CS-118/internal/config"
	"github.com/hannahoo/UCLA-CS-118/internal/core"
	"github.com/hannahoo/UCLA-CS-118/internal/protocol"
	"github.com/hannahoo/UCLA-CS-118/internal/report"
	"github.com/hannahoo/UCLA-CS-118/internal/sender"
	"github.com/hannahoo/UCLA-CS-118/internal/trace"
)

func TestApplyReceiveArgs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, receiveCmd.ParseFlags([]string{"--output-dir", dir, "--read-timeout", "2s"}))

	cfg := config.Default()
	resource, err := applyReceiveArgs(receiveCmd, cfg, []string{"localhost", "5000", "index.html", "0.25", "0.5"})
	require.NoError(t, err)

	assert.Equal(t, "index.html", resource)
	assert.Equal(t, "localhost", cfg.Receiver.Host)
	assert.Equal(t, 5000, cfg.Receiver.Port)
	assert.Equal(t, 0.25, cfg.Receiver.LossProbability)
	assert.Equal(t, 0.5, cfg.Receiver.CorruptionProbability)
	assert.Equal(t, dir, cfg.Receiver.OutputDir)
	assert.Equal(t, 2*time.Second, cfg.Receiver.ReadTimeout)
}

func TestApplyReceiveArgsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"port not a number", []string{"h", "x", "f", "0", "0"}},
		{"port zero", []string{"h", "0", "f", "0", "0"}},
		{"port too large", []string{"h", "70000", "f", "0", "0"}},
		{"loss not a number", []string{"h", "1", "f", "a", "0"}},
		{"loss above one", []string{"h", "1", "f", "1.5", "0"}},
		{"corruption negative", []string{"h", "1", "f", "0", "-0.1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := applyReceiveArgs(receiveCmd, config.Default(), tt.args)
			assert.ErrorIs(t, err, core.ErrConfigInvalid)
			assert.Equal(t, 2, exitCode(err))
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(core.ErrResourceNotFound))
	assert.Equal(t, 2, exitCode(fmt.Errorf("x: %w", core.ErrConfigInvalid)))
}

func TestRunValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rdt.yml")
	require.NoError(t, os.WriteFile(path, []byte("rdt:\n  sender:\n    timeout: 2s\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, runValidate(path, &out))
	assert.Contains(t, out.String(), "VALID")
	assert.Contains(t, out.String(), "timeout: 2s")

	out.Reset()
	require.NoError(t, os.WriteFile(path, []byte("rdt:\n  sender:\n    loss_probability: 3\n"), 0o644))
	err := runValidate(path, &out)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
	assert.Contains(t, out.String(), "INVALID")
}

func TestRunInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.pcap")
	rec, err := trace.Create(path)
	require.NoError(t, err)
	src := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
	dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}
	require.NoError(t, rec.Record(src, dst, []byte("index.html")))
	require.NoError(t, rec.Record(dst, src, protocol.Encode(protocol.NewData(0, []byte("hi"), false))))
	require.NoError(t, rec.Close())

	var out bytes.Buffer
	require.NoError(t, runInspect(path, 5000, &out))
	assert.Contains(t, out.String(), `raw "index.html"`)
	assert.Contains(t, out.String(), "seq=0 ack=0 fin=0 crc=0 len=2")
	assert.Contains(t, out.String(), "2 datagram(s)")

	assert.Error(t, runInspect(filepath.Join(t.TempDir(), "none.pcap"), 0, &out))
}

func TestRunReceive(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello rdt"), 0o644))

	srv, err := sender.NewServer(context.Background(), config.SenderConfig{
		Listen: "127.0.0.1:0", Root: root, Timeout: 50 * time.Millisecond, MaxRetries: 5,
	}, sender.Options{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx)
	}()
	defer func() {
		cancel()
		<-done
		srv.Close()
	}()

	cfg := config.Default().Receiver
	cfg.Host = "127.0.0.1"
	cfg.Port = srv.Addr().(*net.UDPAddr).Port
	cfg.OutputDir = t.TempDir()
	cfg.ReadTimeout = 5 * time.Second

	reporter, err := report.NewConsoleReporter("json", &bytes.Buffer{}, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runReceive(context.Background(), cfg, "a.txt", reporter, &out))
	assert.Contains(t, out.String(), "9 bytes")
	assert.Equal(t, uint64(1), reporter.Reported())

	got, err := os.ReadFile(filepath.Join(cfg.OutputDir, "new_a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello rdt", string(got))

	out.Reset()
	err = runReceive(context.Background(), cfg, "missing.txt", reporter, &out)
	assert.ErrorIs(t, err, core.ErrResourceNotFound)
	assert.Contains(t, out.String(), "file not found")
}
