package sender

import (
	"bytes"
	"context"
	"io"
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
)

func writeFile(t *testing.T, dir, name string, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	return data
}

func drain(t *testing.T, src *source) []protocol.Frame {
	t.Helper()
	var units []protocol.Frame
	for {
		u, err := src.Next()
		if err == io.EOF {
			return units
		}
		require.NoError(t, err)
		u.Payload = append([]byte(nil), u.Payload...)
		units = append(units, u)
	}
}

func TestSourceChunking(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		lengths []uint32
	}{
		{"empty", 0, []uint32{0}},
		{"partial", 10, []uint32{10, 0}},
		{"exact", 2048, []uint32{1024, 1024, 0}},
		{"multi", 2500, []uint32{1024, 1024, 452, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			data := writeFile(t, dir, "f.bin", tt.size)

			src, err := openResource(dir, "f.bin")
			require.NoError(t, err)
			defer src.Close()

			units := drain(t, src)
			require.Len(t, units, len(tt.lengths))

			var got []byte
			for i, u := range units {
				if !u.IsFin() {
					assert.Equal(t, int32(i*protocol.MaxPayload), u.Seq)
				}
				assert.Equal(t, tt.lengths[i], u.Length)
				assert.Equal(t, i == len(units)-1, u.IsFin())
				got = append(got, u.Payload...)
			}
			assert.Equal(t, int32(tt.size), units[len(units)-1].Seq)
			assert.True(t, bytes.Equal(data, got))
		})
	}
}

func TestOpenResourceRefuses(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	outside := t.TempDir()
	writeFile(t, outside, "secret", 4)

	for _, name := range []string{
		"missing.txt",
		"sub",
		"../" + filepath.Base(outside) + "/secret",
		filepath.Join(outside, "secret"),
	} {
		_, err := openResource(dir, name)
		assert.Error(t, err, name)
	}
}

func TestOpenResourceSizeLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(maxResourceSize))
	require.NoError(t, f.Close())

	src, err := openResource(dir, "big.bin")
	require.NoError(t, err)
	require.NoError(t, src.Close())

	require.NoError(t, os.Truncate(path, maxResourceSize+1))
	_, err = openResource(dir, "big.bin")
	assert.ErrorContains(t, err, "too large")
}

func newTestServer(t *testing.T, root string, retries int) *Server {
	t.Helper()
	srv, err := NewServer(context.Background(), config.SenderConfig{
		Listen:     "127.0.0.1:0",
		Root:       root,
		Timeout:    20 * time.Millisecond,
		MaxRetries: retries,
	}, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestTransferNotFound(t *testing.T) {
	srv := newTestServer(t, t.TempDir(), 3)

	peer, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()

	summary, err := srv.Transfer(context.Background(), peer.LocalAddr(), "nope.txt")
	assert.ErrorIs(t, err, core.ErrResourceNotFound)
	assert.Equal(t, report.OutcomeNotFound, summary.Outcome)

	buf := make([]byte, protocol.MaxDatagram)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := peer.ReadFrom(buf)
	require.NoError(t, err)
	f, err := protocol.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, int32(0), f.Seq)
	assert.True(t, f.IsFin())
	assert.False(t, f.IsCorrupted())
}

func TestTransferRetriesExhausted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "f.bin", 100)
	srv := newTestServer(t, root, 2)

	silent, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	summary, err := srv.Transfer(context.Background(), silent.LocalAddr(), "f.bin")
	assert.ErrorIs(t, err, core.ErrRetriesExhausted)
	assert.Equal(t, report.OutcomeFailed, summary.Outcome)
	assert.Equal(t, 2, summary.Retransmissions)
	assert.Equal(t, 3, summary.FramesSent)
}

func TestTransferIgnoresStaleAndCorruptAcks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "f.bin", 10)
	srv := newTestServer(t, root, 5)

	peer, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, protocol.MaxDatagram)
		for {
			peer.SetReadDeadline(time.Now().Add(2 * time.Second))
			n, from, err := peer.ReadFrom(buf)
			if err != nil {
				return
			}
			f, err := protocol.Decode(buf[:n])
			if err != nil || f.IsCorrupted() {
				continue
			}
			stale := protocol.NewAck(protocol.NewData(f.Seq-1024, nil, false), false)
			peer.WriteTo(protocol.Encode(stale), from)
			bad := protocol.NewAck(f, f.IsFin())
			bad.Corrupted = protocol.FlagSet
			peer.WriteTo(protocol.Encode(bad), from)
			peer.WriteTo(protocol.Encode(protocol.NewAck(f, f.IsFin())), from)
			if f.IsFin() {
				return
			}
		}
	}()

	summary, err := srv.Transfer(context.Background(), peer.LocalAddr(), "f.bin")
	require.NoError(t, err)
	<-done
	assert.Equal(t, report.OutcomeCompleted, summary.Outcome)
	assert.Equal(t, int64(10), summary.Bytes)
	assert.Equal(t, 2, summary.AcksCorrupted)
	assert.Zero(t, summary.Retransmissions)
}

func TestServeStopsOnCancel(t *testing.T) {
	srv := newTestServer(t, t.TempDir(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
