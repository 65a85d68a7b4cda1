// Package transport frames rdt datagrams over a packet connection and
// simulates loss and corruption on send.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hannahoo/UCLA-CS-118/internal/core"
	"github.com/hannahoo/UCLA-CS-118/internal/log"
	"github.com/hannahoo/UCLA-CS-118/internal/metrics"
	"github.com/hannahoo/UCLA-CS-118/internal/protocol"
	"github.com/hannahoo/UCLA-CS-118/internal/trace"
)

// Options configures a Transport.
type Options struct {
	Role        string        // metrics and log label, e.g. metrics.RoleReceiver
	ReadTimeout time.Duration // 0 blocks until a datagram arrives
	FilterPeer  bool          // drop datagrams whose source is not the peer
	Sampler     Sampler       // nil uses DefaultSampler
	Recorder    *trace.Recorder
	Logger      log.Logger
}

// Transport owns one packet connection for the lifetime of a session.
// It is not safe for concurrent use.
type Transport struct {
	conn net.PacketConn
	peer net.Addr
	opts Options
	buf  []byte
}

// New wraps conn. peer may be nil until the first datagram names it.
func New(conn net.PacketConn, peer net.Addr, opts Options) *Transport {
	if opts.Sampler == nil {
		opts.Sampler = DefaultSampler
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Role == "" {
		opts.Role = "unknown"
	}
	return &Transport{
		conn: conn,
		peer: peer,
		opts: opts,
		buf:  make([]byte, protocol.MaxDatagram),
	}
}

// Peer returns the remote address frames are sent to.
func (t *Transport) Peer() net.Addr { return t.peer }

// SetPeer changes the remote address.
func (t *Transport) SetPeer(addr net.Addr) { t.peer = addr }

// LocalAddr returns the bound local address.
func (t *Transport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// SetReadTimeout changes the per-receive timeout.
func (t *Transport) SetReadTimeout(d time.Duration) { t.opts.ReadTimeout = d }

// Close releases the socket.
func (t *Transport) Close() error { return t.conn.Close() }

// SendFrame encodes f and transmits it at most once, subject to imp.
// Loss takes precedence over corruption: a lost frame is never written.
func (t *Transport) SendFrame(f protocol.Frame, imp Impairment) (Outcome, error) {
	lost, corrupted := imp.Draw(t.opts.Sampler)

	datagram := protocol.Encode(f)
	if corrupted {
		protocol.SetCorrupted(datagram)
	}

	if lost {
		metrics.FramesSentTotal.WithLabelValues(t.opts.Role, OutcomeLost.String()).Inc()
		if t.opts.Logger.IsTraceEnabled() {
			t.opts.Logger.WithField("frame", f.String()).Trace("simulated loss")
		}
		return Outcome{Kind: OutcomeLost}, nil
	}

	n, err := t.write(datagram)
	if err != nil {
		return Outcome{}, err
	}

	kind := OutcomeSent
	if corrupted {
		kind = OutcomeCorrupted
	}
	metrics.FramesSentTotal.WithLabelValues(t.opts.Role, kind.String()).Inc()
	return Outcome{Kind: kind, Bytes: n}, nil
}

// SendRaw transmits b unframed and unimpaired.
func (t *Transport) SendRaw(b []byte) error {
	_, err := t.write(b)
	return err
}

func (t *Transport) write(b []byte) (int, error) {
	if t.peer == nil {
		return 0, fmt.Errorf("%w: no peer address", core.ErrTransport)
	}
	n, err := t.conn.WriteTo(b, t.peer)
	if err != nil {
		return n, fmt.Errorf("%w: write to %s: %w", core.ErrTransport, t.peer, err)
	}
	t.record(t.conn.LocalAddr(), t.peer, b)
	return n, nil
}

// ReceiveFrame blocks until a frame arrives from the peer and decodes it.
// It returns the frame and the datagram size. Read failures, timeouts and
// cancellation are reported as core.ErrTransport and never retried.
func (t *Transport) ReceiveFrame(ctx context.Context) (protocol.Frame, int, error) {
	data, _, err := t.receive(ctx, t.opts.FilterPeer)
	if err != nil {
		return protocol.Frame{}, 0, err
	}

	f, err := protocol.Decode(data)
	if err != nil {
		return protocol.Frame{}, len(data), err
	}
	if err := f.Validate(); err != nil {
		return protocol.Frame{}, len(data), err
	}
	// The read buffer is reused by the next receive.
	f.Payload = append([]byte(nil), f.Payload...)

	metrics.FramesReceivedTotal.WithLabelValues(t.opts.Role).Inc()
	return f, len(data), nil
}

// ReceiveRaw blocks until any datagram arrives and returns a copy of it with
// its source address.
func (t *Transport) ReceiveRaw(ctx context.Context) ([]byte, net.Addr, error) {
	data, addr, err := t.receive(ctx, false)
	if err != nil {
		return nil, nil, err
	}
	return append([]byte(nil), data...), addr, nil
}

func (t *Transport) receive(ctx context.Context, filter bool) ([]byte, net.Addr, error) {
	for {
		var deadline time.Time
		if t.opts.ReadTimeout > 0 {
			deadline = time.Now().Add(t.opts.ReadTimeout)
		}
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, nil, fmt.Errorf("%w: set read deadline: %w", core.ErrTransport, err)
		}

		stop := context.AfterFunc(ctx, func() {
			t.conn.SetReadDeadline(time.Unix(1, 0))
		})
		n, addr, err := t.conn.ReadFrom(t.buf)
		stop()

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, fmt.Errorf("%w: %w", core.ErrTransport, ctxErr)
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil, nil, fmt.Errorf("%w: %w after %s", core.ErrTransport, core.ErrReadTimeout, t.opts.ReadTimeout)
			}
			return nil, nil, fmt.Errorf("%w: read: %w", core.ErrTransport, err)
		}

		data := t.buf[:n]
		t.record(addr, t.conn.LocalAddr(), data)

		if filter && t.peer != nil && addr.String() != t.peer.String() {
			metrics.FramesDroppedTotal.WithLabelValues(t.opts.Role, metrics.DropStrayPeer).Inc()
			t.opts.Logger.WithField("from", addr.String()).Debug("ignoring datagram from unexpected peer")
			continue
		}
		return data, addr, nil
	}
}

func (t *Transport) record(src, dst net.Addr, b []byte) {
	if t.opts.Recorder == nil {
		return
	}
	if err := t.opts.Recorder.Record(src, dst, b); err != nil {
		t.opts.Logger.WithError(err).Warn("failed to record trace packet")
	}
}
