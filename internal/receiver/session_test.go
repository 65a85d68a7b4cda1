package receiver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hannahoo/UCLA-CS-118/internal/core"
	"github.com/hannahoo/UCLA-CS-118/internal/protocol"
	"github.com/hannahoo/UCLA-CS-118/internal/transport"
)

type mockConn struct {
	mock.Mock
}

func (m *mockConn) ReceiveFrame(ctx context.Context) (protocol.Frame, int, error) {
	args := m.Called(ctx)
	return args.Get(0).(protocol.Frame), args.Int(1), args.Error(2)
}

func (m *mockConn) SendFrame(f protocol.Frame, imp transport.Impairment) (transport.Outcome, error) {
	args := m.Called(f, imp)
	return args.Get(0).(transport.Outcome), args.Error(1)
}

func (m *mockConn) deliver(f protocol.Frame) *mock.Call {
	return m.On("ReceiveFrame", mock.Anything).Return(f, protocol.HeaderSize+int(f.Length), nil).Once()
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func chunk(n int, b byte) []byte { return bytes.Repeat([]byte{b}, n) }

var sent = transport.Outcome{Kind: transport.OutcomeSent, Bytes: 100}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_first_frame", AwaitingFirstFrame.String())
	assert.Equal(t, "receiving_data", ReceivingData.String())
	assert.Equal(t, "terminated", Terminated.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestResourceNotFound(t *testing.T) {
	conn := new(mockConn)
	conn.deliver(protocol.NotFound())

	var sink bytes.Buffer
	s := NewSession(conn, &sink, Options{})
	err := s.Run(context.Background())

	assert.ErrorIs(t, err, core.ErrResourceNotFound)
	assert.Equal(t, Failed, s.State())
	assert.Zero(t, sink.Len())
	conn.AssertNotCalled(t, "SendFrame", mock.Anything, mock.Anything)
}

func TestSeqZeroFinAfterDataIsNotNotFound(t *testing.T) {
	conn := new(mockConn)
	conn.deliver(protocol.NewData(0, chunk(1024, 'a'), false))
	conn.On("SendFrame", mock.Anything, mock.Anything).Return(sent, nil)
	s := NewSession(conn, &bytes.Buffer{}, Options{})
	require.NoError(t, s.Step(context.Background()))

	// A stale seq 0 FIN is now outside the window.
	conn.deliver(protocol.NewData(0, nil, true))
	require.NoError(t, s.Step(context.Background()))
	assert.Equal(t, ReceivingData, s.State())
	assert.Equal(t, 1, s.Stats().OutOfOrderDropped)
}

func TestAcceptAdvancesOffset(t *testing.T) {
	imp := transport.Impairment{LossProbability: 0.1}
	conn := new(mockConn)
	data := protocol.NewData(1024, chunk(1024, 'b'), false)
	conn.deliver(data)
	conn.On("SendFrame", mock.MatchedBy(func(f protocol.Frame) bool {
		return f.Ack == 2048 && f.Seq == 1024 && !f.IsFin()
	}), imp).Return(sent, nil).Once()

	var sink bytes.Buffer
	s := NewSession(conn, &sink, Options{Impairment: imp})
	s.expected = 1024
	s.state = ReceivingData

	require.NoError(t, s.Step(context.Background()))
	assert.Equal(t, int32(2048), s.ExpectedOffset())
	assert.Equal(t, ReceivingData, s.State())
	assert.Equal(t, chunk(1024, 'b'), sink.Bytes())
	assert.Equal(t, int64(1024), s.Stats().BytesWritten)
	conn.AssertExpectations(t)
}

func TestLostAckDoesNotAdvance(t *testing.T) {
	for _, kind := range []transport.OutcomeKind{transport.OutcomeLost, transport.OutcomeCorrupted} {
		t.Run(kind.String(), func(t *testing.T) {
			conn := new(mockConn)
			conn.deliver(protocol.NewData(1024, chunk(1024, 'c'), false))
			conn.On("SendFrame", mock.Anything, mock.Anything).Return(transport.Outcome{Kind: kind}, nil).Once()

			var sink bytes.Buffer
			s := NewSession(conn, &sink, Options{})
			s.expected = 1024
			s.state = ReceivingData

			require.NoError(t, s.Step(context.Background()))
			assert.Equal(t, int32(1024), s.ExpectedOffset())
			assert.Zero(t, sink.Len())
			st := s.Stats()
			assert.Equal(t, 1, st.AcksLost+st.AcksCorrupted)
			assert.Zero(t, st.AcksSent)
		})
	}
}

func TestFinTerminatesWithUnimpairedAck(t *testing.T) {
	imp := transport.Impairment{LossProbability: 1, CorruptionProbability: 1}
	conn := new(mockConn)
	conn.deliver(protocol.NewData(2048, chunk(10, 'd'), true))
	conn.On("SendFrame", mock.MatchedBy(func(f protocol.Frame) bool {
		return f.IsFin() && f.Ack == 2058
	}), transport.NoImpairment).Return(sent, nil).Once()

	var sink bytes.Buffer
	s := NewSession(conn, &sink, Options{Impairment: imp})
	s.expected = 2048
	s.state = ReceivingData

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, Terminated, s.State())
	assert.Equal(t, int32(2048), s.ExpectedOffset())
	assert.Equal(t, chunk(10, 'd'), sink.Bytes())
	conn.AssertExpectations(t)
}

func TestCorruptedFrameDiscarded(t *testing.T) {
	conn := new(mockConn)
	f := protocol.NewData(0, chunk(1024, 'e'), true)
	f.Corrupted = protocol.FlagSet
	f.Seq = 1024
	conn.deliver(f)

	var sink bytes.Buffer
	s := NewSession(conn, &sink, Options{})
	s.expected = 1024
	s.state = ReceivingData

	require.NoError(t, s.Step(context.Background()))
	assert.Equal(t, ReceivingData, s.State())
	assert.Equal(t, int32(1024), s.ExpectedOffset())
	assert.Zero(t, sink.Len())
	assert.Equal(t, 1, s.Stats().CorruptDropped)
	conn.AssertNotCalled(t, "SendFrame", mock.Anything, mock.Anything)
}

func TestOutOfWindowDiscarded(t *testing.T) {
	tests := []struct {
		name string
		seq  int32
		keep bool
	}{
		{"lower bound excluded", 0, false},
		{"just inside", 1, true},
		{"expected", 1024, true},
		{"ahead", 1025, false},
		{"far ahead", 8192, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := new(mockConn)
			conn.deliver(protocol.NewData(tt.seq, chunk(4, 'f'), false))
			conn.On("SendFrame", mock.Anything, mock.Anything).Return(sent, nil).Maybe()

			s := NewSession(conn, &bytes.Buffer{}, Options{})
			s.expected = 1024
			s.state = ReceivingData

			require.NoError(t, s.Step(context.Background()))
			if tt.keep {
				assert.Equal(t, int32(2048), s.ExpectedOffset())
				conn.AssertNumberOfCalls(t, "SendFrame", 1)
			} else {
				assert.Equal(t, int32(1024), s.ExpectedOffset())
				assert.Equal(t, 1, s.Stats().OutOfOrderDropped)
				conn.AssertNotCalled(t, "SendFrame", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestTransportErrorFails(t *testing.T) {
	conn := new(mockConn)
	conn.On("ReceiveFrame", mock.Anything).Return(protocol.Frame{}, 0, fmt.Errorf("%w: read: boom", core.ErrTransport))

	s := NewSession(conn, &bytes.Buffer{}, Options{})
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.Equal(t, Failed, s.State())

	// A failed session is inert.
	require.NoError(t, s.Step(context.Background()))
	conn.AssertNumberOfCalls(t, "ReceiveFrame", 1)
}

func TestMalformedFrameFails(t *testing.T) {
	conn := new(mockConn)
	conn.On("ReceiveFrame", mock.Anything).Return(protocol.Frame{}, 3, core.ErrMalformedHeader)

	s := NewSession(conn, &bytes.Buffer{}, Options{})
	assert.ErrorIs(t, s.Run(context.Background()), core.ErrMalformedHeader)
	assert.Equal(t, Failed, s.State())
}

func TestAckSendErrorFails(t *testing.T) {
	conn := new(mockConn)
	conn.deliver(protocol.NewData(0, chunk(8, 'g'), false))
	conn.On("SendFrame", mock.Anything, mock.Anything).Return(transport.Outcome{}, core.ErrTransport)

	var sink bytes.Buffer
	s := NewSession(conn, &sink, Options{})
	assert.ErrorIs(t, s.Run(context.Background()), core.ErrTransport)
	assert.Zero(t, sink.Len())
}

func TestSinkErrorFails(t *testing.T) {
	conn := new(mockConn)
	conn.deliver(protocol.NewData(0, chunk(8, 'h'), false))
	conn.On("SendFrame", mock.Anything, mock.Anything).Return(sent, nil)

	s := NewSession(conn, failingWriter{}, Options{})
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrSinkWrite)
	assert.Equal(t, Failed, s.State())
}

func TestFullTransfer(t *testing.T) {
	conn := new(mockConn)
	conn.deliver(protocol.NewData(0, chunk(1024, '1'), false))
	conn.deliver(protocol.NewData(1024, chunk(1024, '2'), false))
	conn.deliver(protocol.NewData(1024, chunk(1024, '2'), false))
	conn.deliver(protocol.NewData(2048, chunk(5, '3'), false))
	conn.deliver(protocol.NewData(2053, nil, true))

	conn.On("SendFrame", mock.MatchedBy(func(f protocol.Frame) bool { return f.Seq == 1024 }), mock.Anything).
		Return(transport.Outcome{Kind: transport.OutcomeLost}, nil).Once()
	conn.On("SendFrame", mock.Anything, mock.Anything).Return(sent, nil)

	var sink bytes.Buffer
	s := NewSession(conn, &sink, Options{})
	require.NoError(t, s.Run(context.Background()))

	want := append(append(chunk(1024, '1'), chunk(1024, '2')...), chunk(5, '3')...)
	assert.Equal(t, want, sink.Bytes())
	assert.Equal(t, Terminated, s.State())
	st := s.Stats()
	assert.Equal(t, 5, st.FramesReceived)
	assert.Equal(t, 1, st.AcksLost)
	assert.Equal(t, 4, st.AcksSent)
}

func TestOffsetOverflowFails(t *testing.T) {
	conn := new(mockConn)
	conn.deliver(protocol.NewData(math.MaxInt32-1023, chunk(1023, 'o'), false))

	var sink bytes.Buffer
	s := NewSession(conn, &sink, Options{})
	s.expected = math.MaxInt32 - 1023
	s.state = ReceivingData

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrMalformedHeader)
	assert.Equal(t, Failed, s.State())
	assert.Equal(t, int32(math.MaxInt32-1023), s.ExpectedOffset())
	assert.Zero(t, sink.Len())
	conn.AssertNotCalled(t, "SendFrame", mock.Anything, mock.Anything)
}

func TestLastUnitBelowOffsetLimit(t *testing.T) {
	last := int32(math.MaxInt32 - protocol.MaxPayload - 1023)
	conn := new(mockConn)
	conn.deliver(protocol.NewData(last, chunk(1, 'p'), false))
	conn.deliver(protocol.NewData(last+1, nil, true))
	conn.On("SendFrame", mock.Anything, mock.Anything).Return(sent, nil)

	s := NewSession(conn, &bytes.Buffer{}, Options{})
	s.expected = last
	s.state = ReceivingData

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, Terminated, s.State())
	assert.Equal(t, last+protocol.MaxPayload, s.ExpectedOffset())
}
