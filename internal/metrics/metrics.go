// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Role label values.
const (
	RoleReceiver = "receiver"
	RoleSender   = "sender"
)

// Drop reasons for FramesDroppedTotal.
const (
	DropCorrupted  = "corrupted"
	DropOutOfOrder = "out_of_order"
	DropStrayPeer  = "stray_peer"
	DropStaleAck   = "stale_ack"
)

var (
	// FramesReceivedTotal counts decoded frames by endpoint role
	FramesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdt_frames_received_total",
			Help: "Total number of frames received",
		},
		[]string{"role"},
	)

	// FramesDroppedTotal counts frames discarded without acknowledgement
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdt_frames_dropped_total",
			Help: "Total number of received frames discarded",
		},
		[]string{"role", "reason"},
	)

	// FramesSentTotal counts send attempts by outcome (sent, lost, corrupted)
	FramesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdt_frames_sent_total",
			Help: "Total number of frame send attempts by simulated outcome",
		},
		[]string{"role", "outcome"},
	)

	// BytesWrittenTotal counts payload bytes appended to output files
	BytesWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rdt_bytes_written_total",
			Help: "Total number of payload bytes written to output files",
		},
	)

	// RetransmissionsTotal counts sender retransmissions after a timeout
	RetransmissionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rdt_retransmissions_total",
			Help: "Total number of data units retransmitted by the sender",
		},
	)

	// TransferDurationSeconds measures whole transfers
	TransferDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rdt_transfer_duration_seconds",
			Help:    "Duration of completed or failed transfers in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~32s
		},
		[]string{"role"},
	)
)
