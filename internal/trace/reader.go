package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/hannahoo/UCLA-CS-118/internal/protocol"
)

// Record is one rdt datagram found in a trace.
type Record struct {
	Timestamp time.Time
	Src       string // ip:port
	Dst       string
	Framed    bool // false for datagrams too short to hold a header, e.g. a resource request
	Frame     protocol.Frame
	Raw       []byte
}

func (r Record) String() string {
	ts := r.Timestamp.Format("15:04:05.000000")
	if !r.Framed {
		return fmt.Sprintf("%s %s -> %s raw %q", ts, r.Src, r.Dst, r.Raw)
	}
	return fmt.Sprintf("%s %s -> %s %s", ts, r.Src, r.Dst, r.Frame)
}

// ReadFile decodes the pcap at path. See Read.
func ReadFile(path string, port int) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, port)
}

// Read decodes every UDP datagram in the pcap stream. A non-zero port keeps
// only datagrams to or from that port.
func Read(r io.Reader, port int) ([]Record, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}

	var records []Record
	for {
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records, fmt.Errorf("failed to read packet: %w", err)
		}

		pkt := gopacket.NewPacket(data, pr.LinkType(), gopacket.Default)
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil || pkt.NetworkLayer() == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if port != 0 && int(udp.SrcPort) != port && int(udp.DstPort) != port {
			continue
		}

		srcIP, dstIP := pkt.NetworkLayer().NetworkFlow().Endpoints()
		rec := Record{
			Timestamp: ci.Timestamp,
			Src:       fmt.Sprintf("%s:%d", srcIP, udp.SrcPort),
			Dst:       fmt.Sprintf("%s:%d", dstIP, udp.DstPort),
		}

		inner := gopacket.NewPacket(udp.Payload, LayerTypeRDT, gopacket.Default)
		if l := inner.Layer(LayerTypeRDT); l != nil {
			rec.Framed = true
			rec.Frame = l.(*RDT).Frame
		} else {
			rec.Raw = append([]byte(nil), udp.Payload...)
		}
		records = append(records, rec)
	}
	return records, nil
}
