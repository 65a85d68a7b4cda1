// Package trace records rdt datagrams to pcap files and decodes them back
// with gopacket.
package trace

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/hannahoo/UCLA-CS-118/internal/protocol"
)

// LayerTypeRDT identifies the rdt header inside a UDP payload.
var LayerTypeRDT = gopacket.RegisterLayerType(1990, gopacket.LayerTypeMetadata{
	Name:    "RDT",
	Decoder: gopacket.DecodeFunc(decodeRDT),
})

// RDT is the gopacket layer for a decoded frame header.
type RDT struct {
	layers.BaseLayer
	Frame protocol.Frame
}

func (r *RDT) LayerType() gopacket.LayerType { return LayerTypeRDT }

// CanDecode implements gopacket.DecodingLayer.
func (r *RDT) CanDecode() gopacket.LayerClass { return LayerTypeRDT }

// NextLayerType implements gopacket.DecodingLayer.
func (r *RDT) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

// DecodeFromBytes implements gopacket.DecodingLayer.
func (r *RDT) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	f, err := protocol.Decode(data)
	if err != nil {
		df.SetTruncated()
		return err
	}
	r.Frame = f
	r.BaseLayer = layers.BaseLayer{
		Contents: data[:protocol.HeaderSize],
		Payload:  data[protocol.HeaderSize:],
	}
	return nil
}

func decodeRDT(data []byte, p gopacket.PacketBuilder) error {
	r := &RDT{}
	if err := r.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(r)
	return p.NextDecoder(r.NextLayerType())
}
