package rogue

import (
	"io"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
)

// snapLen is the snapshot length written to capture headers.
const snapLen = 65536

// ReadPcap extracts UDP payloads from the capture file at path, in capture
// order. When dstPort is non-zero only datagrams addressed to it are kept.
func ReadPcap(path string, dstPort int) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "rogue: open capture")
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "rogue: read capture header %s", path)
	}

	var payloads [][]byte
	for {
		data, _, err := r.ReadPacketData()
		if err == io.EOF {
			return payloads, nil
		}
		if err != nil {
			return payloads, errors.Wrapf(err, "rogue: read capture %s", path)
		}

		packet := gopacket.NewPacket(data, r.LinkType(), gopacket.Default)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if dstPort != 0 && int(udp.DstPort) != dstPort {
			continue
		}
		payloads = append(payloads, append([]byte(nil), udp.Payload...))
	}
}

// CaptureEndpoint describes the addressing written into synthetic captures.
type CaptureEndpoint struct {
	SrcIP   net.IP
	DstIP   net.IP
	SrcPort int
	DstPort int
}

// WritePcap writes payloads to w as an Ethernet/IPv4/UDP capture, one frame
// per payload. It produces the files ReadPcap consumes.
func WritePcap(w io.Writer, ep CaptureEndpoint, payloads [][]byte) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return errors.Wrap(err, "rogue: write capture header")
	}

	ts := time.Now()
	for i, payload := range payloads {
		frame, err := udpFrame(ep, uint16(i), payload)
		if err != nil {
			return err
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := pw.WritePacket(ci, frame); err != nil {
			return errors.Wrap(err, "rogue: write capture frame")
		}
	}
	return nil
}

func udpFrame(ep CaptureEndpoint, id uint16, payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		Id:       id,
		Flags:    layers.IPv4DontFragment,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    ep.SrcIP.To4(),
		DstIP:    ep.DstIP.To4(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(ep.SrcPort),
		DstPort: layers.UDPPort(ep.DstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, errors.Wrap(err, "rogue: udp checksum")
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, errors.Wrap(err, "rogue: serialize frame")
	}
	return buf.Bytes(), nil
}
