// Package ethgen builds Ethernet test frames and sends them on a raw socket.
package ethgen

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/mdlayher/packet"

	"grimm.is/netemstate/internal/logging"
)

// DefaultEtherType is the loopback test EtherType.
const DefaultEtherType = 0x9000

// LACP redundancy test parameters.
const (
	lacpCount    = 1000
	lacpInterval = time.Second
)

// Kind selects what the frame carries.
type Kind int

const (
	// KindRaw carries the message with a custom EtherType.
	KindRaw Kind = iota
	// KindIPv4 carries an empty IPv4 packet.
	KindIPv4
	// KindICMP carries an ICMP echo request.
	KindICMP
)

func (k Kind) String() string {
	switch k {
	case KindIPv4:
		return "ipv4"
	case KindICMP:
		return "icmp"
	default:
		return "raw"
	}
}

// Config describes the frames to send.
type Config struct {
	Interface string
	Dst       net.HardwareAddr
	Message   string
	EtherType uint16
	Kind      Kind
	SrcIP     net.IP
	DstIP     net.IP
	Count     int
	Interval  time.Duration
	TestLACP  bool
	Verbose   bool
}

// DefaultMessage is the payload used when none is given.
func DefaultMessage() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return "Hello, my name is " + host
}

// DefaultConfig returns a single broadcast frame with the default payload.
func DefaultConfig() Config {
	return Config{
		Dst:       layers.EthernetBroadcast,
		Message:   DefaultMessage(),
		EtherType: DefaultEtherType,
		SrcIP:     net.IPv4(127, 0, 0, 1),
		DstIP:     net.IPv4(127, 0, 0, 1),
		Count:     1,
	}
}

// ParseEtherType accepts decimal, 0x hex and 0 octal notation.
func ParseEtherType(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid ethernet type %q: %w", s, err)
	}
	return uint16(v), nil
}

// effective applies the LACP test overrides.
func (c Config) effective() Config {
	if c.TestLACP {
		c.Count = lacpCount
		c.Interval = lacpInterval
	}
	if c.Count < 1 {
		c.Count = 1
	}
	return c
}

// protocol is the EtherType the frame is sent with.
func (c Config) protocol() uint16 {
	if c.Kind == KindRaw {
		return c.EtherType
	}
	return uint16(layers.EthernetTypeIPv4)
}

// BuildFrame serializes one frame from src according to cfg.
func BuildFrame(src net.HardwareAddr, cfg Config) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       cfg.Dst,
		EthernetType: layers.EthernetType(cfg.protocol()),
	}

	var stack []gopacket.SerializableLayer
	switch cfg.Kind {
	case KindRaw:
		stack = []gopacket.SerializableLayer{eth, gopacket.Payload(cfg.Message)}
	case KindIPv4, KindICMP:
		ip := &layers.IPv4{
			Version: 4,
			IHL:     5,
			TTL:     64,
			SrcIP:   cfg.SrcIP.To4(),
			DstIP:   cfg.DstIP.To4(),
		}
		if ip.SrcIP == nil || ip.DstIP == nil {
			return nil, fmt.Errorf("IPv4 source and destination are required")
		}
		stack = []gopacket.SerializableLayer{eth, ip}
		if cfg.Kind == KindICMP {
			ip.Protocol = layers.IPProtocolICMPv4
			stack = append(stack, &layers.ICMPv4{
				TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
			})
		}
	default:
		return nil, fmt.Errorf("unknown frame kind %d", cfg.Kind)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		return nil, fmt.Errorf("failed to serialize frame: %w", err)
	}
	return buf.Bytes(), nil
}

// Dump renders a decoded view of frame.
func Dump(frame []byte) string {
	return gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default).Dump()
}

// Run sends the configured frames out of cfg.Interface.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	cfg = cfg.effective()
	log := logging.WithComponent("ethgen")

	ifi, err := net.InterfaceByName(cfg.Interface)
	if err != nil {
		return fmt.Errorf("interface %s not found: %w", cfg.Interface, err)
	}

	frame, err := BuildFrame(ifi.HardwareAddr, cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Output interface: %s\n", ifi.Name)
	fmt.Fprintf(out, "Source address: %s\n", ifi.HardwareAddr)
	fmt.Fprintf(out, "Destination address: %s\n", cfg.Dst)
	if cfg.Kind == KindRaw {
		fmt.Fprintf(out, "Message: %s\n", cfg.Message)
		fmt.Fprintf(out, "Type: %#04x\n", cfg.EtherType)
	} else {
		fmt.Fprintf(out, "Frame: %s over ethernet type 0x0800\n", cfg.Kind)
	}
	if cfg.TestLACP {
		fmt.Fprintln(out, "LACP redundancy test")
	}
	fmt.Fprintf(out, "Interval: %s\n", cfg.Interval)
	if cfg.Verbose {
		fmt.Fprint(out, Dump(frame))
	}

	conn, err := packet.Listen(ifi, packet.Raw, int(cfg.protocol()), nil)
	if err != nil {
		return fmt.Errorf("failed to open raw socket on %s: %w", ifi.Name, err)
	}
	defer conn.Close()

	dst := &packet.Addr{HardwareAddr: cfg.Dst}
	for i := 1; i <= cfg.Count; i++ {
		if _, err := conn.WriteTo(frame, dst); err != nil {
			return fmt.Errorf("failed to send frame %d: %w", i, err)
		}
		log.Debug("sent frame", "frame", i, "bytes", len(frame))
		if cfg.Verbose {
			fmt.Fprintf(out, "Sent frame %d\n", i)
		}
		if i == cfg.Count || cfg.Interval <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.Interval):
		}
	}
	fmt.Fprintf(out, "Sent %d frames\n", cfg.Count)
	return nil
}
