// Package mcast sends and receives multicast UDP test traffic.
package mcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"grimm.is/netemstate/internal/logging"
)

// Defaults shared by the sender and the receiver.
const (
	DefaultGroup    = "239.1.1.1"
	DefaultPort     = 5222
	DefaultTTL      = 64
	DefaultInterval = time.Second

	readTimeout = time.Second
	bufferSize  = 10240
)

// ParseGroup parses an IPv4 multicast group address.
func ParseGroup(s string) (net.IP, error) {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return nil, fmt.Errorf("invalid IPv4 address %q", s)
	}
	if !ip.IsMulticast() {
		return nil, fmt.Errorf("%s is not a multicast address", s)
	}
	return ip, nil
}

// ParseSource parses the optional source of a source-specific join.
func ParseSource(s string) (net.IP, error) {
	if s == "" {
		return nil, nil
	}
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return nil, fmt.Errorf("invalid IPv4 source %q", s)
	}
	return ip, nil
}

func lookupInterface(name string) (*net.Interface, error) {
	if name == "" {
		return nil, nil
	}
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("interface %s not found: %w", name, err)
	}
	return ifi, nil
}

// Payload is the body of the nth packet sent.
func Payload(n int) []byte {
	return []byte(fmt.Sprintf("Multicast Packet %d", n))
}

// SendConfig configures the sender.
type SendConfig struct {
	Group     net.IP
	Port      int
	TTL       int
	Interval  time.Duration
	Interface string
	// Count stops the sender after that many packets; 0 sends until ctx is done.
	Count int
}

// Send writes numbered packets to the group until ctx is done.
func Send(ctx context.Context, cfg SendConfig, out io.Writer) error {
	log := logging.WithComponent("mcast")

	ifi, err := lookupInterface(cfg.Interface)
	if err != nil {
		return err
	}

	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return fmt.Errorf("failed to open socket: %w", err)
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(cfg.TTL); err != nil {
		return fmt.Errorf("failed to set multicast TTL: %w", err)
	}
	if ifi != nil {
		if err := pc.SetMulticastInterface(ifi); err != nil {
			return fmt.Errorf("failed to set multicast interface %s: %w", ifi.Name, err)
		}
	}

	dst := &net.UDPAddr{IP: cfg.Group, Port: cfg.Port}
	fmt.Fprintf(out, "Send multicast packets to group %s\n", cfg.Group)

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		fmt.Fprintf(out, "Send packet %d\n", n)
		if _, err := pc.WriteTo(Payload(n), nil, dst); err != nil {
			log.Warn("failed to send packet", "packet", n, "error", err)
		}
		if cfg.Count > 0 && n >= cfg.Count {
			return nil
		}
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "Stop sending...")
			return nil
		case <-ticker.C:
		}
	}
}

// ReceiveConfig configures the receiver. A nil Source joins the group for
// every sender.
type ReceiveConfig struct {
	Group     net.IP
	Source    net.IP
	Port      int
	Interface string
}

// Receive joins the group and prints every packet until ctx is done.
func Receive(ctx context.Context, cfg ReceiveConfig, out io.Writer) error {
	ifi, err := lookupInterface(cfg.Interface)
	if err != nil {
		return err
	}

	lc := net.ListenConfig{Control: reuseAddr}
	conn, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to bind port %d: %w", cfg.Port, err)
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: cfg.Group}
	if cfg.Source == nil {
		fmt.Fprintf(out, "Listen on multicast address %s\n", cfg.Group)
		if err := pc.JoinGroup(ifi, group); err != nil {
			return fmt.Errorf("failed to join group %s: %w", cfg.Group, err)
		}
		defer pc.LeaveGroup(ifi, group)
	} else {
		fmt.Fprintf(out, "Listen on multicast address %s only for source %s\n", cfg.Group, cfg.Source)
		source := &net.UDPAddr{IP: cfg.Source}
		if err := pc.JoinSourceSpecificGroup(ifi, group, source); err != nil {
			return fmt.Errorf("failed to join group %s for source %s: %w", cfg.Group, cfg.Source, err)
		}
		defer pc.LeaveSourceSpecificGroup(ifi, group, source)
	}

	return readLoop(ctx, pc, out)
}

type packetReader interface {
	SetReadDeadline(t time.Time) error
	ReadFrom(b []byte) (int, *ipv4.ControlMessage, net.Addr, error)
}

func readLoop(ctx context.Context, pc packetReader, out io.Writer) error {
	buf := make([]byte, bufferSize)
	for {
		if ctx.Err() != nil {
			fmt.Fprintln(out, "Stop receiving...")
			return nil
		}
		if err := pc.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		n, _, src, err := pc.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("read error: %w", err)
		}
		fmt.Fprintf(out, "Receive packet %q from %s\n", buf[:n], src)
	}
}
