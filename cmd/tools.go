package cmd

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"grimm.is/netemstate/internal/toolbox/ethgen"
	"grimm.is/netemstate/internal/toolbox/mcast"
)

func (a *app) mcastSendCommand() *cobra.Command {
	var (
		group    string
		interval float64
		port     int
		ttl      int
		iface    string
		count    int
	)
	cmd := &cobra.Command{
		Use:   toolMcastSend,
		Short: "Send numbered multicast UDP packets until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ip, err := mcast.ParseGroup(group)
			if err != nil {
				return err
			}
			if interval <= 0 {
				return fmt.Errorf("interval must be positive, got %g", interval)
			}
			return mcast.Send(cmd.Context(), mcast.SendConfig{
				Group:     ip,
				Port:      port,
				TTL:       ttl,
				Interval:  time.Duration(interval * float64(time.Second)),
				Interface: iface,
				Count:     count,
			}, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&group, "group", "g", mcast.DefaultGroup, "multicast IP address destination")
	f.Float64VarP(&interval, "interval", "i", mcast.DefaultInterval.Seconds(), "seconds between two packets")
	f.IntVarP(&port, "port", "p", mcast.DefaultPort, "destination UDP port")
	f.IntVar(&ttl, "ttl", mcast.DefaultTTL, "multicast TTL")
	f.StringVar(&iface, "iface", "", "outgoing interface (default from the routing table)")
	f.IntVarP(&count, "count", "c", 0, "stop after this many packets (0 sends until interrupted)")
	return cmd
}

func (a *app) mcastReceiveCommand() *cobra.Command {
	var (
		group  string
		source string
		port   int
		iface  string
	)
	cmd := &cobra.Command{
		Use:   toolMcastReceive,
		Short: "Join a multicast group and print the packets received",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ip, err := mcast.ParseGroup(group)
			if err != nil {
				return err
			}
			src, err := mcast.ParseSource(source)
			if err != nil {
				return err
			}
			return mcast.Receive(cmd.Context(), mcast.ReceiveConfig{
				Group:     ip,
				Source:    src,
				Port:      port,
				Interface: iface,
			}, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&group, "group", "g", mcast.DefaultGroup, "multicast IP address")
	f.StringVarP(&source, "source", "s", "", "only accept traffic from this source (source-specific join)")
	f.IntVarP(&port, "port", "p", mcast.DefaultPort, "UDP port to listen on")
	f.StringVar(&iface, "iface", "", "interface to join the group on")
	return cmd
}

func (a *app) ethGenCommand() *cobra.Command {
	cfg := ethgen.DefaultConfig()
	var (
		dst       string
		etherType string
		srcIP     string
		dstIP     string
		interval  int
		ipFrame   bool
		icmpFrame bool
	)
	cmd := &cobra.Command{
		Use:   toolEthGen + " -i IFNAME [flags]",
		Short: "Send raw Ethernet test frames",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mac, err := net.ParseMAC(dst)
			if err != nil {
				return fmt.Errorf("invalid destination address %q: %w", dst, err)
			}
			cfg.Dst = mac

			if cfg.EtherType, err = ethgen.ParseEtherType(etherType); err != nil {
				return err
			}
			if cfg.SrcIP = net.ParseIP(srcIP); cfg.SrcIP == nil {
				return fmt.Errorf("invalid source IP %q", srcIP)
			}
			if cfg.DstIP = net.ParseIP(dstIP); cfg.DstIP == nil {
				return fmt.Errorf("invalid destination IP %q", dstIP)
			}
			if interval < 0 {
				return errors.New("interval must not be negative")
			}
			cfg.Interval = time.Duration(interval) * time.Millisecond

			switch {
			case icmpFrame:
				cfg.Kind = ethgen.KindICMP
			case ipFrame:
				cfg.Kind = ethgen.KindIPv4
			}
			return ethgen.Run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfg.Interface, "ifname", "i", "", "output interface")
	f.StringVarP(&dst, "dstaddr", "d", "ff:ff:ff:ff:ff:ff", "destination MAC address")
	f.StringVarP(&cfg.Message, "msg", "m", cfg.Message, "message carried in the frame")
	f.StringVarP(&etherType, "type", "t", "0x9000", "EtherType of raw frames")
	f.IntVarP(&cfg.Count, "count", "c", 1, "number of frames to send")
	f.IntVar(&interval, "inter", 0, "milliseconds between two frames")
	f.BoolVar(&ipFrame, "ip", false, "send an IPv4 frame")
	f.BoolVar(&icmpFrame, "icmp", false, "send an IPv4 ICMP echo request frame")
	f.StringVar(&srcIP, "src-ip", "127.0.0.1", "IPv4 source of --ip and --icmp frames")
	f.StringVar(&dstIP, "dst-ip", "127.0.0.1", "IPv4 destination of --ip and --icmp frames")
	f.BoolVar(&cfg.TestLACP, "testlacp", false, "LACP redundancy test: 1000 frames, one per second")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "print the frame and each send")
	cmd.MarkFlagsMutuallyExclusive("ip", "icmp")
	_ = cmd.MarkFlagRequired("ifname")
	return cmd
}
