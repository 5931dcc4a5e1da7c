// Package network captures and replays the kernel side of a node's network
// state via netlink.
//
// # Key Components
//
//   - [Capturer]: reads links, addresses and routes into a [descriptor.Host]
//   - [Reconciler]: applies a [descriptor.Host] onto the running kernel
//   - [Netlinker]: the netlink surface both of them use, with real,
//     dry-run and mock implementations
//
// # Apply order
//
// Bonds are created first and their slaves attached, then VLAN
// sub-interfaces, then links are brought up and given their permanent
// addresses (bonds, VLANs, plain interfaces), and gateway routes come last.
// A failing item is logged and skipped. Failures that leave the pass unable
// to continue restart the whole pass under the retry policy.
//
// # Dependencies
//
// Uses github.com/vishvananda/netlink for all netlink operations and
// github.com/vishvananda/netns to operate inside a named namespace.
package network
