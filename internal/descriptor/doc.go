// Package descriptor defines the JSON documents exchanged between the
// capture and apply halves of the network-config and ovs-config tools.
//
// # Documents
//
//   - [Host]: kernel interfaces, bonds, VLAN sub-interfaces and routes
//   - [Switch]: Open vSwitch bridge ports and spanning tree state
//
// Encoded documents always have sorted keys and a four space indent so that
// files saved from two identical systems compare equal byte for byte.
//
// # Checking
//
// Loading fails only on unreadable or malformed JSON. A bad entry such as a
// bond mode out of range is reported by Sanitize, which returns the usable
// remainder so one bad entry never blocks the others.
//
// # Legacy formats
//
// Older files stored host addresses as bare "addr/len" strings and switch
// files as a bare array of ports. Both are still accepted on load: a bare
// address is treated as PERMANENT, and a bare port array gets spanning tree
// disabled.
package descriptor
