//go:build linux
// +build linux

package network

import (
	"golang.org/x/sys/unix"

	"grimm.is/netemstate/internal/descriptor"
)

// addressKind classifies an address from its IFA_F_* flags.
func addressKind(flags int) descriptor.AddressKind {
	switch {
	case flags&(unix.IFA_F_TEMPORARY|unix.IFA_F_MANAGETEMPADDR) != 0:
		return descriptor.KindSLAAC
	case flags&unix.IFA_F_PERMANENT != 0:
		return descriptor.KindPermanent
	default:
		return descriptor.KindDynamic
	}
}
