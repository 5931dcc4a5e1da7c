//go:build !linux
// +build !linux

package network

import "grimm.is/netemstate/internal/descriptor"

func addressKind(flags int) descriptor.AddressKind {
	return descriptor.KindPermanent
}
