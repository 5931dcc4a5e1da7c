package network

import (
	"errors"
	"strings"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Netlinker is an interface that abstracts netlink interactions.
type Netlinker interface {
	LinkByName(name string) (netlink.Link, error)
	LinkByIndex(index int) (netlink.Link, error)
	LinkList() ([]netlink.Link, error)
	LinkSetUp(link netlink.Link) error
	LinkSetDown(link netlink.Link) error
	LinkSetMaster(slave, master netlink.Link) error
	LinkAdd(link netlink.Link) error

	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
	AddrAdd(link netlink.Link, addr *netlink.Addr) error

	RouteList(link netlink.Link, family int) ([]netlink.Route, error)
	RouteAdd(route *netlink.Route) error
}

// ErrLinkNotFound is returned by Netlinker implementations that do not
// produce netlink.LinkNotFoundError themselves.
var ErrLinkNotFound = errors.New("link not found")

// IsLinkNotFound reports whether err means the named or indexed link does
// not exist.
func IsLinkNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf netlink.LinkNotFoundError
	return errors.As(err, &nf) || errors.Is(err, ErrLinkNotFound) || errors.Is(err, unix.ENODEV)
}

// isExist reports whether err means the object is already present.
func isExist(err error) bool {
	return errors.Is(err, unix.EEXIST) || strings.Contains(err.Error(), "file exists")
}
