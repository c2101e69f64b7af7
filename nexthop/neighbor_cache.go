// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

package nexthop

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

const DefaultRefresh = 5 * time.Second

type route struct {
	prefix netip.Prefix
	gw     [4]byte
	hasGW  bool
}

// snapshot is an immutable copy of the IPv4 routes and neighbors of one link.
// Routes are sorted by decreasing prefix length.
type snapshot struct {
	routes []route
	neighs map[[4]byte][6]byte
}

func newSnapshot(routes []netlink.Route, neighs []netlink.Neigh) *snapshot {
	s := &snapshot{
		routes: make([]route, 0, len(routes)),
		neighs: make(map[[4]byte][6]byte, len(neighs)),
	}
	for _, r := range routes {
		rt := route{prefix: netip.PrefixFrom(netip.IPv4Unspecified(), 0)}
		if r.Dst != nil {
			addr, ok := netip.AddrFromSlice(r.Dst.IP.To4())
			if !ok {
				continue
			}
			ones, bits := r.Dst.Mask.Size()
			if bits != 32 {
				continue
			}
			rt.prefix = netip.PrefixFrom(addr, ones).Masked()
		}
		if gw := r.Gw.To4(); gw != nil {
			copy(rt.gw[:], gw)
			rt.hasGW = true
		}
		s.routes = append(s.routes, rt)
	}
	sort.SliceStable(s.routes, func(i, j int) bool {
		return s.routes[i].prefix.Bits() > s.routes[j].prefix.Bits()
	})
	for _, n := range neighs {
		// Accept REACHABLE, STALE, or PERMANENT entries.
		if n.State&(netlink.NUD_REACHABLE|netlink.NUD_STALE|netlink.NUD_PERMANENT) == 0 {
			continue
		}
		ip := n.IP.To4()
		if ip == nil || len(n.HardwareAddr) < 6 {
			continue
		}
		var key [4]byte
		var mac [6]byte
		copy(key[:], ip)
		copy(mac[:], n.HardwareAddr[:6])
		s.neighs[key] = mac
	}
	return s
}

// resolve finds the longest matching route, then the neighbor entry of its
// gateway, or of dst itself for an on-link route.
func (s *snapshot) resolve(dst [4]byte) ([6]byte, bool) {
	addr := netip.AddrFrom4(dst)
	for _, r := range s.routes {
		if !r.prefix.Contains(addr) {
			continue
		}
		hop := dst
		if r.hasGW {
			hop = r.gw
		}
		mac, ok := s.neighs[hop]
		return mac, ok
	}
	return [6]byte{}, false
}

// NeighborCache resolves next hops from the kernel routing and neighbor
// tables of one link. Run refreshes it periodically; Resolve reads the last
// snapshot and never blocks.
type NeighborCache struct {
	linkName string
	refresh  time.Duration
	logger   logrus.FieldLogger
	current  atomic.Pointer[snapshot]
}

func NewNeighborCache(linkName string, refresh time.Duration, logger logrus.FieldLogger) *NeighborCache {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	c := &NeighborCache{
		linkName: linkName,
		refresh:  refresh,
		logger:   logger,
	}
	c.current.Store(newSnapshot(nil, nil))
	return c
}

func (c *NeighborCache) Resolve(dst [4]byte) ([6]byte, bool) {
	return c.current.Load().resolve(dst)
}

// Sync reads the kernel tables once.
func (c *NeighborCache) Sync() error {
	handle, err := netlink.NewHandle()
	if err != nil {
		return fmt.Errorf("netlink handle: %w", err)
	}
	defer handle.Close()
	link, err := handle.LinkByName(c.linkName)
	if err != nil {
		return fmt.Errorf("link %s: %w", c.linkName, err)
	}
	routes, err := handle.RouteList(link, netlink.FAMILY_V4)
	if err != nil {
		return fmt.Errorf("routes of %s: %w", c.linkName, err)
	}
	neighs, err := handle.NeighList(link.Attrs().Index, netlink.FAMILY_V4)
	if err != nil {
		return fmt.Errorf("neighbors of %s: %w", c.linkName, err)
	}
	s := newSnapshot(routes, neighs)
	c.current.Store(s)
	c.logger.WithFields(logrus.Fields{
		"link":      c.linkName,
		"routes":    len(s.routes),
		"neighbors": len(s.neighs),
	}).Trace("Neighbor cache refreshed")
	return nil
}

// Run syncs the cache until ctx is done.
func (c *NeighborCache) Run(ctx context.Context) {
	if err := c.Sync(); err != nil {
		c.logger.WithError(err).Warn("Neighbor cache sync failed")
	}
	ticker := time.NewTicker(c.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Sync(); err != nil {
				c.logger.WithError(err).Warn("Neighbor cache sync failed")
			}
		}
	}
}
