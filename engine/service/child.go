package service

import (
	"github.com/dev-feyisayo/canopy/engine/config"
	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/telemetry"
	"github.com/dev-feyisayo/canopy/engine/transport"
)

// ChildService is the hierarchical-child variant of Service: it holds
// one extra strong reference to its parent-facing transport, so the
// parent zone outlives the child for the duration of the child's life.
// The reference lives in a Cell so the disconnection protocol can break
// the parent/child cycle while calls in flight keep the stack-local
// reference they already obtained.
type ChildService struct {
	*Service
	parentZone ids.Zone
	parentRef  *transport.Cell
}

// NewChild constructs a child zone attached upward to parentZone through
// parent. The transport is registered in the child's registry like any
// other, and additionally pinned by the child's own strong reference
// until amnesia releases it; a child zone never outlives the link to its
// parent, the link outlives the child.
func NewChild(zone ids.Zone, name string, cfg *config.CanopyConfig, sink telemetry.Sink, parentZone ids.Zone, parent transport.Transport) *ChildService {
	s := New(zone, name, cfg, sink)
	c := &ChildService{
		Service:    s,
		parentZone: parentZone,
		parentRef:  transport.NewCell(parent),
	}
	s.AddTransport(parentZone, parent)
	s.mu.Lock()
	s.onAmnesia = c.releaseParent
	s.mu.Unlock()
	return c
}

// Parent returns the zone this child hangs under.
func (c *ChildService) Parent() ids.Zone { return c.parentZone }

// ParentAttached reports whether the upward strong reference is still
// held.
func (c *ChildService) ParentAttached() bool { return !c.parentRef.Empty() }

func (c *ChildService) releaseParent() {
	c.parentRef.Reset()
}
