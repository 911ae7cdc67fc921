package vision

import (
	"image"
	"sync"
)

// OverlayProvider is implemented by resources that can hand out debug
// overlay sessions. The overlay camera model looks this up on its
// localizer dependency.
type OverlayProvider interface {
	AcquireOverlay() *OverlaySession
}

// overlayState is the ref-counted overlay hub owned by the localizer. The
// worker annotates frames only while the session count is positive, so an
// unattached overlay costs the hot path nothing.
type overlayState struct {
	mu       sync.RWMutex
	sessions int
	frame    image.Image
}

// Attached implements pipeline.OverlaySink.
func (o *overlayState) Attached() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sessions > 0
}

// Publish implements pipeline.OverlaySink: latest frame wins.
func (o *overlayState) Publish(frame image.Image) {
	o.mu.Lock()
	o.frame = frame
	o.mu.Unlock()
}

func (o *overlayState) acquire() *OverlaySession {
	o.mu.Lock()
	o.sessions++
	o.mu.Unlock()
	s := &OverlaySession{state: o}
	return s
}

// OverlaySession is one attached overlay consumer. Closing it decrements
// the session count; Close is idempotent.
type OverlaySession struct {
	state *overlayState
	once  sync.Once
}

// LatestFrame returns the most recent annotated frame, which may be nil
// before the first annotated frame lands.
func (s *OverlaySession) LatestFrame() image.Image {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	return s.state.frame
}

// Close detaches the consumer.
func (s *OverlaySession) Close() {
	s.once.Do(func() {
		s.state.mu.Lock()
		s.state.sessions--
		s.state.mu.Unlock()
	})
}
