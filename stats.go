package knet

import (
	"sync"
	"time"
)

// Stats is an immutable snapshot of a Connection's traffic and reliability
// counters, safe to read after Connection.Stats returns it: the application
// only ever sees a copy taken under the tracker's lock, never live state.
type Stats struct {
	BytesInPerSec    float64
	BytesOutPerSec   float64
	PacketsInPerSec  float64
	PacketsOutPerSec float64
	PacketLossRate   float64
	RTT              time.Duration
	RTO              time.Duration
	DatagramSendRate float64
	PendingAcks      int
	InFlightMessages int
}

// statsTracker accumulates the raw counters refreshLocked folds into
// per-second rates for the Stats snapshot every statsWindow, grounded in kNet's
// MessageConnection::AddOutboundStats/AddInboundStats/ComputeStats rolling
// window.
type statsTracker struct {
	mu sync.Mutex

	windowStart    time.Time
	bytesInWindow  int64
	bytesOutWindow int64

	bytesInPerSec  float64
	bytesOutPerSec float64

	packetsInWindow  int
	packetsOutWindow int

	packetsInPerSec  float64
	packetsOutPerSec float64

	packetsReceivedWindow int
	packetsLostWindow     int
	packetLossRate        float64
}

const statsWindow = 5 * time.Second

func newStatsTracker() *statsTracker {
	return &statsTracker{windowStart: time.Now()}
}

func (s *statsTracker) recordIn(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesInWindow += int64(n)
	s.packetsInWindow++
	s.refreshLocked()
}

func (s *statsTracker) recordOut(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesOutWindow += int64(n)
	s.packetsOutWindow++
	s.refreshLocked()
}

func (s *statsTracker) recordPacketReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packetsReceivedWindow++
	s.refreshLocked()
}

func (s *statsTracker) recordPacketLost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packetsLostWindow++
	s.refreshLocked()
}

// refreshLocked recomputes the rolling per-second rates once statsWindow has
// elapsed, then starts a fresh window. Caller must hold s.mu.
func (s *statsTracker) refreshLocked() {
	elapsed := time.Since(s.windowStart)
	if elapsed < statsWindow {
		return
	}
	secs := elapsed.Seconds()
	s.bytesInPerSec = float64(s.bytesInWindow) / secs
	s.bytesOutPerSec = float64(s.bytesOutWindow) / secs
	s.packetsInPerSec = float64(s.packetsInWindow) / secs
	s.packetsOutPerSec = float64(s.packetsOutWindow) / secs

	total := s.packetsReceivedWindow + s.packetsLostWindow
	if total > 0 {
		s.packetLossRate = float64(s.packetsLostWindow) / float64(total)
	} else {
		s.packetLossRate = 0
	}

	s.windowStart = time.Now()
	s.bytesInWindow = 0
	s.bytesOutWindow = 0
	s.packetsInWindow = 0
	s.packetsOutWindow = 0
	s.packetsReceivedWindow = 0
	s.packetsLostWindow = 0
}

func (s *statsTracker) snapshot() (bytesInPerSec, bytesOutPerSec, packetsInPerSec, packetsOutPerSec, lossRate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesInPerSec, s.bytesOutPerSec, s.packetsInPerSec, s.packetsOutPerSec, s.packetLossRate
}
