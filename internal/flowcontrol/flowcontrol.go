// Package flowcontrol implements the additive-increase/multiplicative-decrease
// datagram send-rate controller, grounded in kNet's
// UDPMessageConnection::HandleFlowControl/CanSendOutNewDatagram/NewDatagramSent.
package flowcontrol

import (
	"time"

	"github.com/packetflow/knet/internal/clock"
)

const (
	// StartingRate is the default send rate a freshly initialized
	// connection uses (70/sec at startup) absent an overriding config.
	StartingRate = 70.0

	// DefaultNominalCeiling is the default bandwidth estimate the
	// additive-increase step climbs toward, absent an overriding config.
	DefaultNominalCeiling = 50.0

	additiveIncreaseAggressiveness = 5e-2

	// tickFrameLength is the nominal length of one "frame" for the purposes
	// of counting how many ticks have elapsed since the last flow-control
	// evaluation (100 frames/sec).
	tickFrameLength = clock.Tick(int64(clock.TicksPerSec) / 100)

	maxFramesPerTick = 100

	// lossThreshold is the number of losses in one tick above which the
	// controller treats the tick as a real congestion signal rather than
	// an isolated drop.
	lossThreshold = 5

	// maxSendCreditIntervals bounds how much pacing credit can accumulate
	// before a burst of sends is allowed; beyond this many intervals the
	// pacing clock snaps to now instead — see OnDatagramSent below.
	maxSendCreditIntervals = 20
)

// Controller tracks the outbound datagram rate for one connection and the
// pacing state (last-sent tick) that governs when the next datagram may go out.
type Controller struct {
	sendRate            float64
	nominalCeiling      float64
	lowestRateOnLoss    float64
	lastFrameTick       clock.Tick
	lastDatagramSent    clock.Tick
	acksSinceLastTick   int
	lossesSinceLastTick int
}

// New returns a freshly initialized Controller starting at startingRate
// datagrams/sec, whose additive-increase step climbs toward nominalCeiling.
func New(startingRate, nominalCeiling float64) *Controller {
	now := clock.Now()
	return &Controller{
		sendRate:         startingRate,
		nominalCeiling:   nominalCeiling,
		lowestRateOnLoss: startingRate,
		lastFrameTick:    now,
		lastDatagramSent: now,
	}
}

// Rate returns the current datagrams/sec send rate.
func (c *Controller) Rate() float64 { return c.sendRate }

// RecordLoss registers one lost-datagram signal for the current tick window.
func (c *Controller) RecordLoss(rateAtSendTime float64) {
	if rateAtSendTime < c.lowestRateOnLoss {
		c.lowestRateOnLoss = rateAtSendTime
	}
	c.lossesSinceLastTick++
}

// RecordAck registers one acknowledged datagram for the current tick window.
func (c *Controller) RecordAck() {
	c.acksSinceLastTick++
}

// Tick evaluates the AIMD step if at least one 10ms frame has elapsed since
// the last evaluation. It is safe, and a no-op, to call
// this more often than every 10ms.
func (c *Controller) Tick() {
	numFrames := int64(clock.Now()-c.lastFrameTick) / int64(tickFrameLength)
	if numFrames <= 0 {
		return
	}
	if numFrames > maxFramesPerTick {
		numFrames = maxFramesPerTick
	}

	if c.lossesSinceLastTick > lossThreshold {
		candidate := c.lowestRateOnLoss * 0.9
		if candidate < 1 {
			candidate = 1
		}
		if candidate < c.sendRate {
			c.sendRate = candidate
		}
	} else {
		increment := float64(numFrames) * additiveIncreaseAggressiveness * (c.nominalCeiling - c.sendRate)
		if increment > 1 {
			increment = 1
		}
		c.sendRate += increment
		if c.sendRate > c.nominalCeiling {
			c.sendRate = c.nominalCeiling
		}
		c.lowestRateOnLoss = c.sendRate
	}

	c.acksSinceLastTick = 0
	c.lossesSinceLastTick = 0

	if numFrames < maxFramesPerTick {
		c.lastFrameTick += clock.Tick(numFrames) * tickFrameLength
	} else {
		// Rather than advancing lastFrameTick by exactly
		// maxFramesPerTick*tickFrameLength, which would still leave it
		// lagging under sustained starvation, snap it to now.
		c.lastFrameTick = clock.Now()
	}
}

// sendInterval returns the current per-datagram pacing interval.
func (c *Controller) sendInterval() clock.Tick {
	return clock.Tick(float64(clock.TicksPerSec) / c.sendRate)
}

// CanSend reports whether enough time has passed since the last datagram was
// sent to emit another one at the current rate.
func (c *Controller) CanSend() bool {
	return clock.Now()-c.lastDatagramSent >= c.sendInterval()
}

// TimeUntilCanSend returns how long until CanSend will next report true.
func (c *Controller) TimeUntilCanSend() time.Duration {
	wait := c.sendInterval() - (clock.Now() - c.lastDatagramSent)
	if wait < 0 {
		return 0
	}
	return time.Duration(wait)
}

// OnDatagramSent advances the pacing clock after a successful send. If more
// than maxSendCreditIntervals worth of credit had accumulated, the pacing
// clock snaps to now instead of advancing by one interval, preventing
// unbounded burst credit.
func (c *Controller) OnDatagramSent() {
	interval := c.sendInterval()
	if interval <= 0 {
		c.lastDatagramSent = clock.Now()
		return
	}
	elapsedIntervals := int64(clock.Now()-c.lastDatagramSent) / int64(interval)
	if elapsedIntervals < maxSendCreditIntervals {
		c.lastDatagramSent += interval
	} else {
		c.lastDatagramSent = clock.Now()
	}
}
