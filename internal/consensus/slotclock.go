package consensus

import (
	"sync/atomic"
	"time"
)

// SlotsPerResync is how many ticks elapse between NTP resyncs.
const SlotsPerResync = 128

// TimeSource supplies wall-clock unix seconds. NTP acquisition itself is
// treated as an external collaborator; this interface is the only surface
// the clock depends on, so a real NTP-backed implementation can be wired
// in without touching SlotClock.
type TimeSource interface {
	UnixSeconds() (int64, error)
}

// SystemTimeSource reads the local system clock. Used until a real NTP
// client is wired in; swapping TimeSource implementations is enough to
// change the time source without touching SlotClock.
type SystemTimeSource struct{}

func (SystemTimeSource) UnixSeconds() (int64, error) {
	return time.Now().Unix(), nil
}

// SlotClock maintains current_slot as a single-writer atomic counter,
// ticked by a dedicated goroutine and periodically resynced against
// TimeSource to correct drift.
type SlotClock struct {
	currentSlot atomic.Uint64

	genesisEpochSecond int64
	slotDuration       time.Duration
	source             TimeSource

	stop chan struct{}
	done chan struct{}
}

// NewSlotClock builds a clock for a chain whose genesis landed at
// genesisEpochSecond (unix seconds), ticking every slotDuration.
func NewSlotClock(genesisEpochSecond int64, slotDuration time.Duration, source TimeSource) *SlotClock {
	if source == nil {
		source = SystemTimeSource{}
	}
	return &SlotClock{
		genesisEpochSecond: genesisEpochSecond,
		slotDuration:       slotDuration,
		source:             source,
	}
}

// Slot returns the current slot number, readable concurrently with Run.
func (c *SlotClock) Slot() uint64 {
	return c.currentSlot.Load()
}

func (c *SlotClock) slotFromNow() (uint64, error) {
	now, err := c.source.UnixSeconds()
	if err != nil {
		return 0, err
	}
	elapsed := now - c.genesisEpochSecond
	if elapsed < 0 {
		return 0, nil
	}
	return uint64(elapsed) / uint64(c.slotDuration/time.Second), nil
}

// Run initializes current_slot from the time source and then ticks it
// forward every slotDuration, resyncing against the time source every
// SlotsPerResync ticks to correct drift. Blocks until Stop is called.
func (c *SlotClock) Run() error {
	initial, err := c.slotFromNow()
	if err != nil {
		return err
	}
	c.currentSlot.Store(initial)

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	defer close(c.done)

	ticksSinceResync := uint64(0)
	nextTick := time.Now().Add(c.slotDuration)

	for {
		sleep := time.Until(nextTick)
		if sleep < 0 {
			sleep = 0
		}
		timer := time.NewTimer(sleep)
		select {
		case <-c.stop:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		ticksSinceResync++
		if ticksSinceResync >= SlotsPerResync {
			ticksSinceResync = 0
			if resynced, err := c.slotFromNow(); err == nil {
				c.currentSlot.Store(resynced)
				// Align phase to the next multiple of slot_duration.
				now := time.Now()
				nextTick = now.Add(c.slotDuration - (now.Sub(now.Truncate(c.slotDuration))))
				continue
			}
		}

		c.currentSlot.Add(1)
		nextTick = nextTick.Add(c.slotDuration)
	}
}

// Stop halts the clock's ticking goroutine and waits for Run to return.
func (c *SlotClock) Stop() {
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
}
