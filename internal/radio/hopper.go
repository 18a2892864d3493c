package radio

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Channels2GHz is the default 2.4 GHz channel plan (spec.md §4.3), matching
// _examples/original_source/src/config.py's CHANNELS_2_4GHZ.
var Channels2GHz = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}

// Channels5GHz is the optional 5 GHz channel plan, matching
// _examples/original_source/src/config.py's CHANNELS_5GHZ. cmd/wispd
// appends it to Channels2GHz unconditionally; no regulatory or hardware
// capability check is made, so on a 2.4 GHz-only radio these hops fail
// (non-fatally) in SetChannel.
var Channels5GHz = []int{
	36, 40, 44, 48, 52, 56, 60, 64,
	100, 104, 108, 112, 116, 120, 124, 128, 132, 136, 140, 144,
	149, 153, 157, 161, 165,
}

// ChannelSetter retunes the radio to a channel. Driver implements this.
type ChannelSetter interface {
	SetChannel(ctx context.Context, channel int) error
}

// Hopper cycles a Driver through a channel plan at a fixed interval until
// stopped, grounded on the teacher's hopping.ChannelHopper: round-robin
// index, ticker-driven loop, a pause/resume channel, and per-hop error
// counting with suppressed repeated logging.
type Hopper struct {
	switcher ChannelSetter
	interval time.Duration

	mu       sync.RWMutex
	channels []int

	currentIndex int
	errorCount   int
	current      atomic.Int64

	stopCh  chan struct{}
	pauseCh chan time.Duration
	once    sync.Once
}

// NewHopper constructs a Hopper over the given channel plan.
func NewHopper(switcher ChannelSetter, channels []int, interval time.Duration) *Hopper {
	return &Hopper{
		switcher: switcher,
		interval: interval,
		channels: channels,
		stopCh:   make(chan struct{}),
		pauseCh:  make(chan time.Duration, 1),
	}
}

// SetChannels updates the channel plan, resetting round-robin position.
func (h *Hopper) SetChannels(channels []int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels = channels
	h.currentIndex = 0
}

// CurrentChannel returns the channel most recently set, or 0 before the
// first hop.
func (h *Hopper) CurrentChannel() int {
	return int(h.current.Load())
}

// Pause suspends hopping for the given duration; a pending pause request
// is dropped if one is already queued.
func (h *Hopper) Pause(d time.Duration) {
	select {
	case h.pauseCh <- d:
	default:
	}
}

// Stop terminates the hop loop. Safe to call more than once.
func (h *Hopper) Stop() {
	h.once.Do(func() { close(h.stopCh) })
}

// Run drives the hop loop until Stop is called or ctx is cancelled. Intended
// to be run in its own goroutine by the Supervisor.
func (h *Hopper) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.hop(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case d := <-h.pauseCh:
			ticker.Stop()
			select {
			case <-time.After(d):
				ticker.Reset(h.interval)
			case <-h.stopCh:
				return
			case <-ctx.Done():
				return
			}
		case <-ticker.C:
			h.hop(ctx)
		}
	}
}

func (h *Hopper) hop(ctx context.Context) {
	h.mu.Lock()
	if len(h.channels) == 0 {
		h.mu.Unlock()
		return
	}
	if h.currentIndex >= len(h.channels) {
		h.currentIndex = 0
	}
	ch := h.channels[h.currentIndex]
	h.currentIndex = (h.currentIndex + 1) % len(h.channels)
	h.mu.Unlock()

	if err := h.switcher.SetChannel(ctx, ch); err != nil {
		h.errorCount++
		if h.errorCount == 1 || h.errorCount%10 == 0 {
			log.Printf("radio: set_channel %d failed: %v (consecutive errors: %d)", ch, err, h.errorCount)
		}
		return
	}
	if h.errorCount > 0 {
		log.Printf("radio: recovered after %d channel-set errors", h.errorCount)
		h.errorCount = 0
	}
	h.current.Store(int64(ch))
}
