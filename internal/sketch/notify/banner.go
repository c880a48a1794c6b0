package notify

import (
	"sync"
	"time"
)

const DefaultBannerHold = 2 * time.Second

// Banner shows one message at a time and hides it after a hold period. A new
// message replaces the current one and restarts the hold.
type Banner struct {
	mu      sync.Mutex
	hold    time.Duration
	render  func(msg Message, visible bool)
	current Message
	visible bool
	timer   *time.Timer
	gen     uint64
}

// NewBanner calls render whenever the banner is shown or hidden. render runs
// without the banner's lock held.
func NewBanner(hold time.Duration, render func(msg Message, visible bool)) *Banner {
	if hold <= 0 {
		hold = DefaultBannerHold
	}
	if render == nil {
		render = func(Message, bool) {}
	}
	return &Banner{hold: hold, render: render}
}

func (b *Banner) Show(message, detail string, kind Kind) {
	msg := Message{Text: message, Detail: detail, Kind: kind}

	b.mu.Lock()
	b.gen++
	gen := b.gen
	b.current = msg
	b.visible = true
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.hold, func() { b.hide(gen) })
	b.mu.Unlock()

	b.render(msg, true)
}

func (b *Banner) hide(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || !b.visible {
		b.mu.Unlock()
		return
	}
	b.visible = false
	msg := b.current
	b.mu.Unlock()

	b.render(msg, false)
}

// Current returns the message on display, if any.
func (b *Banner) Current() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, b.visible
}

// Close hides the banner and stops its timer.
func (b *Banner) Close() {
	b.mu.Lock()
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	wasVisible := b.visible
	b.visible = false
	msg := b.current
	b.mu.Unlock()

	if wasVisible {
		b.render(msg, false)
	}
}
