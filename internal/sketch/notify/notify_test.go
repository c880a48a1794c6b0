package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBannerHidesAfterHold(t *testing.T) {
	var mu sync.Mutex
	var events []bool
	b := NewBanner(20*time.Millisecond, func(_ Message, visible bool) {
		mu.Lock()
		events = append(events, visible)
		mu.Unlock()
	})

	b.Show("Project saved!", "", Success)
	msg, visible := b.Current()
	require.True(t, visible)
	assert.Equal(t, "Project saved!", msg.Text)

	assert.Eventually(t, func() bool {
		_, visible := b.Current()
		return !visible
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, events)
}

func TestBannerNewMessageRestartsHold(t *testing.T) {
	hides := make(chan Message, 4)
	b := NewBanner(40*time.Millisecond, func(m Message, visible bool) {
		if !visible {
			hides <- m
		}
	})

	b.Show("Running Project...", "", Info)
	time.Sleep(25 * time.Millisecond)
	b.Show("Save Error!", "", Failure)

	select {
	case m := <-hides:
		assert.Equal(t, "Save Error!", m.Text, "the replaced message must not be hidden by the old timer")
	case <-time.After(time.Second):
		t.Fatalf("banner never hid")
	}
	assert.Len(t, hides, 0)
}

func TestBannerClose(t *testing.T) {
	b := NewBanner(time.Hour, nil)
	b.Show("x", "", Info)
	b.Close()
	_, visible := b.Current()
	assert.False(t, visible)
}

func TestMultiAndRecorder(t *testing.T) {
	var a, c Recorder
	m := Multi{&a, nil, &c}
	OnSuccess(m, "ok", "d")
	OnFailure(m, "bad", "")
	OnInfo(nil, "ignored", "")

	assert.Equal(t, 1, a.Count(Success))
	assert.Equal(t, 1, c.Count(Failure))
	assert.Equal(t, []Message{{Text: "ok", Detail: "d", Kind: Success}, {Text: "bad", Kind: Failure}}, a.Messages())
}
