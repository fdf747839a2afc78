package pubsub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiscreteFeedDelivery(t *testing.T) {
	feed := New[int]()

	var got []int
	unsub := feed.Subscribe(func(v int) { got = append(got, v) })

	feed.Publish(1)
	feed.Publish(2)
	assert.Equal(t, []int{1, 2}, got)

	unsub()
	feed.Publish(3)
	assert.Equal(t, []int{1, 2}, got, "unsubscribed callback must not fire")
}

func TestDiscreteFeedHasNoCurrent(t *testing.T) {
	feed := New[string]()
	feed.Publish("hello")

	_, ok := feed.Current()
	assert.False(t, ok)
}

func TestReplayFeedReplaysOnSubscribe(t *testing.T) {
	feed := NewReplay("initial")

	var got []string
	feed.Subscribe(func(v string) { got = append(got, v) })
	assert.Equal(t, []string{"initial"}, got)

	feed.Publish("updated")
	assert.Equal(t, []string{"initial", "updated"}, got)

	// A late subscriber sees only the newest value.
	var late []string
	feed.Subscribe(func(v string) { late = append(late, v) })
	assert.Equal(t, []string{"updated"}, late)

	cur, ok := feed.Current()
	assert.True(t, ok)
	assert.Equal(t, "updated", cur)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	feed := New[int]()

	calls := 0
	first := feed.Subscribe(func(int) { calls++ })
	second := feed.Subscribe(func(int) { calls++ })

	first()
	first()

	feed.Publish(7)
	assert.Equal(t, 1, calls, "removing one subscriber twice must not disturb the other")

	second()
}

func TestClosedFeedIsInert(t *testing.T) {
	feed := NewReplay(1)
	feed.Close()

	called := false
	unsub := feed.Subscribe(func(int) { called = true })
	feed.Publish(2)

	assert.False(t, called)
	unsub()
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	feed := New[int]()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := feed.Subscribe(func(int) {})
			unsub()
		}()
		go func() {
			defer wg.Done()
			feed.Publish(1)
		}()
	}
	wg.Wait()
}
