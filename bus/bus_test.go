package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_SyncOrderPreserved(t *testing.T) {
	b := New(nil)

	var got []int
	b.Subscribe("chan.a", func(m any) { got = append(got, m.(int)) })

	for i := 0; i < 5; i++ {
		b.Publish("chan.a", i)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestPublish_ExactChannelOnly(t *testing.T) {
	b := New(nil)

	var hit bool
	b.Subscribe("hsp.external.fact", func(any) { hit = true })

	b.Publish("hsp.external.task_request", "msg")
	assert.False(t, hit, "no wildcard matching at this layer")

	b.Publish("hsp.external.fact", "msg")
	assert.True(t, hit)
}

func TestPublish_AsyncDoesNotBlock(t *testing.T) {
	b := New(nil)

	release := make(chan struct{})
	done := make(chan struct{})
	b.SubscribeAsync("chan.slow", func(any) {
		<-release
		close(done)
	})

	start := time.Now()
	b.Publish("chan.slow", "msg")
	assert.Less(t, time.Since(start), 100*time.Millisecond, "publisher must not wait")

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler never ran")
	}
}

func TestPublish_PanicIsolation(t *testing.T) {
	b := New(nil)

	var second bool
	b.Subscribe("chan.a", func(any) { panic("bad subscriber") })
	b.Subscribe("chan.a", func(any) { second = true })

	require.NotPanics(t, func() { b.Publish("chan.a", "msg") })
	assert.True(t, second, "panic in one handler must not stop the rest")
}

func TestUnsubscribe(t *testing.T) {
	b := New(nil)

	var count int
	sub := b.Subscribe("chan.a", func(any) { count++ })
	other := b.Subscribe("chan.a", func(any) {})

	assert.Equal(t, 2, b.SubscriberCount("chan.a"))

	b.Unsubscribe(sub)
	assert.Equal(t, 1, b.SubscriberCount("chan.a"))

	b.Publish("chan.a", "msg")
	assert.Zero(t, count)

	b.Unsubscribe(other)
	assert.Zero(t, b.SubscriberCount("chan.a"))

	// Unsubscribing twice or with nil is harmless.
	b.Unsubscribe(other)
	b.Unsubscribe(nil)
}

func TestPublish_ConcurrentPublishers(t *testing.T) {
	b := New(nil)

	var mu sync.Mutex
	var total int
	b.Subscribe("chan.a", func(any) {
		mu.Lock()
		total++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish("chan.a", j)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, total)
}
