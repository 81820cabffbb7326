// Package events provides typed publish/subscribe topics for change
// notification between client components and their observers.
//
// Publishers call Publish from the loop after a mutation commits; handlers run
// synchronously on the publishing goroutine in subscription order. There is no
// replay: a late subscriber only sees later events.
package events

import (
	"context"
	"sync"

	"github.com/and161185/imagefeed/internal/model"
)

// FeedChanged is emitted after a page of photos was appended to the feed.
type FeedChanged struct {
	Page   int           // page number just merged
	Photos []model.Photo // photos appended by this page, in arrival order
	Total  int           // feed length after the merge
}

// PhotoChanged is emitted after a confirmed like mutation replaced a photo.
type PhotoChanged struct {
	Index int
	Photo model.Photo
}

// ProfileImageChanged is emitted after the avatar URL was resolved.
type ProfileImageChanged struct {
	URL string
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Topic is a set of handlers for events of type T.
type Topic[T any] struct {
	mu   sync.Mutex
	next int
	subs []subscriber[T]
}

// Subscribe registers fn and returns a function that removes it. The returned
// function is idempotent.
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	t.mu.Lock()
	t.next++
	id := t.next
	t.subs = append(t.subs, subscriber[T]{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { t.remove(id) })
	}
}

// SubscribeContext registers fn until ctx is done.
func (t *Topic[T]) SubscribeContext(ctx context.Context, fn func(T)) {
	unsubscribe := t.Subscribe(fn)
	context.AfterFunc(ctx, unsubscribe)
}

func (t *Topic[T]) remove(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.subs {
		if s.id == id {
			t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
			return
		}
	}
}

// Len reports the number of live subscribers.
func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Publish delivers v to every subscriber registered at the time of the call.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	subs := make([]subscriber[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Bus groups the topics shared by the client components.
type Bus struct {
	FeedChanged         Topic[FeedChanged]
	PhotoChanged        Topic[PhotoChanged]
	ProfileImageChanged Topic[ProfileImageChanged]
}

// NewBus returns an empty bus.
func NewBus() *Bus { return &Bus{} }
