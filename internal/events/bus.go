// Package events provides the in-process invalidation bus that keeps cached
// queries in step with mutations.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/fruitsalade/ecloud/internal/metrics"
)

// Query names a family of cached reads.
type Query string

const (
	QueryChildren Query = "children"
	QueryStats    Query = "stats"
	QueryParent   Query = "parent"
	QueryAccount  Query = "account"
)

// AnyFolder matches every folder id when used in a subscription topic.
const AnyFolder = "*"

// Topic identifies one cached read. FolderID is "" for the root.
type Topic struct {
	Query    Query
	FolderID string
}

func (t Topic) matches(other Topic) bool {
	if t.Query != other.Query {
		return false
	}
	return t.FolderID == other.FolderID || t.FolderID == AnyFolder || other.FolderID == AnyFolder
}

// Invalidation tells subscribers that the named topics are stale.
type Invalidation struct {
	Topics     []Topic
	Generation uint64
}

// Touches reports whether inv makes t stale.
func (inv Invalidation) Touches(t Topic) bool {
	for _, got := range inv.Topics {
		if t.matches(got) {
			return true
		}
	}
	return false
}

// Subscription receives invalidations for the topics it was created with.
type Subscription struct {
	C      <-chan Invalidation
	ch     chan Invalidation
	topics []Topic
}

func (s *Subscription) wants(inv Invalidation) bool {
	for _, want := range s.topics {
		if inv.Touches(want) {
			return true
		}
	}
	return false
}

// Bus fans invalidations out to subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*Subscription]struct{}
	generation  atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[*Subscription]struct{})}
}

// Subscribe registers interest in topics. The caller must call Unsubscribe
// when done.
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	ch := make(chan Invalidation, 16)
	sub := &Subscription{C: ch, ch: ch, topics: topics}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub.ch)
}

// Publish bumps the generation and delivers inv to every matching
// subscriber. Non-blocking: a subscriber with a full buffer already has a
// pending refetch, so the extra signal is dropped.
func (b *Bus) Publish(inv Invalidation) uint64 {
	inv.Generation = b.generation.Add(1)
	for _, t := range inv.Topics {
		metrics.RecordInvalidation(string(t.Query))
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		if !sub.wants(inv) {
			continue
		}
		select {
		case sub.ch <- inv:
		default:
		}
	}
	return inv.Generation
}

// Generation returns the number of invalidations published so far.
func (b *Bus) Generation() uint64 {
	return b.generation.Load()
}

// Count returns the current number of subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// FolderTopics returns the listing and stats topics of a folder.
func FolderTopics(folderID string) []Topic {
	return []Topic{
		{Query: QueryChildren, FolderID: folderID},
		{Query: QueryStats, FolderID: folderID},
	}
}

// FolderChanged invalidates a folder's children and stats.
func FolderChanged(folderID string) Invalidation {
	return Invalidation{Topics: FolderTopics(folderID)}
}

// MoveInvalidation invalidates both ends of a move plus every cached
// parent lookup, since moved nodes now have a different parent.
func MoveInvalidation(srcFolderID, dstFolderID string) Invalidation {
	topics := FolderTopics(srcFolderID)
	if dstFolderID != srcFolderID {
		topics = append(topics, FolderTopics(dstFolderID)...)
	}
	topics = append(topics, Topic{Query: QueryParent, FolderID: AnyFolder})
	return Invalidation{Topics: topics}
}

// AccountChanged invalidates the cached account profile.
func AccountChanged() Invalidation {
	return Invalidation{Topics: []Topic{{Query: QueryAccount}}}
}
