package queue

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// ReplyName prefixes the reply queue of every flow. Node names normalizing
// to it, or to anything starting with ReplyName+"_", are reserved.
const ReplyName = "reply"

// IsReserved reports whether the normalized queue name belongs to the reply
// queues.
func IsReserved(qname string) bool {
	return qname == ReplyName || strings.HasPrefix(qname, ReplyName+"_")
}

var nonAlphanumeric = regexp.MustCompile(`[^0-9a-zA-Z]+`)

// Normalize maps a stage name onto its queue name: runs of characters other
// than ASCII letters and digits become one underscore, the result is lower
// cased and stripped of leading and trailing underscores.
func Normalize(name string) string {
	return strings.Trim(strings.ToLower(nonAlphanumeric.ReplaceAllString(name, "_")), "_")
}

// Registry owns the queues of one flow, keyed by normalized name.
//
// A registry handed to several flows merges their node queues by name. Each
// flow still claims a reply queue of its own.
type Registry struct {
	mu     sync.Mutex
	queues map[string]*Queue
	total  atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]*Queue)}
}

// Get returns the queue for name, creating it on first use.
func (r *Registry) Get(name string) *Queue {
	key := Normalize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[key]
	if !ok {
		q = newQueue(key, &r.total)
		r.queues[key] = q
	}
	return q
}

// ClaimReply creates a reply queue for owner that no other claimant on this
// registry uses: reply_<owner>, suffixed with a counter when already taken.
func (r *Registry) ClaimReply(owner string) *Queue {
	base := ReplyName
	if n := Normalize(owner); n != "" {
		base += "_" + n
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := base
	for i := 2; ; i++ {
		if _, taken := r.queues[key]; !taken {
			break
		}
		key = fmt.Sprintf("%s_%d", base, i)
	}
	q := newQueue(key, &r.total)
	r.queues[key] = q
	return q
}

// Names returns the queue names in lexical order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.queues))
}

// Sizes snapshots the pending count of every queue.
func (r *Registry) Sizes() map[string]int {
	r.mu.Lock()
	queues := maps.Clone(r.queues)
	r.mu.Unlock()

	sizes := make(map[string]int, len(queues))
	for name, q := range queues {
		sizes[name] = q.Pending()
	}
	return sizes
}

// Pending returns the data deliveries queued or unacknowledged across every
// queue. A delivery moved between queues is added to its destination before
// it is acknowledged at its source, so the count never dips to zero while
// work is in flight.
func (r *Registry) Pending() int64 {
	return r.total.Load()
}

// Empty reports whether no work is pending anywhere.
func (r *Registry) Empty() bool {
	return r.Pending() == 0
}
