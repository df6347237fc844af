package utils

import (
	"sort"
	"sync"
)

// UsageCounter tracks calls made to external services (geocoder requests,
// scraped pages). It is passed explicitly to the clients that report usage.
type UsageCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewUsageCounter creates an empty UsageCounter.
func NewUsageCounter() *UsageCounter {
	return &UsageCounter{counts: make(map[string]int)}
}

// Inc adds one to the named counter. A nil counter is a no-op.
func (u *UsageCounter) Inc(name string) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.counts[name]++
	u.mu.Unlock()
}

// Get returns the current value of the named counter.
func (u *UsageCounter) Get(name string) int {
	if u == nil {
		return 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counts[name]
}

// Names returns the counter names in sorted order.
func (u *UsageCounter) Names() []string {
	if u == nil {
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	names := make([]string, 0, len(u.counts))
	for name := range u.counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
