// Package ledger tracks the crawl frontier: the set of discovered-but-
// unfetched URLs and the set of already-fetched URLs with their content
// fingerprints. All operations are safe for concurrent workers.
package ledger

import "sync"

// Ledger holds the unvisited queue and the visited map. A URL moves through
// exactly one lifecycle: added unvisited once, dequeued by exactly one
// worker, marked visited once. Re-adding a known URL is a no-op.
type Ledger struct {
	mu        sync.Mutex
	unvisited []string            // FIFO, realizes breadth-first level order
	seen      map[string]struct{} // every URL ever enqueued, visited or not
	visited   map[string]string   // url -> content fingerprint ("" if none)
}

// New creates an empty Ledger
func New() *Ledger {
	return &Ledger{
		seen:    make(map[string]struct{}),
		visited: make(map[string]string),
	}
}

// AddUnvisited enqueues each URL that has not been seen before. Duplicates
// (queued, in-flight or visited) are ignored; dedup is by exact string.
func (l *Ledger) AddUnvisited(urls ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range urls {
		if _, ok := l.seen[u]; ok {
			continue
		}
		l.seen[u] = struct{}{}
		l.unvisited = append(l.unvisited, u)
	}
}

// GetOneUnvisited removes and returns the oldest unvisited URL. The second
// return value is false when the queue is empty.
func (l *Ledger) GetOneUnvisited() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.unvisited) == 0 {
		return "", false
	}
	u := l.unvisited[0]
	l.unvisited = l.unvisited[1:]
	return u, true
}

// DrainUnvisited removes and returns all currently queued URLs in FIFO
// order. Used by breadth-first traversal to snapshot one depth level.
func (l *Ledger) DrainUnvisited() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.unvisited
	l.unvisited = nil
	return batch
}

// IsUnvisitedEmpty reports whether the unvisited queue is empty
func (l *Ledger) IsUnvisitedEmpty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.unvisited) == 0
}

// IsVisited reports whether a fetch has been attempted for the URL
func (l *Ledger) IsVisited(url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.visited[url]
	return ok
}

// MarkVisited records the URL as terminally fetched, with the content
// fingerprint when one was computed.
func (l *Ledger) MarkVisited(url, fingerprint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[url] = struct{}{}
	l.visited[url] = fingerprint
}

// VisitedCount returns the number of URLs fetch was attempted for
func (l *Ledger) VisitedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visited)
}

// AllVisited returns a copy of the visited url -> fingerprint mapping
func (l *Ledger) AllVisited() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]string, len(l.visited))
	for u, fp := range l.visited {
		out[u] = fp
	}
	return out
}
