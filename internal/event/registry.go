package event

import (
	"sort"
	"sync"
)

type registration struct {
	id       string
	owner    Owner
	ownerID  string
	listener Listener
	seq      uint64
}

// registry stores listener buckets keyed by declaring type.
// Buckets are never mutated in place; writers install a new slice so
// readers can iterate a snapshot without holding the lock.
type registry struct {
	mu      sync.Mutex
	buckets map[*Type][]*registration
	byID    map[string]*Type
	seq     uint64
}

func newRegistry() *registry {
	return &registry{
		buckets: make(map[*Type][]*registration),
		byID:    make(map[string]*Type),
	}
}

func (r *registry) add(decl *Type, regs []*registration) {
	if len(regs) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.buckets[decl]
	bucket := make([]*registration, len(old), len(old)+len(regs))
	copy(bucket, old)
	for _, reg := range regs {
		r.seq++
		reg.seq = r.seq
		bucket = append(bucket, reg)
		r.byID[reg.id] = decl
	}
	sort.SliceStable(bucket, func(i, j int) bool {
		if bucket[i].listener.Priority != bucket[j].listener.Priority {
			return bucket[i].listener.Priority < bucket[j].listener.Priority
		}
		return bucket[i].seq < bucket[j].seq
	})
	r.buckets[decl] = bucket
}

func (r *registry) snapshot(decl *Type) []*registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buckets[decl]
}

func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	decl, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	r.rebuild(decl, func(reg *registration) bool { return reg.id != id })
	return true
}

func (r *registry) removeOwner(ownerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for decl, bucket := range r.buckets {
		n := 0
		for _, reg := range bucket {
			if reg.ownerID == ownerID {
				n++
				delete(r.byID, reg.id)
			}
		}
		if n == 0 {
			continue
		}
		removed += n
		r.rebuild(decl, func(reg *registration) bool { return reg.ownerID != ownerID })
	}
	return removed
}

// rebuild must be called with r.mu held.
func (r *registry) rebuild(decl *Type, keep func(*registration) bool) {
	old := r.buckets[decl]
	bucket := make([]*registration, 0, len(old))
	for _, reg := range old {
		if keep(reg) {
			bucket = append(bucket, reg)
		}
	}
	if len(bucket) == 0 {
		delete(r.buckets, decl)
		return
	}
	r.buckets[decl] = bucket
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *registry) countFor(t *Type) int {
	decl := t.declaring()
	if decl == nil {
		return 0
	}
	n := 0
	for _, reg := range r.snapshot(decl) {
		if t.Is(reg.listener.Type) {
			n++
		}
	}
	return n
}
