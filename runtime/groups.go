package runtime

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/samber/lo"

	"musink/domain"
	"musink/errors"
	"musink/protocol"
)

// GroupRegistry maps a group id to group state. Ids increase
// monotonically and are never reused, so a wrapped counter is treated as
// an administrative fault rather than a recoverable request error.
type GroupRegistry struct {
	mu     sync.RWMutex
	nextID domain.GroupID
	groups map[domain.GroupID]*domain.Group
}

func NewGroupRegistry() *GroupRegistry {
	return &GroupRegistry{groups: make(map[domain.GroupID]*domain.Group)}
}

// Allocate creates a new singleton group containing only code and
// returns its id.
func (r *GroupRegistry) Allocate(code string) (domain.GroupID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nextID == domain.GroupID(math.MaxInt) {
		return 0, errors.ErrGroupSpaceExhausted
	}
	id := r.nextID
	r.nextID++
	r.groups[id] = domain.NewGroup(id, code)
	return id, nil
}

// Get returns the live group for id. The pointer is only safe to mutate
// while the caller holds the Coordinator's transition lock.
func (r *GroupRegistry) Get(id domain.GroupID) (*domain.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", errors.ErrUnknownGroup, id)
	}
	return g, nil
}

// Remove dissolves a group. Missing ids are ignored: dissolution happens
// during cleanup paths that must not fail.
func (r *GroupRegistry) Remove(id domain.GroupID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, id)
}

// Views returns the full snapshot in ascending id order, ready for
// broadcast or a snapshot reply.
func (r *GroupRegistry) Views() []protocol.GroupView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := lo.Keys(r.groups)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return lo.Map(ids, func(id domain.GroupID, _ int) protocol.GroupView {
		g := r.groups[id]
		return protocol.GroupView{
			ID:      int(g.ID),
			Advert:  g.Advertising,
			Clients: append([]string(nil), g.Members...),
		}
	})
}

func (r *GroupRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}
