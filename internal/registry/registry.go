// Package registry is the canonical, identity-keyed table of live formula
// nodes with a synchronous change feed.
package registry

import (
	"time"

	"github.com/starford/formulary/internal/apperr"
	"github.com/starford/formulary/internal/models"
)

// Action describes a registry mutation.
type Action string

const (
	ActionAdded   Action = "added"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Observer receives every mutation. For ActionDeleted the node is the last
// stored value.
type Observer func(node models.FormulaNode, action Action)

// Registry stores formula nodes by id.
//
// Registry does no locking; its owner serializes access. Observers run
// synchronously, in subscription order, before the mutating call returns.
type Registry struct {
	nodes map[string]models.FormulaNode
	order []string
	now   func() time.Time

	observers []*Subscription
	nextSub   uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source used to refresh ModifiedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New returns an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		nodes: make(map[string]models.FormulaNode),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add stores node as given. Adding an id that is already present fails with
// apperr.ErrAlreadyExists.
func (r *Registry) Add(node models.FormulaNode) error {
	if node.ID == "" {
		return apperr.ErrInvalid
	}
	if _, ok := r.nodes[node.ID]; ok {
		return apperr.ErrAlreadyExists
	}
	r.nodes[node.ID] = node
	r.order = append(r.order, node.ID)
	r.notify(node, ActionAdded)
	return nil
}

// Update merges p into the stored node and sets ModifiedAt to the current
// time. Update never re-renders: callers that change the source must render
// first and pass the derived fields in p.
func (r *Registry) Update(id string, p models.Patch) (models.FormulaNode, error) {
	node, ok := r.nodes[id]
	if !ok {
		return models.FormulaNode{}, apperr.ErrNotFound
	}
	node = p.Apply(node)
	node.ModifiedAt = r.now()
	r.nodes[id] = node
	r.notify(node, ActionUpdated)
	return node, nil
}

// Restore replaces the stored node with snapshot verbatim, timestamps
// included. It is the undo path for updates.
func (r *Registry) Restore(snapshot models.FormulaNode) error {
	if _, ok := r.nodes[snapshot.ID]; !ok {
		return apperr.ErrNotFound
	}
	r.nodes[snapshot.ID] = snapshot
	r.notify(snapshot, ActionUpdated)
	return nil
}

// Delete removes id and returns the removed node. Deleting an unknown id is a
// no-op.
func (r *Registry) Delete(id string) (models.FormulaNode, bool) {
	node, ok := r.nodes[id]
	if !ok {
		return models.FormulaNode{}, false
	}
	delete(r.nodes, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.notify(node, ActionDeleted)
	return node, true
}

// Get returns the node stored under id.
func (r *Registry) Get(id string) (models.FormulaNode, bool) {
	node, ok := r.nodes[id]
	return node, ok
}

// GetAll returns every node in insertion order.
func (r *Registry) GetAll() []models.FormulaNode {
	out := make([]models.FormulaNode, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.nodes[id])
	}
	return out
}

// Len returns the number of stored nodes.
func (r *Registry) Len() int {
	return len(r.nodes)
}

func (r *Registry) notify(node models.FormulaNode, action Action) {
	// Observers may unsubscribe while being notified.
	subs := append([]*Subscription(nil), r.observers...)
	for _, s := range subs {
		if s.active {
			s.fn(node, action)
		}
	}
}
