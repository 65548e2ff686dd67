package registry

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id     uint64
	fn     Observer
	reg    *Registry
	active bool
}

// Subscribe registers fn and returns the handle that removes it.
func (r *Registry) Subscribe(fn Observer) *Subscription {
	r.nextSub++
	s := &Subscription{id: r.nextSub, fn: fn, reg: r, active: fn != nil}
	if s.active {
		r.observers = append(r.observers, s)
	}
	return s
}

// Unsubscribe stops delivery to the observer. It is safe to call more than
// once and from inside the observer itself.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.active {
		return
	}
	s.active = false
	obs := s.reg.observers
	for i, o := range obs {
		if o.id == s.id {
			s.reg.observers = append(obs[:i:i], obs[i+1:]...)
			break
		}
	}
}

// Active reports whether the subscription still receives notifications.
func (s *Subscription) Active() bool {
	return s != nil && s.active
}
