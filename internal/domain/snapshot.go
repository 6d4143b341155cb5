package domain

import "time"

// Snapshot is the full set of queues and their tasks. Each queue keeps its
// tasks in insertion order, which is also the order queued tasks are claimed.
type Snapshot struct {
	// Version increases with every in-memory mutation. Stores use it to drop
	// writes that were overtaken by a newer snapshot.
	Version uint64             `json:"version"`
	Queues  map[string][]*Task `json:"queues"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{Queues: make(map[string][]*Task)}
}

// EnsureQueue creates the named queue if it does not exist yet.
func (s *Snapshot) EnsureQueue(name string) {
	if s.Queues == nil {
		s.Queues = make(map[string][]*Task)
	}
	if _, ok := s.Queues[name]; !ok {
		s.Queues[name] = []*Task{}
	}
}

// Append adds a task to the back of its queue, creating the queue if needed.
func (s *Snapshot) Append(t *Task) {
	s.EnsureQueue(t.QueueName)
	s.Queues[t.QueueName] = append(s.Queues[t.QueueName], t)
}

// Find returns the task with the given id in the named queue.
func (s *Snapshot) Find(queueName, id string) (*Task, bool) {
	for _, t := range s.Queues[queueName] {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// MoveToBack moves a task to the end of its queue so that it is claimed after
// every task that is already waiting.
func (s *Snapshot) MoveToBack(queueName, id string) bool {
	tasks := s.Queues[queueName]
	for i, t := range tasks {
		if t.ID != id {
			continue
		}
		rest := append(tasks[:i:i], tasks[i+1:]...)
		s.Queues[queueName] = append(rest, t)
		return true
	}
	return false
}

// NextQueued returns the oldest queued task of the named queue.
func (s *Snapshot) NextQueued(queueName string) (*Task, bool) {
	for _, t := range s.Queues[queueName] {
		if t.Status == TaskStatusQueued {
			return t, true
		}
	}
	return nil, false
}

// Each calls fn for every task of every queue.
func (s *Snapshot) Each(fn func(t *Task)) {
	for _, tasks := range s.Queues {
		for _, t := range tasks {
			fn(t)
		}
	}
}

// Count returns the number of tasks per status across all queues.
func (s *Snapshot) Count() map[TaskStatus]int {
	counts := make(map[TaskStatus]int)
	s.Each(func(t *Task) { counts[t.Status]++ })
	return counts
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{Version: s.Version, Queues: make(map[string][]*Task, len(s.Queues))}
	for name, tasks := range s.Queues {
		copied := make([]*Task, 0, len(tasks))
		for _, t := range tasks {
			copied = append(copied, t.Clone())
		}
		c.Queues[name] = copied
	}
	return c
}

// Compact removes terminal tasks and any queue left empty, in place. It
// returns the number of tasks removed. Compacting twice has the same effect
// as compacting once.
func (s *Snapshot) Compact() int {
	return s.removeTerminal(func(*Task) bool { return true })
}

// PruneTerminal removes terminal tasks last updated before cutoff and any
// queue left empty. It returns the number of tasks removed.
func (s *Snapshot) PruneTerminal(cutoff time.Time) int {
	return s.removeTerminal(func(t *Task) bool { return t.UpdatedAt.Before(cutoff) })
}

func (s *Snapshot) removeTerminal(match func(*Task) bool) int {
	removed := 0
	for name, tasks := range s.Queues {
		kept := tasks[:0]
		for _, t := range tasks {
			if t.Status.IsTerminal() && match(t) {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		if len(kept) == 0 {
			delete(s.Queues, name)
			continue
		}
		s.Queues[name] = kept
	}
	return removed
}
