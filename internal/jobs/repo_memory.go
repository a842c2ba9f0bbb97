package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory repository useful for tests and local development.
type MemoryRepo struct {
	mu    sync.Mutex
	jobs  []Job
	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{clock: time.Now} }

func (r *MemoryRepo) Enqueue(ctx context.Context, j Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, j)
	sort.SliceStable(r.jobs, func(a, b int) bool { return r.jobs[a].CreatedAt.Before(r.jobs[b].CreatedAt) })
	return nil
}

func (r *MemoryRepo) ListPending(ctx context.Context, limit int) ([]Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Job
	for _, j := range r.jobs {
		if j.Status == StatusPending {
			out = append(out, j)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *MemoryRepo) ClaimNextForPhone(ctx context.Context, propertyID, phone string) (Job, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.jobs {
		j := &r.jobs[i]
		if j.PropertyID == propertyID && j.Phone == phone && j.Status == StatusPending {
			j.Status = StatusProcessing
			j.Attempts++
			j.UpdatedAt = r.clock().UTC()
			return *j, true, nil
		}
	}
	return Job{}, false, nil
}

func (r *MemoryRepo) MarkDone(ctx context.Context, id string) error {
	return r.finish(id, StatusDone, "")
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, id, message string) error {
	return r.finish(id, StatusFailed, message)
}

func (r *MemoryRepo) finish(id string, to Status, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.jobs {
		j := &r.jobs[i]
		if j.ID == id && j.Status == StatusProcessing {
			j.Status = to
			j.ErrorMessage = message
			j.UpdatedAt = r.clock().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepo) Requeue(ctx context.Context, propertyID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.jobs {
		j := &r.jobs[i]
		if j.ID != id || j.PropertyID != propertyID {
			continue
		}
		if j.Status != StatusFailed {
			return ErrNotFailed
		}
		j.Status = StatusPending
		j.ErrorMessage = ""
		j.UpdatedAt = r.clock().UTC()
		return nil
	}
	return ErrNotFound
}

func (r *MemoryRepo) ResetStale(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.jobs {
		j := &r.jobs[i]
		if j.Status == StatusProcessing && j.UpdatedAt.Before(before) {
			j.Status = StatusPending
			j.UpdatedAt = r.clock().UTC()
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) ListByStatus(ctx context.Context, propertyID string, status Status, limit int) ([]Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Job
	for _, j := range r.jobs {
		if j.PropertyID == propertyID && j.Status == status {
			out = append(out, j)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *MemoryRepo) Get(ctx context.Context, propertyID, id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id && j.PropertyID == propertyID {
			return j, nil
		}
	}
	return Job{}, ErrNotFound
}
