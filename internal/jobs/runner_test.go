package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resident-intake/internal/conversation"
	"resident-intake/internal/lock"
)

// slowHandler records how many jobs per phone run at once.
type slowHandler struct {
	delay time.Duration
	fail  error

	mu      sync.Mutex
	active  map[string]int
	maxSame int
	seen    map[string][]string
	closed  []string
}

func newSlowHandler(delay time.Duration) *slowHandler {
	return &slowHandler{delay: delay, active: map[string]int{}, seen: map[string][]string{}}
}

func (h *slowHandler) Handle(ctx context.Context, in conversation.Inbound) (conversation.Outcome, error) {
	h.mu.Lock()
	h.active[in.Phone]++
	if h.active[in.Phone] > h.maxSame {
		h.maxSame = h.active[in.Phone]
	}
	h.mu.Unlock()

	time.Sleep(h.delay)

	h.mu.Lock()
	h.active[in.Phone]--
	h.seen[in.Phone] = append(h.seen[in.Phone], in.Text)
	h.mu.Unlock()

	if h.fail != nil {
		return conversation.Outcome{Reply: "problem"}, h.fail
	}
	return conversation.Outcome{Reply: "re: " + in.Text}, nil
}

func (h *slowHandler) Close(ctx context.Context, propertyID, phone string) (conversation.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = append(h.closed, phone)
	return conversation.Outcome{Reply: "closed"}, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) Send(_ context.Context, phone, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, phone+": "+text)
}

func newTestQueue(repo Repository) *Queue {
	q := NewQueue(repo)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	q.clock = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Millisecond)
	}
	return q
}

func TestRunner_NeverOverlapsJobsOfOnePhone(t *testing.T) {
	repo := NewMemoryRepo()
	q := newTestQueue(repo)
	ctx := context.Background()

	phones := []string{"+6011", "+6022", "+6033"}
	for i := 0; i < 4; i++ {
		for _, p := range phones {
			_, err := q.EnqueueMessage(ctx, "p1", p, MessagePayload{Text: fmt.Sprintf("msg %d", i)})
			require.NoError(t, err)
		}
	}

	h := newSlowHandler(5 * time.Millisecond)
	sender := &recordingSender{}
	runner := NewRunner(repo, lock.NewMemoryLocker(time.Second), h, sender, 0)

	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				pending, _ := repo.ListPending(ctx, 0)
				if len(pending) == 0 {
					return
				}
				_, _ = runner.RunOnce(ctx)
				time.Sleep(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.maxSame, "two jobs of one phone ran at once")
	done, err := repo.ListByStatus(ctx, "p1", StatusDone, 0)
	require.NoError(t, err)
	assert.Len(t, done, 12)
	for _, p := range phones {
		assert.Equal(t, []string{"msg 0", "msg 1", "msg 2", "msg 3"}, h.seen[p], "phone %s out of order", p)
	}
	assert.Len(t, sender.sent, 12)
}

func TestRunner_HeldLockLeavesJobPending(t *testing.T) {
	repo := NewMemoryRepo()
	q := newTestQueue(repo)
	ctx := context.Background()
	job, err := q.EnqueueMessage(ctx, "p1", "+6011", MessagePayload{Text: "kitchen sink leaking"})
	require.NoError(t, err)

	locker := lock.NewMemoryLocker(time.Minute)
	lease, err := locker.Acquire(ctx, lock.PhoneKey("+6011"))
	require.NoError(t, err)

	h := newSlowHandler(0)
	runner := NewRunner(repo, locker, h, nil, 0)
	n, err := runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := repo.Get(ctx, "p1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 0, got.Attempts)

	require.NoError(t, lease.Release(ctx))
	n, err = runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunner_HandlerErrorMarksFailedWithoutRetry(t *testing.T) {
	repo := NewMemoryRepo()
	q := newTestQueue(repo)
	ctx := context.Background()
	job, err := q.EnqueueMessage(ctx, "p1", "+6011", MessagePayload{Text: "pipe burst"})
	require.NoError(t, err)

	h := newSlowHandler(0)
	h.fail = errors.New("save session: db down")
	sender := &recordingSender{}
	runner := NewRunner(repo, lock.NewMemoryLocker(time.Minute), h, sender, 0)

	_, err = runner.RunOnce(ctx)
	require.NoError(t, err)
	_, err = runner.RunOnce(ctx)
	require.NoError(t, err)

	got, err := repo.Get(ctx, "p1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "save session: db down", got.ErrorMessage)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, []string{"+6011: problem"}, sender.sent)

	require.NoError(t, q.Requeue(ctx, "p1", job.ID))
	got, _ = repo.Get(ctx, "p1", job.ID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestRunner_DispatchesCloseJobs(t *testing.T) {
	repo := NewMemoryRepo()
	q := newTestQueue(repo)
	ctx := context.Background()
	_, err := q.EnqueueClose(ctx, "p1", "+6011")
	require.NoError(t, err)

	h := newSlowHandler(0)
	sender := &recordingSender{}
	runner := NewRunner(repo, lock.NewMemoryLocker(time.Minute), h, sender, 0)
	n, err := runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"+6011"}, h.closed)
	assert.Equal(t, []string{"+6011: closed"}, sender.sent)
}

func TestRunner_UnknownKindFails(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	require.NoError(t, repo.Enqueue(ctx, Job{ID: "j1", PropertyID: "p1", Phone: "+6011", Kind: "fax", Status: StatusPending}))

	runner := NewRunner(repo, lock.NewMemoryLocker(time.Minute), newSlowHandler(0), nil, 0)
	_, err := runner.RunOnce(ctx)
	require.NoError(t, err)

	got, err := repo.Get(ctx, "p1", "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "unknown job kind")
}

func TestPool_StopsOnCancel(t *testing.T) {
	repo := NewMemoryRepo()
	q := newTestQueue(repo)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := q.EnqueueMessage(ctx, "p1", "+6011", MessagePayload{Text: "lift broken"})
	require.NoError(t, err)

	h := newSlowHandler(0)
	runner := NewRunner(repo, lock.NewMemoryLocker(time.Minute), h, nil, 0)
	pool := NewPool(runner, repo, 2, 5*time.Millisecond, time.Minute)

	errCh := make(chan error, 1)
	go func() { errCh <- pool.Run(ctx) }()

	require.Eventually(t, func() bool {
		done, _ := repo.ListByStatus(context.Background(), "p1", StatusDone, 0)
		return len(done) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("pool did not stop")
	}
}
