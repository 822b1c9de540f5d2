package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"chatrelay/internal/messagestore/models"
)

type memoryStore struct {
	mu       sync.Mutex
	turns    []models.ChatTurn
	countErr error
	// countDelay widens the window between count and insert.
	countDelay time.Duration
}

func (m *memoryStore) CountUserMessages(ctx context.Context, userID string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	m.mu.Lock()
	n := 0
	for _, t := range m.turns {
		if t.UserID == userID && t.Role == models.RoleUser {
			n++
		}
	}
	m.mu.Unlock()
	if m.countDelay > 0 {
		time.Sleep(m.countDelay)
	}
	return n, nil
}

func (m *memoryStore) insert(userID, message string, role models.Role) (*models.ChatTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turn := models.ChatTurn{
		ID:        int64(len(m.turns) + 1),
		UserID:    userID,
		Message:   message,
		Role:      role,
		Timestamp: time.Now(),
	}
	m.turns = append(m.turns, turn)
	return &turn, nil
}

func (m *memoryStore) StoreUserMessage(ctx context.Context, userID, message string) (*models.ChatTurn, error) {
	return m.insert(userID, message, models.RoleUser)
}

func (m *memoryStore) StoreBotReply(ctx context.Context, userID, reply string) (*models.ChatTurn, error) {
	return m.insert(userID, reply, models.RoleBot)
}

func (m *memoryStore) roles(userID string) []models.Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Role
	for _, t := range m.turns {
		if t.UserID == userID {
			out = append(out, t.Role)
		}
	}
	return out
}

type stubProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []string
}

func (p *stubProvider) Complete(ctx context.Context, message string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, message)
	return p.reply, p.err
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func TestSendStoresBothTurns(t *testing.T) {
	t.Parallel()
	store := &memoryStore{}
	provider := &stubProvider{reply: "hi there"}
	svc := NewService(store, provider, 20)

	reply, err := svc.Send(context.Background(), "u1", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply != "hi there" {
		t.Fatalf("reply: got=%q want=%q", reply, "hi there")
	}

	roles := store.roles("u1")
	if len(roles) != 2 || roles[0] != models.RoleUser || roles[1] != models.RoleBot {
		t.Fatalf("stored roles: %v", roles)
	}
	if len(provider.calls) != 1 || provider.calls[0] != "hello" {
		t.Fatalf("provider calls: %v", provider.calls)
	}
}

func TestSendProviderFailureBecomesReply(t *testing.T) {
	t.Parallel()
	store := &memoryStore{}
	provider := &stubProvider{err: errors.New("status code: 401, invalid api key")}
	svc := NewService(store, provider, 20)

	reply, err := svc.Send(context.Background(), "u3", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.HasPrefix(reply, "AI call failed: ") || !strings.Contains(reply, "invalid api key") {
		t.Fatalf("unexpected failure reply: %q", reply)
	}

	store.mu.Lock()
	last := store.turns[len(store.turns)-1]
	store.mu.Unlock()
	if last.Role != models.RoleBot || last.Message != reply {
		t.Fatalf("bot turn not stored with failure text: %+v", last)
	}
}

func TestSendQuotaExceeded(t *testing.T) {
	t.Parallel()
	store := &memoryStore{}
	provider := &stubProvider{reply: "ok"}
	svc := NewService(store, provider, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Send(ctx, "u2", "msg"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	_, err := svc.Send(ctx, "u2", "one too many")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if got := len(store.roles("u2")); got != 6 {
		t.Fatalf("stored turns after rejection: got=%d want=6", got)
	}
	if got := provider.callCount(); got != 3 {
		t.Fatalf("provider calls: got=%d want=3", got)
	}

	if _, err := svc.Send(ctx, "someone-else", "hi"); err != nil {
		t.Fatalf("quota must be per user: %v", err)
	}
}

func TestSendZeroQuotaRejectsEverything(t *testing.T) {
	t.Parallel()
	store := &memoryStore{}
	svc := NewService(store, &stubProvider{reply: "ok"}, 0)

	if _, err := svc.Send(context.Background(), "u1", "hi"); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if got := len(store.roles("u1")); got != 0 {
		t.Fatalf("stored turns: got=%d want=0", got)
	}
}

func TestSendStoreErrorPropagates(t *testing.T) {
	t.Parallel()
	storeErr := errors.New("connection refused")
	store := &memoryStore{countErr: storeErr}
	provider := &stubProvider{reply: "ok"}
	svc := NewService(store, provider, 20)

	_, err := svc.Send(context.Background(), "u1", "hi")
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if provider.callCount() != 0 {
		t.Fatal("provider must not be called when the store fails")
	}
}

func TestSendConcurrentSameUserHonoursQuota(t *testing.T) {
	t.Parallel()
	store := &memoryStore{countDelay: 5 * time.Millisecond}
	provider := &stubProvider{reply: "ok"}
	const quota = 5
	svc := NewService(store, provider, quota)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, rejected := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Send(context.Background(), "racer", "hi")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrQuotaExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != quota || rejected != 20-quota {
		t.Fatalf("accepted=%d rejected=%d, want %d/%d", accepted, rejected, quota, 20-quota)
	}
	users := 0
	for _, r := range store.roles("racer") {
		if r == models.RoleUser {
			users++
		}
	}
	if users != quota {
		t.Fatalf("stored user turns: got=%d want=%d", users, quota)
	}
	if n := svc.locks.size(); n != 0 {
		t.Fatalf("lock table not drained: %d entries", n)
	}
}

type cancelAwareProvider struct{}

func (cancelAwareProvider) Complete(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "still answered", nil
}

func TestSendSurvivesCallerCancellationAfterAdmission(t *testing.T) {
	t.Parallel()
	store := &memoryStore{}
	svc := NewService(store, cancelAwareProvider{}, 20)

	ctx, cancel := context.WithCancel(context.Background())
	// The store sees a live context; cancellation happens before the provider call.
	svc.store = cancelOnUserInsert{Store: store, cancel: cancel}

	reply, err := svc.Send(ctx, "u1", "hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply != "still answered" {
		t.Fatalf("reply: got=%q", reply)
	}
	if got := len(store.roles("u1")); got != 2 {
		t.Fatalf("stored turns: got=%d want=2", got)
	}
}

type cancelOnUserInsert struct {
	Store
	cancel context.CancelFunc
}

func (c cancelOnUserInsert) StoreUserMessage(ctx context.Context, userID, message string) (*models.ChatTurn, error) {
	turn, err := c.Store.StoreUserMessage(ctx, userID, message)
	c.cancel()
	return turn, err
}
