package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"authz-service/internal/ratelimit"
	"authz-service/internal/token"
)

type fakeRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func newFakeRevocations() *fakeRevocations {
	return &fakeRevocations{revoked: make(map[string]time.Time)}
}

func (f *fakeRevocations) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !expiresAt.After(time.Now()) {
		return true, nil
	}
	if until, ok := f.revoked[tokenID]; ok && time.Now().Before(until) {
		return false, nil
	}
	f.revoked[tokenID] = expiresAt
	return true, nil
}

func (f *fakeRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	until, ok := f.revoked[tokenID]
	return ok && time.Now().Before(until), nil
}

type countingStore struct {
	mu      sync.Mutex
	counts  map[string]int64
	resetAt map[string]time.Time
}

func newCountingStore() *countingStore {
	return &countingStore{counts: make(map[string]int64), resetAt: make(map[string]time.Time)}
}

func (s *countingStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counts[key]; !ok {
		s.resetAt[key] = time.Now().Add(window)
	}
	s.counts[key]++
	return s.counts[key], s.resetAt[key], nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (r *recordingAudit) Publish(ctx context.Context, key string, event interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := event.(AuditEvent); ok {
		r.events = append(r.events, e)
	}
	return nil
}

func (r *recordingAudit) byType(eventType string) []AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AuditEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type staticDirectory struct {
	email string
	role  string
}

func (d staticDirectory) Lookup(ctx context.Context, userID string) (string, string, error) {
	return d.email, d.role, nil
}

func newTestService(t *testing.T, users UserDirectory) (*AuthService, *recordingAudit) {
	t.Helper()

	codec, err := token.NewCodec(token.Config{
		Secret:     []byte("service-test-secret"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Issuer:     "authz-service",
	})
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}

	rules := ratelimit.Rules{ratelimit.WindowPerMinute: {Limit: 2, Duration: time.Minute}}
	limiter, err := ratelimit.NewEvaluator(newCountingStore(), rules, ratelimit.Options{}, nil)
	if err != nil {
		t.Fatalf("NewEvaluator error: %v", err)
	}

	audit := &recordingAudit{}
	return NewAuthService(codec, newFakeRevocations(), limiter, users, audit, zap.NewNop()), audit
}

func TestIssueTokens(t *testing.T) {
	t.Parallel()

	svc, audit := newTestService(t, nil)
	ctx := context.Background()

	pair, err := svc.IssueTokens(ctx, "user-1", "u@example.com", "admin")
	if err != nil {
		t.Fatalf("IssueTokens error: %v", err)
	}

	claims, err := svc.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("access token should verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "u@example.com" || claims.Role != "admin" {
		t.Errorf("claims mismatch: %+v", claims)
	}
	if time.Until(pair.AccessExpiresAt) > 15*time.Minute+time.Second {
		t.Errorf("access expiry too far out: %s", pair.AccessExpiresAt)
	}

	// Refresh token IDs must be unique per issuance.
	second, err := svc.IssueTokens(ctx, "user-1", "u@example.com", "admin")
	if err != nil {
		t.Fatalf("IssueTokens error: %v", err)
	}
	if pair.RefreshToken == second.RefreshToken {
		t.Errorf("expected distinct refresh tokens")
	}

	if got := audit.byType(EventTokenIssued); len(got) != 2 {
		t.Errorf("expected 2 token_issued events, got %d", len(got))
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	pair, err := svc.IssueTokens(ctx, "user-2", "", "")
	if err != nil {
		t.Fatalf("IssueTokens error: %v", err)
	}

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Errorf("refresh should mint a new refresh token")
	}

	// Replaying the consumed token must fail.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("expected ErrRefreshTokenRevoked on reuse, got %v", err)
	}

	// The rotated-in token still works.
	if _, err := svc.Refresh(ctx, next.RefreshToken); err != nil {
		t.Fatalf("rotated token should refresh: %v", err)
	}
}

// staleReadRevocations models independent service instances whose denylist
// reads lag behind writes: IsRevoked always reports not-revoked, so the
// single-use guarantee has to come from the atomic Revoke claim alone.
type staleReadRevocations struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func (f *staleReadRevocations) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed == nil {
		f.claimed = make(map[string]bool)
	}
	if f.claimed[tokenID] {
		return false, nil
	}
	f.claimed[tokenID] = true
	return true, nil
}

func (f *staleReadRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return false, nil
}

func TestRefresh_ConcurrentReuseAdmitsOne(t *testing.T) {
	t.Parallel()

	codec, err := token.NewCodec(token.Config{
		Secret:     []byte("service-test-secret"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Issuer:     "authz-service",
	})
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}
	rules := ratelimit.Rules{ratelimit.WindowPerMinute: {Limit: 100, Duration: time.Minute}}
	limiter, err := ratelimit.NewEvaluator(newCountingStore(), rules, ratelimit.Options{}, nil)
	if err != nil {
		t.Fatalf("NewEvaluator error: %v", err)
	}
	svc := NewAuthService(codec, &staleReadRevocations{}, limiter, nil, nil, zap.NewNop())

	ctx := context.Background()
	pair, err := svc.IssueTokens(ctx, "user-race", "", "")
	if err != nil {
		t.Fatalf("IssueTokens error: %v", err)
	}

	const callers = 8
	start := make(chan struct{})
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Refresh(ctx, pair.RefreshToken)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var admitted, rejected int
	for err := range results {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, ErrRefreshTokenRevoked):
			rejected++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if admitted != 1 || rejected != callers-1 {
		t.Fatalf("expected exactly one admitted refresh, got admitted=%d rejected=%d", admitted, rejected)
	}
}

func TestRefresh_InvalidToken(t *testing.T) {
	t.Parallel()

	svc, audit := newTestService(t, nil)

	_, err := svc.Refresh(context.Background(), "not.a.token")
	if !errors.Is(err, token.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if got := audit.byType(EventTokenRejected); len(got) != 1 {
		t.Errorf("expected a token_rejected event, got %d", len(got))
	}
}

func TestRefresh_EnrichesFromDirectory(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, staticDirectory{email: "dir@example.com", role: "editor"})
	ctx := context.Background()

	pair, err := svc.IssueTokens(ctx, "user-3", "dir@example.com", "editor")
	if err != nil {
		t.Fatalf("IssueTokens error: %v", err)
	}
	next, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	claims, err := svc.VerifyAccess(next.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess error: %v", err)
	}
	if claims.Email != "dir@example.com" || claims.Role != "editor" {
		t.Errorf("refreshed access token should carry directory fields: %+v", claims)
	}
}

func TestAuthorize(t *testing.T) {
	t.Parallel()

	svc, audit := newTestService(t, nil)
	ctx := context.Background()

	pair, err := svc.IssueTokens(ctx, "user-4", "", "")
	if err != nil {
		t.Fatalf("IssueTokens error: %v", err)
	}

	// Limit is 2 per minute: two admissions, then denial.
	for i := 0; i < 2; i++ {
		claims, result, err := svc.Authorize(ctx, pair.AccessToken, ratelimit.WindowPerMinute)
		if err != nil {
			t.Fatalf("Authorize error: %v", err)
		}
		if claims.UserID != "user-4" {
			t.Fatalf("unexpected identity %q", claims.UserID)
		}
		if !result.Allowed {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}

	_, result, err := svc.Authorize(ctx, pair.AccessToken, ratelimit.WindowPerMinute)
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if result.Allowed {
		t.Fatalf("third request should be denied")
	}
	if got := audit.byType(EventRateLimited); len(got) != 1 {
		t.Errorf("expected a rate_limited event, got %d", len(got))
	}
}

func TestAuthorize_InvalidToken(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, nil)

	_, _, err := svc.Authorize(context.Background(), "bogus", ratelimit.WindowPerMinute)
	if !errors.Is(err, token.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
