package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"crypto-dashboard/internal/domain"
)

const (
	verifyTimeout     = 10 * time.Second
	minPasswordLength = 6
)

// SessionObserver is the shared read-only view of one session. Every
// caller watching the same token gets the same observer.
type SessionObserver struct {
	mu      sync.Mutex
	state   domain.SessionState
	settled chan struct{} // closed while state is not loading
	subs    map[uint64]func(domain.SessionState)
	nextSub uint64
}

func newObserver(initial domain.SessionState) *SessionObserver {
	o := &SessionObserver{
		state:   initial,
		settled: make(chan struct{}),
		subs:    make(map[uint64]func(domain.SessionState)),
	}
	if !initial.IsLoading {
		close(o.settled)
	}
	return o
}

// Current returns the latest state.
func (o *SessionObserver) Current() domain.SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Wait blocks until the state is no longer loading.
func (o *SessionObserver) Wait(ctx context.Context) (domain.SessionState, error) {
	for {
		o.mu.Lock()
		state, settled := o.state, o.settled
		o.mu.Unlock()
		if !state.IsLoading {
			return state, nil
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-settled:
		}
	}
}

// Subscribe calls fn on every state change until unsubscribe is called.
// fn must not block or call back into the SessionAccessor.
func (o *SessionObserver) Subscribe(fn func(domain.SessionState)) (unsubscribe func()) {
	o.mu.Lock()
	o.nextSub++
	id := o.nextSub
	o.subs[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

func (o *SessionObserver) publish(state domain.SessionState) {
	o.mu.Lock()
	wasLoading := o.state.IsLoading
	o.state = state
	switch {
	case wasLoading && !state.IsLoading:
		close(o.settled)
	case !wasLoading && state.IsLoading:
		o.settled = make(chan struct{})
	}
	subs := make([]func(domain.SessionState), 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	o.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

type watched struct {
	observer   *SessionObserver
	refs       int
	verifiedAt time.Time
	verifying  bool
}

// SessionAccessor resolves session tokens against the identity provider
// and shares the result between everyone watching the same token.
type SessionAccessor struct {
	provider domain.IdentityProvider
	cache    domain.SessionCache
	cacheTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	watched   map[string]*watched
	signedOut map[string]time.Time // kept while a check started earlier may still be in flight
}

func NewSessionAccessor(provider domain.IdentityProvider, cache domain.SessionCache, cacheTTL time.Duration, logger *slog.Logger) *SessionAccessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionAccessor{
		provider: provider,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger.With(slog.String("component", "session")),
		now:      time.Now,
		watched:  make(map[string]*watched),

		signedOut: make(map[string]time.Time),
	}
}

// Watch returns the observer of token and the function releasing it. The
// first watcher of a token, or a watcher arriving after the last check has
// expired, starts a verification; the observer reports IsLoading meanwhile.
func (uc *SessionAccessor) Watch(token string) (*SessionObserver, func()) {
	if token == "" {
		return newObserver(domain.SessionState{}), func() {}
	}

	uc.mu.Lock()
	w, ok := uc.watched[token]
	if !ok {
		w = &watched{observer: newObserver(domain.SessionState{IsLoading: true})}
		uc.watched[token] = w
	}
	w.refs++
	stale := !w.verifying && (w.verifiedAt.IsZero() || uc.now().Sub(w.verifiedAt) >= uc.cacheTTL)
	if stale {
		w.verifying = true
	}
	uc.mu.Unlock()

	if stale {
		if ok {
			prev := w.observer.Current()
			prev.IsLoading = true
			w.observer.publish(prev)
		}
		uc.resolve(token, w)
	}

	var once sync.Once
	return w.observer, func() { once.Do(func() { uc.release(token, w) }) }
}

// Current resolves token and returns its settled state.
func (uc *SessionAccessor) Current(ctx context.Context, token string) (domain.SessionState, error) {
	o, release := uc.Watch(token)
	defer release()
	return o.Wait(ctx)
}

func (uc *SessionAccessor) release(token string, w *watched) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	w.refs--
	if w.refs <= 0 && uc.watched[token] == w {
		delete(uc.watched, token)
	}
}

// resolve serves token from the cache when possible and verifies it with
// the provider in the background otherwise.
// A result is discarded when the token has been signed out.
func (uc *SessionAccessor) resolve(token string, w *watched) {
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	if user, ok := uc.cache.Get(ctx, token); ok {
		cancel()
		uc.settle(token, w, domain.AuthenticatedState(user))
		return
	}

	go func() {
		defer cancel()
		user, err := uc.provider.VerifySession(ctx, token)
		switch {
		case err == nil:
			if uc.isSignedOut(token) {
				uc.settle(token, w, domain.SessionState{})
				return
			}
			if err := uc.cache.Set(ctx, token, user, uc.cacheTTL); err != nil {
				uc.logger.Warn("session cache write failed", slog.Any("error", err))
			}
			// SignOut may have run between the check and the write.
			if uc.isSignedOut(token) {
				if err := uc.cache.Delete(ctx, token); err != nil {
					uc.logger.Warn("session cache delete failed", slog.Any("error", err))
				}
				uc.settle(token, w, domain.SessionState{})
				return
			}
			uc.settle(token, w, domain.AuthenticatedState(user))
		case errors.Is(err, domain.ErrSessionInvalid):
			uc.settle(token, w, domain.SessionState{})
		default:
			uc.logger.Error("session verification failed", slog.Any("error", err))
			uc.settle(token, w, domain.SessionState{Error: "Unable to verify session. Please try again."})
		}
	}()
}

func (uc *SessionAccessor) isSignedOut(token string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	_, ok := uc.signedOut[token]
	return ok
}

// settle publishes state under uc.mu so that a sign-out is never followed
// by an older authenticated state.
func (uc *SessionAccessor) settle(token string, w *watched, state domain.SessionState) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if _, out := uc.signedOut[token]; out && state.IsAuthenticated {
		state = domain.SessionState{}
	}
	w.verifying = false
	if state.Error == "" {
		w.verifiedAt = uc.now()
	}
	w.observer.publish(state)
}

// SignIn delegates to the identity provider and caches the new session.
func (uc *SessionAccessor) SignIn(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	if err := validateCredentials(creds, false); err != nil {
		return nil, err
	}
	s, err := uc.provider.SignIn(ctx, creds)
	if err != nil {
		return nil, err
	}
	uc.remember(ctx, s)
	return s, nil
}

// SignUp creates the account and signs it in.
func (uc *SessionAccessor) SignUp(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	if err := validateCredentials(creds, true); err != nil {
		return nil, err
	}
	s, err := uc.provider.SignUp(ctx, creds)
	if err != nil {
		return nil, err
	}
	uc.remember(ctx, s)
	return s, nil
}

// SignOut ends the session at the provider and tells every watcher.
func (uc *SessionAccessor) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	uc.mu.Lock()
	now := uc.now()
	for t, at := range uc.signedOut {
		if now.Sub(at) > verifyTimeout+uc.cacheTTL {
			delete(uc.signedOut, t)
		}
	}
	uc.signedOut[token] = now
	w := uc.watched[token]
	uc.mu.Unlock()

	if err := uc.cache.Delete(ctx, token); err != nil {
		uc.logger.Warn("session cache delete failed", slog.Any("error", err))
	}
	if w != nil {
		uc.settle(token, w, domain.SessionState{})
	}

	if err := uc.provider.SignOut(ctx, token); err != nil && !errors.Is(err, domain.ErrSessionInvalid) {
		return err
	}
	return nil
}

func (uc *SessionAccessor) remember(ctx context.Context, s *domain.Session) {
	uc.mu.Lock()
	delete(uc.signedOut, s.Token)
	uc.mu.Unlock()

	u := s.User
	if err := uc.cache.Set(ctx, s.Token, &u, uc.cacheTTL); err != nil {
		uc.logger.Warn("session cache write failed", slog.Any("error", err))
	}
}

func validateCredentials(c domain.Credentials, signUp bool) error {
	op := "sign in"
	if signUp {
		op = "sign up"
	}
	if !strings.Contains(c.Email, "@") {
		return &domain.AuthError{Op: op, Message: "A valid email address is required"}
	}
	if c.Password == "" {
		return &domain.AuthError{Op: op, Message: "Password is required"}
	}
	if signUp && len(c.Password) < minPasswordLength {
		return &domain.AuthError{Op: op, Message: fmt.Sprintf("Password must be at least %d characters", minPasswordLength)}
	}
	return nil
}
