package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vibee/vibee/internal/bus"
	"github.com/vibee/vibee/internal/metrics"
	"github.com/vibee/vibee/internal/store"
	"go.uber.org/zap"
)

// ErrExpired is the logout reason recorded when an expiry is observed.
var ErrExpired = errors.New("credential expired")

// CredentialStore is the durable storage the Guard persists to.
type CredentialStore interface {
	SaveCredential(c *store.Credential) error
	LoadCredential() (*store.Credential, error)
	DeleteCredential() error
}

// LoggedIn is the payload of session.logged_in.
type LoggedIn struct {
	Subject string
}

// LoggedOut is the payload of session.logged_out. Reason is empty for an
// explicit logout.
type LoggedOut struct {
	Subject string
	Reason  string
}

// Guard holds the current credential and gates the sync core on it.
type Guard struct {
	mu     sync.Mutex
	cred   *Credential
	reason error

	store  CredentialStore
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time
}

// NewGuard creates a Guard with no credential. Call Restore to load a persisted one.
func NewGuard(s CredentialStore, b *bus.Bus, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{store: s, bus: b, logger: logger, now: time.Now}
}

// Current returns the valid credential, or nil. Observing an expired
// credential logs the session out.
func (g *Guard) Current() *Credential {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cred == nil {
		return nil
	}
	if g.cred.Expired(g.now()) {
		g.logger.Info("credential expired", zap.String("subject", g.cred.Subject))
		g.clearLocked(ErrExpired)
		return nil
	}
	c := *g.cred
	return &c
}

// LastReason returns why the last session ended, or nil after an explicit
// logout or a successful login.
func (g *Guard) LastReason() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reason
}

// Login decodes and persists token. On failure the prior state is untouched.
func (g *Guard) Login(token string) (*Credential, error) {
	cred, err := Decode(token, g.now())
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.store.SaveCredential(toStored(cred)); err != nil {
		return nil, fmt.Errorf("persist credential: %w", err)
	}
	g.cred = cred
	g.reason = nil
	g.logger.Info("logged in", zap.String("subject", cred.Subject), zap.Time("expires_at", cred.ExpiresAt))
	g.bus.Emit(bus.KindLoggedIn, LoggedIn{Subject: cred.Subject})

	c := *cred
	return &c, nil
}

// Logout clears the credential from memory and storage and signals dependents.
func (g *Guard) Logout() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clearLocked(nil)
}

// Invalidate is Logout triggered by a collaborator rejecting the credential.
func (g *Guard) Invalidate(reason error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cred == nil {
		return
	}
	metrics.Inc(metrics.ForcedLogouts)
	g.logger.Warn("credential invalidated", zap.String("subject", g.cred.Subject), zap.Error(reason))
	g.clearLocked(reason)
}

func (g *Guard) clearLocked(reason error) {
	if err := g.store.DeleteCredential(); err != nil {
		g.logger.Error("delete stored credential", zap.Error(err))
	}
	g.reason = reason
	if g.cred == nil {
		return
	}
	out := LoggedOut{Subject: g.cred.Subject}
	if reason != nil {
		out.Reason = reason.Error()
	}
	g.cred = nil
	g.bus.Emit(bus.KindLoggedOut, out)
}

// Restore loads the persisted credential at startup. An undecodable or
// expired token is deleted and the Guard stays logged out.
func (g *Guard) Restore() (*Credential, error) {
	stored, err := g.store.LoadCredential()
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if stored == nil {
		return nil, nil
	}

	cred, err := Decode(stored.Token, g.now())
	if err != nil {
		g.logger.Warn("discarding stored credential", zap.Error(err))
		if delErr := g.store.DeleteCredential(); delErr != nil {
			return nil, fmt.Errorf("delete credential: %w", delErr)
		}
		return nil, nil
	}

	g.mu.Lock()
	g.cred = cred
	g.reason = nil
	g.mu.Unlock()
	g.logger.Info("credential restored", zap.String("subject", cred.Subject))

	c := *cred
	return &c, nil
}

func toStored(c *Credential) *store.Credential {
	s := &store.Credential{Token: c.Token, Subject: c.Subject}
	if !c.ExpiresAt.IsZero() {
		s.ExpiresAt = c.ExpiresAt.Unix()
	}
	return s
}
