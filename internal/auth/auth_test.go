package auth

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/vibee/vibee/internal/bus"
	"github.com/vibee/vibee/internal/store"
)

func mintToken(t *testing.T, subject string, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: subject}
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// failingStore rejects writes so tests can check Login leaves state untouched.
type failingStore struct {
	*store.DB
}

func (failingStore) SaveCredential(*store.Credential) error { return errors.New("disk full") }

func TestDecode(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		token   string
		wantSub string
		wantErr bool
	}{
		{"valid with expiry", mintToken(t, "alice", now.Add(time.Hour)), "alice", false},
		{"valid without expiry", mintToken(t, "bob", time.Time{}), "bob", false},
		{"expired", mintToken(t, "carol", now.Add(-time.Minute)), "", true},
		{"missing subject", mintToken(t, "", now.Add(time.Hour)), "", true},
		{"garbage", "garbage-token", "", true},
		{"empty", "   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Decode(tt.token, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCredential) {
					t.Errorf("error %v is not ErrInvalidCredential", err)
				}
				return
			}
			if c.Subject != tt.wantSub {
				t.Errorf("Subject = %q, want %q", c.Subject, tt.wantSub)
			}
		})
	}
}

func TestLoginGarbageLeavesStoreUnset(t *testing.T) {
	db := testDB(t)
	g := NewGuard(db, nil, nil)

	_, err := g.Login("garbage-token")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("Login(garbage) error = %v, want ErrInvalidCredential", err)
	}
	if g.Current() != nil {
		t.Error("Current() should be nil after failed login")
	}
	stored, err := db.LoadCredential()
	if err != nil {
		t.Fatal(err)
	}
	if stored != nil {
		t.Errorf("stored credential = %+v, want none", stored)
	}
}

func TestLoginFailureKeepsPriorCredential(t *testing.T) {
	db := testDB(t)
	g := NewGuard(db, nil, nil)

	if _, err := g.Login(mintToken(t, "alice", time.Now().Add(time.Hour))); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Login("garbage-token"); err == nil {
		t.Fatal("expected error")
	}
	if c := g.Current(); c == nil || c.Subject != "alice" {
		t.Errorf("Current() = %+v, want alice", c)
	}

	g.store = failingStore{db}
	if _, err := g.Login(mintToken(t, "bob", time.Now().Add(time.Hour))); err == nil {
		t.Fatal("expected persist error")
	}
	if c := g.Current(); c == nil || c.Subject != "alice" {
		t.Errorf("Current() after persist failure = %+v, want alice", c)
	}
}

func TestLoginPersistsAndPublishes(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	g := NewGuard(db, b, nil)
	token := mintToken(t, "alice", time.Now().Add(time.Hour))
	c, err := g.Login(token)
	if err != nil {
		t.Fatal(err)
	}
	if c.Subject != "alice" {
		t.Errorf("Subject = %q", c.Subject)
	}

	stored, _ := db.LoadCredential()
	if stored == nil || stored.Token != token {
		t.Errorf("stored = %+v, want token persisted", stored)
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindLoggedIn {
			t.Errorf("event = %s, want %s", evt.Kind, bus.KindLoggedIn)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for logged_in")
	}
}

func TestLogoutClearsAndSignals(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	g := NewGuard(db, b, nil)
	if _, err := g.Login(mintToken(t, "alice", time.Time{})); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe(bus.KindLoggedOut, 10)
	defer unsub()
	g.Logout()

	if g.Current() != nil {
		t.Error("Current() should be nil after logout")
	}
	if stored, _ := db.LoadCredential(); stored != nil {
		t.Errorf("stored = %+v, want cleared", stored)
	}
	select {
	case evt := <-ch:
		out := evt.Payload.(LoggedOut)
		if out.Subject != "alice" || out.Reason != "" {
			t.Errorf("payload = %+v", out)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for logged_out")
	}

	// A second logout is a no-op and does not signal again.
	g.Logout()
	select {
	case evt := <-ch:
		t.Errorf("unexpected second event %+v", evt)
	default:
	}
}

func TestInvalidateRecordsReason(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	g := NewGuard(db, b, nil)
	if _, err := g.Login(mintToken(t, "alice", time.Time{})); err != nil {
		t.Fatal(err)
	}
	ch, unsub := b.Subscribe(bus.KindLoggedOut, 10)
	defer unsub()

	reason := errors.New("history: unauthorized")
	g.Invalidate(reason)

	if g.Current() != nil {
		t.Error("Current() should be nil after Invalidate")
	}
	if !errors.Is(g.LastReason(), reason) {
		t.Errorf("LastReason() = %v, want %v", g.LastReason(), reason)
	}
	evt := <-ch
	if got := evt.Payload.(LoggedOut).Reason; got != reason.Error() {
		t.Errorf("reason = %q", got)
	}
}

func TestCurrentObservesExpiry(t *testing.T) {
	db := testDB(t)
	g := NewGuard(db, nil, nil)
	now := time.Now()
	g.now = func() time.Time { return now }

	if _, err := g.Login(mintToken(t, "alice", now.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}
	if g.Current() == nil {
		t.Fatal("credential should be valid before expiry")
	}

	now = now.Add(2 * time.Minute)
	if g.Current() != nil {
		t.Error("Current() should be nil once expired")
	}
	if !errors.Is(g.LastReason(), ErrExpired) {
		t.Errorf("LastReason() = %v, want ErrExpired", g.LastReason())
	}
	if stored, _ := db.LoadCredential(); stored != nil {
		t.Error("expired credential should be removed from the store")
	}
}

func TestRestore(t *testing.T) {
	db := testDB(t)
	token := mintToken(t, "alice", time.Now().Add(time.Hour))
	if err := db.SaveCredential(&store.Credential{Token: token, Subject: "alice"}); err != nil {
		t.Fatal(err)
	}

	g := NewGuard(db, nil, nil)
	c, err := g.Restore()
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Subject != "alice" {
		t.Fatalf("Restore() = %+v, want alice", c)
	}
	if g.Current() == nil {
		t.Error("Current() should be set after Restore")
	}
}

func TestRestoreDeletesUndecodable(t *testing.T) {
	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"garbage", func(*testing.T) string { return "garbage-token" }},
		{"expired", func(t *testing.T) string { return mintToken(t, "alice", time.Now().Add(-time.Hour)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testDB(t)
			if err := db.SaveCredential(&store.Credential{Token: tt.token(t), Subject: "x"}); err != nil {
				t.Fatal(err)
			}
			g := NewGuard(db, nil, nil)
			c, err := g.Restore()
			if err != nil {
				t.Fatal(err)
			}
			if c != nil {
				t.Errorf("Restore() = %+v, want nil", c)
			}
			if stored, _ := db.LoadCredential(); stored != nil {
				t.Error("undecodable credential should be deleted")
			}
		})
	}
}

func TestRestoreEmpty(t *testing.T) {
	g := NewGuard(testDB(t), nil, nil)
	c, err := g.Restore()
	if err != nil || c != nil {
		t.Errorf("Restore() on empty store = %+v, %v", c, err)
	}
}
