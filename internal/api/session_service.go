package api

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vibee/vibee/internal/auth"
	"github.com/vibee/vibee/internal/room"
	"github.com/vibee/vibee/internal/status"
)

// Authenticator is the auth collaborator. *auth.Client implements it.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, username, email, password string) (string, error)
	VerifyOTP(ctx context.Context, email, otp string) (string, error)
	ResendOTP(ctx context.Context, email string) (string, error)
}

// SessionService implements vibee.v1.SessionService.
type SessionService struct {
	profile   string
	startedAt time.Time
	guard     *auth.Guard
	authn     Authenticator
	rooms     *room.Manager
}

// NewSessionService creates the session service for profile.
func NewSessionService(profile string, guard *auth.Guard, authn Authenticator, rooms *room.Manager) *SessionService {
	return &SessionService{
		profile:   profile,
		startedAt: time.Now(),
		guard:     guard,
		authn:     authn,
		rooms:     rooms,
	}
}

func (s *SessionService) Status(_ context.Context, _ *StatusRequest) (*StatusResponse, error) {
	resp := &StatusResponse{
		Profile:  s.profile,
		PID:      os.Getpid(),
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
		Phase:    string(status.Disconnected),
		LastRoom: s.rooms.LastRoom(),
	}

	if cred := s.guard.Current(); cred != nil {
		resp.LoggedIn = true
		resp.Subject = cred.Subject
		if !cred.ExpiresAt.IsZero() {
			resp.ExpiresAtUnixMs = cred.ExpiresAt.UnixMilli()
		}
	} else if reason := s.guard.LastReason(); reason != nil {
		resp.LastLogoutReason = reason.Error()
	}

	sess, err := s.rooms.Active()
	if err != nil {
		return resp, nil
	}
	st, err := sess.State()
	if err != nil {
		// Left between the two calls.
		return resp, nil
	}
	resp.Room = st.Room
	resp.Epoch = st.Epoch
	resp.Phase = string(st.Phase)
	resp.Messages = st.Messages
	resp.Offset = st.Cursor.Offset
	resp.PageSize = st.Cursor.PageSize
	resp.Exhausted = st.Cursor.Exhausted
	resp.LastError = st.LastError
	for _, n := range st.Notices {
		resp.Notices = append(resp.Notices, Notice{Text: n.Text, Joiner: n.Joiner, AtUnixMs: n.At.UnixMilli()})
	}
	return resp, nil
}

func (s *SessionService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		if strings.TrimSpace(req.Username) == "" || req.Password == "" {
			return nil, toStatus("login", fmt.Errorf("%w: username and password are required", auth.ErrValidation))
		}
		t, err := s.authn.Login(ctx, strings.TrimSpace(req.Username), req.Password)
		if err != nil {
			return nil, toStatus("login", err)
		}
		token = t
	}

	cred, err := s.guard.Login(token)
	if err != nil {
		return nil, toStatus("login", err)
	}
	resp := &LoginResponse{Subject: cred.Subject}
	if !cred.ExpiresAt.IsZero() {
		resp.ExpiresAtUnixMs = cred.ExpiresAt.UnixMilli()
	}
	return resp, nil
}

func (s *SessionService) Register(ctx context.Context, req *RegisterRequest) (*MessageResponse, error) {
	msg, err := s.authn.Register(ctx, strings.TrimSpace(req.Username), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return nil, toStatus("register", err)
	}
	return &MessageResponse{Message: msg}, nil
}

func (s *SessionService) VerifyOTP(ctx context.Context, req *VerifyOTPRequest) (*MessageResponse, error) {
	msg, err := s.authn.VerifyOTP(ctx, strings.TrimSpace(req.Email), strings.TrimSpace(req.OTP))
	if err != nil {
		return nil, toStatus("verify otp", err)
	}
	return &MessageResponse{Message: msg}, nil
}

func (s *SessionService) ResendOTP(ctx context.Context, req *ResendOTPRequest) (*MessageResponse, error) {
	msg, err := s.authn.ResendOTP(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		return nil, toStatus("resend otp", err)
	}
	return &MessageResponse{Message: msg}, nil
}

func (s *SessionService) Logout(_ context.Context, _ *LogoutRequest) (*LogoutResponse, error) {
	was := s.guard.Current() != nil
	s.guard.Logout()
	// The manager also reacts to session.logged_out; leaving here makes the
	// reply observe the room as closed.
	s.rooms.Leave()
	return &LogoutResponse{WasLoggedIn: was}, nil
}
