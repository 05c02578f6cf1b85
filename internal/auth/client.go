package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	passwordvalidator "github.com/wagslane/go-password-validator"
)

// PasswordMinEntropyBits is the minimum strength accepted at registration.
const PasswordMinEntropyBits = 30

// ErrValidation wraps local registration checks that failed before any request.
var ErrValidation = errors.New("validation failed")

// APIError is a non-2xx response from the auth collaborator.
type APIError struct {
	Status int
	Msg    string
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("auth server: %s", http.StatusText(e.Status))
	}
	return fmt.Sprintf("auth server: %s (%d)", e.Msg, e.Status)
}

// Client talks to the auth collaborator over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL (e.g. http://localhost:5000/api).
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Login exchanges username and password for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.post(ctx, "/login", body, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("login: response carried no access_token")
	}
	return resp.AccessToken, nil
}

// Register creates an account. The server then mails an OTP to email.
func (c *Client) Register(ctx context.Context, username, email, password string) (string, error) {
	if err := ValidateRegistration(username, email, password); err != nil {
		return "", err
	}
	var resp message
	body := map[string]string{"username": username, "email": email, "password": password}
	if err := c.post(ctx, "/register", body, &resp); err != nil {
		return "", err
	}
	return resp.Msg, nil
}

// VerifyOTP activates the account registered under email.
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	otp = strings.TrimSpace(otp)
	if otp == "" {
		return "", fmt.Errorf("%w: otp is required", ErrValidation)
	}
	var resp message
	if err := c.post(ctx, "/verify-otp", map[string]string{"email": email, "otp": otp}, &resp); err != nil {
		return "", err
	}
	return resp.Msg, nil
}

// ResendOTP asks the server to mail a fresh OTP.
func (c *Client) ResendOTP(ctx context.Context, email string) (string, error) {
	var resp message
	if err := c.post(ctx, "/resend-otp", map[string]string{"email": email}, &resp); err != nil {
		return "", err
	}
	return resp.Msg, nil
}

// ValidateRegistration applies the server's schema locally: username of
// 3 to 30 characters, a parseable email and a password of at least 6
// characters with enough entropy.
func ValidateRegistration(username, email, password string) error {
	if n := utf8.RuneCountInString(username); n < 3 || n > 30 {
		return fmt.Errorf("%w: username must be 3 to 30 characters", ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: email: %v", ErrValidation, err)
	}
	if utf8.RuneCountInString(password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}
	if err := passwordvalidator.Validate(password, PasswordMinEntropyBits); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

type message struct {
	Msg string `json:"msg"`
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var m message
		if json.Unmarshal(data, &m) == nil {
			apiErr.Msg = m.Msg
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
