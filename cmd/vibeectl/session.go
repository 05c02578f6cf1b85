package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vibee/vibee/internal/api"
	"github.com/vibee/vibee/internal/lock"
	"github.com/vibee/vibee/internal/profile"
	"golang.org/x/term"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, login and room status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *api.Client) error {
				resp, err := c.Session.Status(ctx, &api.StatusRequest{})
				if err != nil {
					return err
				}
				if flagJSON {
					outputJSON(resp)
					return nil
				}
				fmt.Printf("Profile: %s (pid %d, up %s)\n", resp.Profile, resp.PID, time.Duration(resp.UptimeMs)*time.Millisecond)
				switch {
				case resp.LoggedIn:
					fmt.Printf("User:    %s\n", resp.Subject)
				case resp.LastLogoutReason != "":
					fmt.Printf("User:    logged out (%s)\n", resp.LastLogoutReason)
				default:
					fmt.Println("User:    logged out")
				}
				if resp.Room == "" {
					fmt.Printf("Room:    none")
					if resp.LastRoom != "" {
						fmt.Printf(" (last: %s)", resp.LastRoom)
					}
					fmt.Println()
					return nil
				}
				fmt.Printf("Room:    %s [%s]\n", resp.Room, resp.Phase)
				history := "more available"
				if resp.Exhausted {
					history = "complete"
				}
				fmt.Printf("Timeline: %d messages, offset %d, history %s\n", resp.Messages, resp.Offset, history)
				if resp.LastError != "" {
					fmt.Printf("Error:   %s\n", resp.LastError)
				}
				return nil
			})
		},
	}
}

func loginCmd() *cobra.Command {
	var password, token string
	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Log in with a username and password, or adopt a token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &api.LoginRequest{Token: token}
			if token == "" {
				if len(args) == 0 {
					return errors.New("username required unless --token is given")
				}
				req.Username = args[0]
				req.Password = password
				if req.Password == "" {
					p, err := readSecret("Password: ")
					if err != nil {
						return err
					}
					req.Password = p
				}
			}
			return withClient(cmd, func(ctx context.Context, c *api.Client) error {
				resp, err := c.Session.Login(ctx, req)
				if err != nil {
					return err
				}
				if flagJSON {
					outputJSON(resp)
					return nil
				}
				fmt.Printf("Logged in as %s\n", resp.Subject)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	cmd.Flags().StringVar(&token, "token", "", "use an existing bearer token")
	return cmd
}

func registerCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "register <username> <email>",
		Short: "Create an account; a verification code is emailed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readSecret("Password: ")
				if err != nil {
					return err
				}
				password = p
			}
			return withClient(cmd, func(ctx context.Context, c *api.Client) error {
				resp, err := c.Session.Register(ctx, &api.RegisterRequest{Username: args[0], Email: args[1], Password: password})
				return printMessage(resp, err)
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <email> <code>",
		Short: "Verify a registration with the emailed code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *api.Client) error {
				resp, err := c.Session.VerifyOTP(ctx, &api.VerifyOTPRequest{Email: args[0], OTP: args[1]})
				return printMessage(resp, err)
			})
		},
	}
}

func resendOTPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend-otp <email>",
		Short: "Email a new verification code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *api.Client) error {
				resp, err := c.Session.ResendOTP(ctx, &api.ResendOTPRequest{Email: args[0]})
				return printMessage(resp, err)
			})
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and leave the current room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *api.Client) error {
				resp, err := c.Session.Logout(ctx, &api.LogoutRequest{})
				if err != nil {
					return err
				}
				if flagJSON {
					outputJSON(resp)
					return nil
				}
				if resp.WasLoggedIn {
					fmt.Println("Logged out.")
				} else {
					fmt.Println("Not logged in.")
				}
				return nil
			})
		},
	}
}

type profileInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Server  string `json:"server,omitempty"`
}

func profilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List known profiles",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			names, err := profile.List()
			if err != nil {
				return err
			}
			var out []profileInfo
			for _, n := range names {
				owner, held := lock.Probe(profile.Dir(n))
				out = append(out, profileInfo{Name: n, Path: profile.Dir(n), Running: held, PID: owner.PID, Server: owner.Server})
			}
			if flagJSON {
				outputJSON(out)
				return nil
			}
			if len(out) == 0 {
				fmt.Println("No profiles found.")
				return nil
			}
			for _, p := range out {
				running := "stopped"
				if p.Running {
					running = fmt.Sprintf("running, pid %d", p.PID)
					if p.Server != "" {
						running += ", " + p.Server
					}
				}
				fmt.Printf("%-20s %s (%s)\n", p.Name, p.Path, running)
			}
			return nil
		},
	}
}

func printMessage(resp *api.MessageResponse, err error) error {
	if err != nil {
		return err
	}
	if flagJSON {
		outputJSON(resp)
		return nil
	}
	fmt.Println(resp.Message)
	return nil
}

// readSecret prompts without echo on a terminal and reads a line otherwise.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
