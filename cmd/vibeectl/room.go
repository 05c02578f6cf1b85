package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vibee/vibee/internal/api"
	"github.com/vibee/vibee/internal/profile"
	"github.com/vibee/vibee/internal/protocol"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func roomsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List recent rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *api.Client) error {
				resp, err := c.Room.RecentRooms(ctx, &api.RecentRoomsRequest{})
				if err != nil {
					return err
				}
				if flagJSON {
					outputJSON(resp)
					return nil
				}
				if len(resp.Rooms) == 0 {
					fmt.Println("No recent rooms.")
					return nil
				}
				for _, r := range resp.Rooms {
					marker := " "
					if r == resp.LastRoom {
						marker = "*"
					}
					fmt.Printf("%s %s\n", marker, r)
				}
				return nil
			})
		},
	}
}

func joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <room>",
		Short: "Join a room, leaving the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *api.Client) error {
				resp, err := c.Room.Join(ctx, &api.JoinRequest{Room: args[0]})
				if err != nil {
					return err
				}
				if flagJSON {
					outputJSON(resp)
					return nil
				}
				fmt.Printf("Joined %s (%d messages)\n", resp.Room, len(resp.Messages))
				printMessages(resp.Messages)
				return nil
			})
		},
	}
}

func leaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Leave the current room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *api.Client) error {
				resp, err := c.Room.Leave(ctx, &api.LeaveRequest{})
				if err != nil {
					return err
				}
				if flagJSON {
					outputJSON(resp)
					return nil
				}
				if resp.Left {
					fmt.Println("Left the room.")
				} else {
					fmt.Println("No room joined.")
				}
				return nil
			})
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <message...>",
		Short: "Send a message to the current room",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *api.Client) error {
				_, err := c.Room.Send(ctx, &api.SendRequest{Body: strings.Join(args, " ")})
				return err
			})
		},
	}
}

func olderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "older",
		Short: "Load one page of older history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *api.Client) error {
				resp, err := c.Room.LoadOlder(ctx, &api.LoadOlderRequest{})
				if grpcstatus.Code(err) == codes.Aborted {
					fmt.Fprintln(os.Stderr, "a history fetch is already in flight")
					return nil
				}
				if err != nil {
					return err
				}
				if flagJSON {
					outputJSON(resp)
					return nil
				}
				fmt.Printf("Loaded %d older messages", resp.Prepended+resp.Inserted)
				if resp.Exhausted {
					fmt.Print("; reached the start of the room")
				}
				fmt.Println()
				return nil
			})
		},
	}
}

func timelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeline",
		Short: "Print the current room's timeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *api.Client) error {
				resp, err := c.Room.Timeline(ctx, &api.TimelineRequest{})
				if err != nil {
					return err
				}
				if flagJSON {
					outputJSON(resp)
					return nil
				}
				printMessages(resp.Messages)
				return nil
			})
		},
	}
}

func watchCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream daemon events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, err := resolveProfile()
			if err != nil {
				return err
			}
			c, err := api.Dial(profile.SocketPath(name))
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := c.Room.WatchEvents(ctx, &api.WatchRequest{Prefix: prefix})
			if err != nil {
				return err
			}
			for {
				evt, err := w.Recv()
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return nil
				}
				if err != nil {
					return err
				}
				if evt.Kind == api.KindWatchReady {
					continue
				}
				if flagJSON {
					outputJSON(evt)
					continue
				}
				at := time.UnixMilli(evt.OccurredAtUnixMs).Format("15:04:05.000")
				fmt.Printf("%s %-24s %s\n", at, evt.Kind, string(evt.Payload))
			}
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only events whose kind starts with prefix (e.g. room.)")
	return cmd
}

func printMessages(msgs []protocol.Message) {
	for _, m := range msgs {
		fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format("2006-01-02 15:04:05"), m.Username, m.Body)
	}
}
