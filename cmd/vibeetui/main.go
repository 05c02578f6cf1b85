package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/vibee/vibee/internal/api"
	"github.com/vibee/vibee/internal/config"
	"github.com/vibee/vibee/internal/logging"
	"github.com/vibee/vibee/internal/profile"
	"github.com/vibee/vibee/internal/tui"
	"github.com/vibee/vibee/internal/tui/ui"
	"go.uber.org/zap"
)

const (
	startTimeout = 10 * time.Second
	pingTimeout  = 2 * time.Second
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	noStart := flag.Bool("no-start", false, "fail instead of starting vibeed when it is not running")
	flag.Parse()

	if err := run(*profileFlag, !*noStart); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(profileFlag string, autoStart bool) error {
	name, err := profile.Select(profileFlag)
	if err != nil {
		return err
	}
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		return err
	}
	cfg.ApplyEnv()

	socket := profile.SocketPath(name)
	if err := ensureDaemon(name, socket, autoStart); err != nil {
		return err
	}

	theme, err := ui.LoadTheme(profile.ThemePath())
	if err != nil {
		return err
	}

	logger, err := logging.FileOnly(filepath.Join(profile.LogDir(name), "tui.log"), "tui", cfg.LogLevel)
	if err != nil {
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()

	c, err := api.Dial(socket)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer func() { _ = c.Close() }()

	return tui.NewApp(c, name, theme, logger).Run()
}

// ensureDaemon checks the daemon's health service and, if allowed, starts
// vibeed and waits for it to report SERVING.
func ensureDaemon(name, socket string, autoStart bool) error {
	if ping(socket) == nil {
		return nil
	}
	if !autoStart {
		return fmt.Errorf("daemon not running for profile %q", name)
	}
	fmt.Fprintf(os.Stderr, "daemon not running for profile %q, starting...\n", name)
	if err := startDaemon(name); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return errors.New("daemon did not become ready")
		case <-tick.C:
			if ping(socket) == nil {
				return nil
			}
		}
	}
}

func ping(socket string) error {
	c, err := api.Dial(socket)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return c.Ping(ctx)
}

// startDaemon runs the vibeed next to this binary, falling back to PATH.
func startDaemon(name string) error {
	bin := "vibeed"
	if exe, err := os.Executable(); err == nil {
		if sibling := filepath.Join(filepath.Dir(exe), "vibeed"); fileExists(sibling) {
			bin = sibling
		}
	}
	cmd := exec.Command(bin, "--profile", name)
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
