//go:build integration

package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// buildBinary compiles spotlog into the test's temp dir
func buildBinary(t testing.TB) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "spotlog_test")
	buildCmd := exec.Command("go", "build", "-o", bin, ".")
	if out, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, out)
	}
	return bin
}

// freeAddr returns a loopback address nothing is listening on
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

// daemonEnv points the daemon at a sqlite table under a private HOME
func daemonEnv(home, addr string) []string {
	return append(os.Environ(),
		"HOME="+home,
		"SPOTLOG_SPOTIFY_CLIENT_ID=integration-client",
		"SPOTLOG_SPOTIFY_CLIENT_SECRET=integration-secret",
		"SPOTLOG_TABLE_DRIVER=sqlite",
		"SPOTLOG_SERVER_ADDR="+addr,
	)
}

// TestDaemonLifecycle starts the daemon, talks to its control surface and
// stops it with SIGINT
func TestDaemonLifecycle(t *testing.T) {
	bin := buildBinary(t)
	home := t.TempDir()
	addr := freeAddr(t)
	env := daemonEnv(home, addr)

	cmd := exec.Command(bin, "daemon", "--log-level", "debug")
	cmd.Env = env
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}
	defer func() { _ = cmd.Process.Kill() }()

	// Wait for the control surface
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Daemon did not come up: %v", err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	dbPath := filepath.Join(home, ".local", "share", "spotlog", "plays.db")
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("SQLite table not created: %v", err)
	}

	status := exec.Command(bin, "status")
	status.Env = env
	out, err := status.CombinedOutput()
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "Authorized: no") {
		t.Errorf("unexpected status output:\n%s", out)
	}

	// Starting without a Spotify session must be refused
	start := exec.Command(bin, "start")
	start.Env = env
	if out, err := start.CombinedOutput(); err == nil {
		t.Errorf("start succeeded without authorization:\n%s", out)
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		t.Fatalf("Failed to signal daemon: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Daemon exited with error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Daemon did not stop within 5 seconds")
	}
}

// TestDaemonRefusesWithoutCredentials checks that missing credentials are fatal
func TestDaemonRefusesWithoutCredentials(t *testing.T) {
	bin := buildBinary(t)
	home := t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, "daemon")
	cmd.Dir = home
	cmd.Env = append(os.Environ(),
		"HOME="+home,
		"SPOTLOG_TABLE_DRIVER=sqlite",
		"SPOTIFY_CREDENTIALS_JSON=",
	)
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("daemon started without credentials:\n%s", out)
	}
	if !strings.Contains(string(out), "credentials") {
		t.Errorf("error does not mention credentials:\n%s", out)
	}
}

// TestNowCommand tests the "now" command with no daemon and no history
func TestNowCommand(t *testing.T) {
	bin := buildBinary(t)
	home := t.TempDir()

	cmd := exec.Command(bin, "now")
	cmd.Env = daemonEnv(home, freeAddr(t))
	output, err := cmd.CombinedOutput()

	// Nothing has been logged, so "now" exits 1 quietly
	if err == nil {
		t.Errorf("expected exit code 1, got output %q", output)
	}
}

// TestLaunchdInstallation tests installing and uninstalling the daemon
func TestLaunchdInstallation(t *testing.T) {
	t.Skip("Modifies the user's launchd agents - run manually")

	// Manual test steps:
	// 1. Build the binary: go build -o spotlog .
	// 2. Run: ./spotlog install
	// 3. Verify plist exists: ls ~/Library/LaunchAgents/com.spotlog.daemon.plist
	// 4. Verify daemon is running: launchctl list | grep spotlog
	// 5. Run: ./spotlog uninstall
	// 6. Verify plist removed: ls ~/Library/LaunchAgents/com.spotlog.daemon.plist
}
