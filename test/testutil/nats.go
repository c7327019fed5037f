// Package testutil starts throwaway infrastructure for integration tests.
package testutil

import (
	"net"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// EnvNATSServerBin overrides the nats-server binary used by integration tests.
const EnvNATSServerBin = "ALERTDESK_NATS_SERVER"

const (
	natsReadyTimeout = 8 * time.Second
	natsStopTimeout  = 5 * time.Second
)

// FreePort asks the kernel for an unused loopback TCP port.
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// StartLocalNATSServer runs a JetStream-enabled nats-server backed by a temp dir.
// Skips the test when the binary is unavailable; the server is also stopped on test cleanup.
// Params: test handle.
// Returns: client URL and idempotent stop callback.
func StartLocalNATSServer(tb testing.TB) (string, func()) {
	tb.Helper()

	port, err := FreePort()
	if err != nil {
		tb.Fatalf("free port: %v", err)
	}
	bin := os.Getenv(EnvNATSServerBin)
	if bin == "" {
		bin = "nats-server"
	}

	cmd := exec.Command(bin, "-js", "-a", "127.0.0.1", "-p", strconv.Itoa(port), "-sd", tb.TempDir())
	if err := cmd.Start(); err != nil {
		tb.Skipf("%s is required for this integration test: %v", bin, err)
	}
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-exited:
		case <-time.After(natsStopTimeout):
			_ = cmd.Process.Kill()
			<-exited
		}
	}
	tb.Cleanup(stop)

	url := "nats://127.0.0.1:" + strconv.Itoa(port)
	WaitForNATSReady(tb, url, natsReadyTimeout)
	return url, stop
}

// WaitForNATSReady polls until the server accepts connections and JetStream answers.
// Params: test handle, server URL, and overall timeout.
// Returns: none; fails the test on timeout.
func WaitForNATSReady(tb testing.TB, url string, timeout time.Duration) {
	tb.Helper()

	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if lastErr = jetStreamReady(url); lastErr == nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	tb.Fatalf("jetstream not ready at %s: %v", url, lastErr)
}

func jetStreamReady(url string) error {
	nc, err := nats.Connect(url, nats.Timeout(time.Second))
	if err != nil {
		return err
	}
	defer nc.Close()
	js, err := nc.JetStream()
	if err != nil {
		return err
	}
	_, err = js.AccountInfo()
	return err
}

// PublishDetections publishes raw detection bodies to a JetStream subject and waits for acks.
// Params: test handle, server URL, subject, and message bodies.
// Returns: none; fails the test on any publish error.
func PublishDetections(tb testing.TB, url, subject string, bodies ...string) {
	tb.Helper()

	nc, err := nats.Connect(url)
	if err != nil {
		tb.Fatalf("connect %s: %v", url, err)
	}
	defer nc.Close()
	js, err := nc.JetStream()
	if err != nil {
		tb.Fatalf("jetstream: %v", err)
	}
	for _, body := range bodies {
		if _, err := js.Publish(subject, []byte(body)); err != nil {
			tb.Fatalf("publish to %s: %v", subject, err)
		}
	}
}
