package cli

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/logger"
)

func TestRunServerFailsWhenPortIsTaken(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

	done := make(chan error, 1)
	go func() {
		done <- runServer(context.Background(), config.Config{}, logger.Nop(), port)
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected listen error")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not give up on a taken port")
	}
}
