package runner

import (
	"os"
	"os/signal"
	"syscall"
)

// WaitForShutdownSignal blocks until SIGINT or SIGTERM is received.
func WaitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
