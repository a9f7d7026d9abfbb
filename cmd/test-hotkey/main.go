// Command test-hotkey is a manual test for the pause/resume hotkey.
// Run it, then press Ctrl+Shift+L to see streaming flip.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-hotkey [--mode hold|toggle]
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/chaz8081/gostt-live/internal/hotkey"
)

// printPauser reports state changes instead of touching audio.
type printPauser struct{}

func (printPauser) SetPaused(paused bool) {
	if paused {
		fmt.Println("<<< PAUSE  (audio held back)")
	} else {
		fmt.Println(">>> RESUME (streaming)")
	}
}

func main() {
	mode := flag.String("mode", "toggle", "hotkey mode: hold or toggle")
	flag.Parse()

	keys := []string{"ctrl", "shift", "l"}
	fmt.Printf("Listening for Ctrl+Shift+L in %q mode...\n", *mode)
	fmt.Println("Press Ctrl+C to exit.")

	listener := hotkey.NewListener(keys, *mode)
	if listener.InitiallyPaused() {
		fmt.Println("Starting paused.")
	} else {
		fmt.Println("Starting live.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		listener.Stop()
	}()

	go func() {
		hotkey.Drive(ctx, listener.Events(), printPauser{})
		fmt.Println("Event loop finished.")
	}()

	// Blocks until stopped
	listener.Start()
	fmt.Println("Done.")
}
