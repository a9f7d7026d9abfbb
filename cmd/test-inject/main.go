// Command test-inject is a manual test for transcript injection.
// It waits 3 seconds, then feeds a few completed segments through the
// injector the way a live session would.
// Focus a text editor before the countdown finishes.
//
// Usage:
//
//	go run ./cmd/test-inject [--method type|paste]
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/chaz8081/gostt-live/internal/inject"
	"github.com/chaz8081/gostt-live/internal/protocol"
	"github.com/chaz8081/gostt-live/internal/transcript"
)

func main() {
	method := flag.String("method", "type", "inject method: type or paste")
	flag.Parse()

	updates := [][]protocol.Segment{
		{{Start: 0, End: 1.2, Text: "Hello from gostt-live."}},
		{
			{Start: 0, End: 1.2, Text: "Hello from gostt-live."},
			{Start: 1.2, End: 2.5, Text: "This line arrives in pieces", Completed: false},
		},
		{
			{Start: 0, End: 1.2, Text: "Hello from gostt-live."},
			{Start: 1.2, End: 2.8, Text: "This line arrives in pieces.", Completed: true},
		},
	}

	fmt.Printf("Will inject %d server updates using %q method in 3 seconds...\n", len(updates), *method)
	fmt.Println("Focus a text editor now!")

	for i := 3; i > 0; i-- {
		fmt.Printf("%d...\n", i)
		time.Sleep(time.Second)
	}

	tr := transcript.New(inject.OnCompleted(inject.NewInjector(*method), nil))
	for _, u := range updates {
		if err := tr.Segments(u); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		time.Sleep(500 * time.Millisecond)
	}

	fmt.Printf("\nDone! %d segments injected.\n", len(tr.Completed()))
}
