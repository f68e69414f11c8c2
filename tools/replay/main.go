// replay verifies workflow determinism against a recorded history.
//
// Export a history with `temporal workflow show --output json` and run:
//
//	replay -history /path/to/history.json
//
// Any divergence between the recorded events and the current workflow code
// fails the replay, which is how itinerary workflow changes are checked
// before deploying over in-flight runs.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.temporal.io/sdk/worker"

	"github.com/storyland-ai/storyland/internal/workflows"
)

func main() {
	historyPath := flag.String("history", "", "path to Temporal workflow history JSON")
	flag.Parse()

	if *historyPath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -history /path/to/history.json")
		os.Exit(2)
	}

	replayer := worker.NewWorkflowReplayer()
	replayer.RegisterWorkflow(workflows.ItineraryWorkflow)

	if err := replayer.ReplayWorkflowHistoryFromJSONFile(nil, *historyPath); err != nil {
		log.Fatalf("replay failed: %v", err)
	}
	fmt.Println("replay OK")
}
