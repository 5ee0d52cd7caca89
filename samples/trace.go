package samples

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cschleiden/go-wfnet/engine"
)

// Trace logs a line prefixed with the workflow instance it refers to.
func Trace(instanceID string, v ...interface{}) {
	prefix := fmt.Sprintf("[%v][%v]", instanceID, time.Now().Format(time.StampMilli))
	args := make([]interface{}, len(v)+1)
	args[0] = prefix
	copy(args[1:], v)
	log.Println(args...)
}

// PrintTrace logs the span tree recorded for the workflow tree of the given instance.
func PrintTrace(ctx context.Context, e *engine.Engine, instanceID string) {
	wf, err := e.GetWorkflowInstance(ctx, instanceID)
	if err != nil {
		panic("could not get workflow instance: " + err.Error())
	}

	spans, err := e.GetSpans(ctx, wf.TraceID)
	if err != nil {
		panic("could not get spans: " + err.Error())
	}

	for _, s := range spans {
		log.Printf("%s%s %s %s", strings.Repeat("  ", s.Depth), s.Operation, s.ResourceName, s.State)
	}
}
