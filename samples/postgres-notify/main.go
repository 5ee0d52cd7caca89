package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/backend/postgres"
	"github.com/cschleiden/go-wfnet/client"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/engine"
	"github.com/cschleiden/go-wfnet/registry"
	"github.com/cschleiden/go-wfnet/worker"
)

// This sample demonstrates the use of LISTEN/NOTIFY in the Postgres backend. Workers are notified as soon
// as pending work is committed instead of waiting for the next polling interval.

var Parent = definition.New("parent", "v1").
	Condition("start", "end").
	Task("child", definition.From("start"), definition.To("end"), definition.Composite("child", "")).
	MustBuild()

var Child = definition.New("child", "v1").
	Condition("start", "end").
	Task("noop", definition.From("start"), definition.To("end"), definition.Dummy()).
	MustBuild()

func main() {
	enableNotify := flag.Bool("notify", false, "enable LISTEN/NOTIFY for reactive polling")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *enableNotify {
		log.Println("LISTEN/NOTIFY enabled for reactive polling")
	} else {
		log.Println("Using polling only (use -notify to enable LISTEN/NOTIFY)")
	}

	b := postgres.NewPostgresBackend("localhost", 5432, "root", "root", "postgres",
		postgres.WithNotifications(*enableNotify))
	defer b.Close()

	runWorkflow(ctx, b, *enableNotify)
}

func runWorkflow(ctx context.Context, b backend.Backend, notifyEnabled bool) {
	innerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := registry.New()
	for _, v := range []*definition.WorkflowVersion{Parent, Child} {
		if err := r.Register(v); err != nil {
			log.Fatal("could not register workflow:", err)
		}
	}

	e := engine.New(b, r, engine.WithSynchronousCascade(false))

	// A long polling interval makes the difference visible
	w := worker.New(e, &worker.Options{
		Pollers:         1,
		PollingInterval: 5 * time.Second,
		TickTimeout:     worker.DefaultOptions.TickTimeout,
	})

	if err := w.Start(innerCtx); err != nil {
		log.Fatal("could not start worker:", err)
	}

	c := client.New(e)

	log.Println("Starting workflow...")
	start := time.Now()

	id, err := c.InitializeWorkflow(innerCtx, "parent", "")
	if err != nil {
		log.Fatal("could not start workflow:", err)
	}

	wf, err := c.WaitForWorkflow(innerCtx, id, time.Second*10)
	if err != nil {
		log.Fatal("workflow execution failed:", err)
	}

	log.Printf("Workflow %s in %v", wf.State, time.Since(start))

	if notifyEnabled {
		log.Println("With LISTEN/NOTIFY, the worker was notified immediately when pending work became available.")
	} else {
		log.Println("Without LISTEN/NOTIFY, the worker had to poll for pending work.")
	}

	cancel()
	if err := w.WaitForCompletion(); err != nil {
		log.Fatal("error stopping worker:", err)
	}
}
