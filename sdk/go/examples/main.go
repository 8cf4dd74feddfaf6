package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"time"

	"BrowserUse-Gateway/internal/api"
	"BrowserUse-Gateway/internal/automation"
	"BrowserUse-Gateway/internal/job"
	"BrowserUse-Gateway/sdk/go/browseruse"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := job.NewMemoryStore()
	queue := job.NewMemoryQueue()
	engine := automation.EngineFunc(func(_ context.Context, objective string, _ automation.Config) (automation.Result, error) {
		time.Sleep(300 * time.Millisecond)
		return json.Marshal(map[string]any{"visited": "https://example.com", "objective": objective})
	})
	go func() { _ = job.NewProcessor(engine, store, queue).Start(ctx) }()

	srv := httptest.NewServer(api.NewServer("", job.NewService(store, queue)).Router())
	defer srv.Close()

	client, err := browseruse.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	out := client.Run(ctx, "open example.com and read the heading", browseruse.PollOptions{
		Interval: 100 * time.Millisecond,
		Timeout:  5 * time.Second,
	})
	fmt.Printf("task %s finished as %s after %d polls: %s\n", out.TaskID, out.State, out.Polls, out.Message)
	if out.Status != nil {
		fmt.Printf("results: %s\n", out.Status.Results)
	}
}
