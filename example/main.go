package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/flowfile"
	"github.com/meikuraledutech/flow/memstore"
	"github.com/meikuraledutech/flow/sqlite"
)

const onboarding = `
start: welcome
nodes:
  - id: welcome
    type: text
    content: {text: "Welcome to Acme support!"}
    next: policy
  - id: policy
    type: data_policy
    content: {text: "We store your email to reply to you."}
    policy: {accept: "I agree"}
    next: email
  - id: email
    type: email
    content: {text: "What is your email?"}
    variable_key: email
    next: topic
  - id: topic
    type: options
    content: {text: "What can we help with?"}
    variable_key: topic
    options:
      - {label: Billing, value: billing, next: bye}
      - {label: Other, value: other, next: bye}
  - id: bye
    type: text
    content: {text: "Thanks, we'll be in touch."}
    end: true
`

func main() {
	ctx := context.Background()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)

	store, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer store.Close()

	// 1. Create an empty flow for a chatbot
	f, err := store.CreateFlow(ctx, &flow.Flow{ChatbotID: "acme-bot"})
	if err != nil {
		log.Fatalf("create flow: %v", err)
	}
	fmt.Println("flow created:", f.ID)

	// ── Publish a graph authored with temporary ids ───────────────────
	doc, err := flowfile.Decode(strings.NewReader(onboarding))
	if err != nil {
		log.Fatalf("decode: %v", err)
	}
	lock := flow.NewEditLock(store)
	compiler := flow.NewCompiler(store, lock, logger)
	res, err := compiler.Save(ctx, flow.SaveRequest{
		FlowID:      f.ID,
		ChatbotID:   "acme-bot",
		User:        "editor-1",
		Nodes:       doc.Nodes,
		StartNodeID: doc.Start,
		Publish:     true,
	})
	if err != nil {
		log.Fatalf("publish: %v", err)
	}
	fmt.Printf("\npublished version %d, id map:\n", res.Flow.Version)
	printJSON(res.IDs)

	// ── Walk the conversation ─────────────────────────────────────────
	rt := flow.NewRuntime(store, memstore.New(100, time.Hour), memstore.New(100, time.Minute), logger)
	p, err := rt.Start(ctx, f.ID)
	if err != nil {
		log.Fatalf("start: %v", err)
	}
	printJSON(p)

	for _, input := range []any{nil, "yes", "jane@example.com", "billing", nil} {
		p, err = rt.Next(ctx, p.SessionID, input)
		if err != nil {
			log.Fatalf("next: %v", err)
		}
		printJSON(p)
		if p.Completed {
			break
		}
	}
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
