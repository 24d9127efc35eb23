// handlers.go: bytehotctl command handler implementations.
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/orpheus/pkg/orpheus"
	"github.com/bytehot/bytehot"
	"github.com/bytehot/bytehot/providers/inprocess"
)

// handleWatch starts a Pipeline against the configured watch root and
// blocks until interrupted. It prints one line describing the watch
// configuration on start; persisted events are not printed.
func (m *Manager) handleWatch(ctx *orpheus.Context) error {
	config := bytehot.Config{
		WatchRoots: []bytehot.WatchRoot{
			{Path: ctx.GetFlagString("watch-root"), Recursive: ctx.GetFlagBool("recursive")},
		},
		EventStoreRoot:             ctx.GetFlagString("event-store-root"),
		MaxConcurrentRedefinitions: ctx.GetFlagInt("max-concurrent-redefinitions"),
	}

	registry := inprocess.NewClassRegistry(nil)
	pipeline, err := bytehot.NewPipeline(config, registry, registry)
	if err != nil {
		return errors.Wrap(err, bytehot.ErrCodeInvalidConfig, "failed to construct pipeline")
	}

	if err := pipeline.Start(); err != nil {
		return errors.Wrap(err, bytehot.ErrCodeWatcherBusy, "failed to start watcher")
	}
	fmt.Printf("watching %s (recursive=%v), events under %s\n", config.WatchRoots[0].Path, config.WatchRoots[0].Recursive, config.EventStoreRoot)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	fmt.Println("stopping...")
	return pipeline.Stop()
}

// handleStatus reports event store health and the bugs aggregate's size.
func (m *Manager) handleStatus(ctx *orpheus.Context) error {
	store, err := bytehot.NewEventStore(ctx.GetFlagString("event-store-root"), "")
	if err != nil {
		return errors.Wrap(err, bytehot.ErrCodeStoreUnhealthy, "failed to open event store")
	}
	defer store.Close()

	fmt.Printf("healthy: %v\n", store.Health())

	bugs, err := store.LoadByType(bytehot.KindBugSnapshotRecorded)
	if err != nil {
		return errors.Wrap(err, bytehot.ErrCodeStoreUnhealthy, "failed to query bug snapshots")
	}
	fmt.Printf("bug snapshots recorded: %d\n", len(bugs))
	return nil
}

// handleReplay prints the causal event history for one aggregate.
func (m *Manager) handleReplay(ctx *orpheus.Context) error {
	aggregateType := ctx.GetArg(0)
	aggregateID := ctx.GetArg(1)
	if aggregateType == "" || aggregateID == "" {
		return errors.New(bytehot.ErrCodeInvalidConfig, "replay requires <aggregate-type> <aggregate-id>")
	}

	store, err := bytehot.NewEventStore(ctx.GetFlagString("event-store-root"), "")
	if err != nil {
		return errors.Wrap(err, bytehot.ErrCodeStoreUnhealthy, "failed to open event store")
	}
	defer store.Close()

	events, err := store.LoadAggregate(aggregateType, aggregateID)
	if err != nil {
		return errors.Wrap(err, bytehot.ErrCodeStoreUnhealthy, "failed to load aggregate")
	}

	for _, event := range events {
		fmt.Printf("v%d %s %s %s\n", event.AggregateVersion, event.Timestamp.Format(time.RFC3339), event.Kind, event.EventID)
	}
	return nil
}

// handleBugsTail prints the most recent bug snapshots.
func (m *Manager) handleBugsTail(ctx *orpheus.Context) error {
	store, err := bytehot.NewEventStore(ctx.GetFlagString("event-store-root"), "")
	if err != nil {
		return errors.Wrap(err, bytehot.ErrCodeStoreUnhealthy, "failed to open event store")
	}
	defer store.Close()

	events, err := store.LoadByType(bytehot.KindBugSnapshotRecorded)
	if err != nil {
		return errors.Wrap(err, bytehot.ErrCodeStoreUnhealthy, "failed to load bug snapshots")
	}

	limit := ctx.GetFlagInt("limit")
	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}

	for _, event := range events[start:] {
		var payload bytehot.BugSnapshotPayload
		if err := decodePayload(event.Payload, &payload); err != nil {
			fmt.Printf("%s %s (unparsed payload)\n", event.Timestamp.Format(time.RFC3339), event.EventID)
			continue
		}
		fmt.Printf("%s aggregate=%s/%s diagnostic=%q\n", event.Timestamp.Format(time.RFC3339), payload.AggregateType, payload.AggregateID, payload.Diagnostic)
	}
	return nil
}

// decodePayload re-decodes a VersionedEvent's Payload field (a
// map[string]interface{} once round-tripped through JSON off disk) into
// a concrete payload type, since Payload's static type is any.
func decodePayload(payload any, target any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
