// pipeline.go: top-level orchestrator wiring C1-C6 into the hot-swap
// pipeline described end-to-end in spec §1/§2.
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0

package bytehot

import (
	"os"
	"sync"

	"github.com/google/uuid"
)

// Pipeline wires the Class-File Watcher (C1) through the Bytecode
// Analyzer (C2), Compatibility Validator (C3), Redefinition Coordinator
// (C4) and Instance Registry (C5), persisting every stage transition to
// the Event Store (C6).
type Pipeline struct {
	config Config
	store  *EventStore

	watcher     *Watcher
	analyzer    *Analyzer
	coordinator *Coordinator
	registry    *InstanceRegistry

	priorMu sync.Mutex
	priorByClass map[string]ClassMetadata
}

// NewPipeline constructs a Pipeline from its configuration and the two
// externally-supplied ports (spec §6); the Instance Registry is
// internal state, not a port, since it has exactly one implementation
// regardless of host runtime.
func NewPipeline(config Config, redefine RedefinitionPort, lookup ClassLookupPort) (*Pipeline, error) {
	cfg := config.WithDefaults()

	store, err := NewEventStore(cfg.EventStoreRoot, "")
	if err != nil {
		return nil, err
	}

	registry := NewInstanceRegistry()
	registry.SetHookTimeout(cfg.RedefinitionTimeout)
	coordinator := NewCoordinator(cfg, store, redefine, lookup, registry, nil)

	p := &Pipeline{
		config:       cfg,
		store:        store,
		analyzer:     NewAnalyzer(),
		coordinator:  coordinator,
		registry:     registry,
		priorByClass: make(map[string]ClassMetadata),
	}

	p.watcher = NewWatcher(cfg, p.onFileEvent, p.onDiagnostic)
	return p, nil
}

// Start begins watching all configured roots (spec §4.1 watch()).
func (p *Pipeline) Start() error {
	return p.watcher.Start()
}

// Stop cooperatively drains and tears down the watcher (spec §4.1 stop()).
func (p *Pipeline) Stop() error {
	return p.watcher.Stop()
}

// Registry exposes the Instance Registry so host glue can call
// Track/TrackAll for newly constructed instances (spec §4.5).
func (p *Pipeline) Registry() *InstanceRegistry {
	return p.registry
}

// Store exposes the Event Store for replay and bug-snapshot tooling.
func (p *Pipeline) Store() *EventStore {
	return p.store
}

// onFileEvent is the watcher's Emitter: it drives a ClassFileEvent
// through analysis, validation and (on acceptance) submission to the
// Coordinator.
func (p *Pipeline) onFileEvent(event ClassFileEvent) {
	switch event.Kind {
	case FileDeleted:
		p.emitFileEvent(event, KindClassFileDeleted, ClassFileDeletedPayload{ClassName: event.ClassName, Path: event.Path})
		p.analyzer.Forget(event.Path)
		return // spec §9 open question (c): deletions never reach the coordinator
	case FileCreated:
		p.emitFileEvent(event, KindClassFileCreated, ClassFileCreatedPayload{ClassName: event.ClassName, Path: event.Path, Size: event.Size})
	case FileModified:
		p.emitFileEvent(event, KindClassFileModified, ClassFileModifiedPayload{ClassName: event.ClassName, Path: event.Path, Size: event.Size})
	}

	metadata, err := p.analyzer.Analyze(event.Path)
	if err != nil {
		p.appendEvent(event.ClassName, KindBytecodeAnalysisFailed, BytecodeAnalysisFailedPayload{
			ClassName: event.ClassName, Path: event.Path, Reason: err.Error(),
		})
		return
	}
	p.appendEvent(event.ClassName, KindClassMetadataExtracted, ClassMetadataExtractedPayload{ClassName: event.ClassName, Hash: metadata.Hash})

	prior := p.priorFor(event.ClassName)
	verdict := Validate(prior, metadata)
	p.rememberPrior(event.ClassName, metadata)

	if verdict.Incompatible {
		p.appendEvent(event.ClassName, KindBytecodeRejected, BytecodeRejectedPayload{
			ClassName: event.ClassName, Reason: verdict.Reason, Detail: verdict.Detail,
		})
		return
	}
	p.appendEvent(event.ClassName, KindBytecodeValidated, BytecodeValidatedPayload{ClassName: event.ClassName, Description: verdict.Description})

	bytecode, readErr := readArtifact(event.Path)
	if readErr != nil {
		p.appendEvent(event.ClassName, KindBytecodeAnalysisFailed, BytecodeAnalysisFailedPayload{
			ClassName: event.ClassName, Path: event.Path, Reason: readErr.Error(),
		})
		return
	}

	p.coordinator.Submit(RedefinitionRequest{
		ClassName:     event.ClassName,
		Bytecode:      bytecode,
		Hash:          metadata.Hash,
		CorrelationID: uuid.NewString(),
	})
}

// onDiagnostic persists a non-fatal watcher condition (spec §7).
func (p *Pipeline) onDiagnostic(diag DiagnosticPayload) {
	p.appendEvent(diag.ClassName, KindDiagnostic, diag)
}

func (p *Pipeline) emitFileEvent(event ClassFileEvent, kind EventKind, payload any) {
	p.appendEvent(event.ClassName, kind, payload)
}

func (p *Pipeline) appendEvent(className string, kind EventKind, payload any) {
	event := NewEvent(AggregateHotSwap, className, kind, payload)
	_, _ = p.store.Append(event)
}

func (p *Pipeline) priorFor(className string) ClassMetadata {
	p.priorMu.Lock()
	defer p.priorMu.Unlock()
	return p.priorByClass[className]
}

func (p *Pipeline) rememberPrior(className string, metadata ClassMetadata) {
	p.priorMu.Lock()
	defer p.priorMu.Unlock()
	p.priorByClass[className] = metadata
}

func readArtifact(path string) ([]byte, error) {
	return os.ReadFile(path)
}
