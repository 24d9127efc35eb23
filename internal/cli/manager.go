// Package cli provides the bytehotctl command-line interface: an
// operator tool consuming bytehot's public API exclusively (spec §1 —
// the CLI is out of core scope, ambient tooling only).
//
// Grounded on argus's cmd/cli Manager: Orpheus-powered git-style
// subcommands, global flags bound with flash-flags.
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0
package cli

import (
	flashflags "github.com/agilira/flash-flags"
	"github.com/agilira/orpheus/pkg/orpheus"
	"github.com/bytehot/bytehot"
	"github.com/bytehot/bytehot/providers/inprocess"
)

// Manager provides the bytehotctl CLI, routing subcommands through
// Orpheus. Handlers build the pipeline Config from each Orpheus command's
// own flags; the flash-flags set declares the same global flags but is
// not parsed.
type Manager struct {
	app   *orpheus.App
	flags *flashflags.FlagSet

	pipeline *bytehot.Pipeline
	registry *inprocess.ClassRegistry
}

// NewManager constructs the bytehotctl CLI.
func NewManager() *Manager {
	app := orpheus.New("bytehotctl").
		SetDescription("Operator CLI for the ByteHot hot-swap pipeline").
		SetVersion("1.0.0")

	flags := flashflags.New("bytehotctl")
	flags.String("watch-root", ".", "directory watched for compiled-class artifacts")
	flags.Bool("recursive", true, "watch subdirectories")
	flags.String("event-store-root", "./bytehot-events", "event store root directory")
	flags.Int("max-concurrent-redefinitions", 5, "maximum classes REDEFINING at once")

	m := &Manager{app: app, flags: flags}
	m.setupCommands()
	return m
}

// Run executes the CLI with args (typically os.Args[1:]).
func (m *Manager) Run(args []string) error {
	return m.app.Run(args)
}

func (m *Manager) setupCommands() {
	watchCmd := orpheus.NewCommand("watch", "Start watching and hot-swapping compiled-class artifacts")
	watchCmd.SetHandler(m.handleWatch)
	watchCmd.AddFlag("watch-root", "w", ".", "directory watched for compiled-class artifacts")
	watchCmd.AddBoolFlag("recursive", "r", true, "watch subdirectories")
	watchCmd.AddFlag("event-store-root", "e", "./bytehot-events", "event store root directory")
	watchCmd.AddIntFlag("max-concurrent-redefinitions", "c", 5, "maximum classes REDEFINING at once")
	m.app.AddCommand(watchCmd)

	statusCmd := orpheus.NewCommand("status", "Report event store health")
	statusCmd.SetHandler(m.handleStatus)
	statusCmd.AddFlag("event-store-root", "e", "./bytehot-events", "event store root directory")
	m.app.AddCommand(statusCmd)

	replayCmd := orpheus.NewCommand("replay", "Replay an aggregate's event history")
	replayCmd.SetHandler(m.handleReplay)
	replayCmd.AddFlag("event-store-root", "e", "./bytehot-events", "event store root directory")
	m.app.AddCommand(replayCmd)

	bugsCmd := orpheus.NewCommand("bugs", "Bug snapshot inspection")
	tailCmd := bugsCmd.Subcommand("tail", "Show the most recent bug snapshots", m.handleBugsTail)
	tailCmd.AddFlag("event-store-root", "e", "./bytehot-events", "event store root directory")
	tailCmd.AddIntFlag("limit", "l", 10, "maximum snapshots to show")
	m.app.AddCommand(bugsCmd)
}
