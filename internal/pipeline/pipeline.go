// Package pipeline connects the tailer, parser and store writer into the
// ingestion path, and feeds the system log tail into the alert dispatcher.
// A dead ingestion path never takes the query API down with it.
package pipeline

import (
	"context"
	"errors"

	"github.com/fortilog-systems/fortilog/internal/alert"
	"github.com/fortilog-systems/fortilog/internal/logging"
	"github.com/fortilog-systems/fortilog/internal/models"
	"github.com/fortilog-systems/fortilog/internal/parser"
	"github.com/fortilog-systems/fortilog/internal/tailer"
)

// EventSink receives parsed events. Satisfied by store.Writer.
type EventSink interface {
	Append(ev models.Event)
}

// Ingestion pumps firewall log lines through the parser into the sink.
type Ingestion struct {
	tail   *tailer.Tailer
	parser *parser.Parser
	sink   EventSink
	log    *logging.Logger
}

func NewIngestion(tail *tailer.Tailer, p *parser.Parser, sink EventSink, log *logging.Logger) *Ingestion {
	return &Ingestion{
		tail:   tail,
		parser: p,
		sink:   sink,
		log:    log.With("component", "ingestion"),
	}
}

// Run tails the source until ctx is cancelled or the source is permanently
// lost. A lost source is fatal for ingestion only; callers keep the rest of
// the process serving.
func (in *Ingestion) Run(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- in.tail.Run(ctx)
	}()

	for line := range in.tail.Lines() {
		ev, ok := in.parser.Parse(line)
		if !ok {
			continue
		}
		in.sink.Append(*ev)
	}

	err := <-done
	if err != nil && !errors.Is(err, context.Canceled) {
		in.log.ErrorContext(ctx, "ingestion stopped", "error", err)
		return err
	}
	return nil
}

// AuthFeed pumps tailed system log lines into the alert dispatcher.
type AuthFeed struct {
	tail *tailer.Tailer
	disp *alert.Dispatcher
	log  *logging.Logger
}

func NewAuthFeed(tail *tailer.Tailer, disp *alert.Dispatcher, log *logging.Logger) *AuthFeed {
	return &AuthFeed{
		tail: tail,
		disp: disp,
		log:  log.With("component", "authfeed"),
	}
}

// Run tails the system log and hands each line to the auth rule. Losing the
// system log disables the auth rule but nothing else.
func (f *AuthFeed) Run(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- f.tail.Run(ctx)
	}()

	for line := range f.tail.Lines() {
		f.disp.HandleLine(ctx, line)
	}

	err := <-done
	if err != nil && !errors.Is(err, context.Canceled) {
		f.log.WarnContext(ctx, "auth feed stopped", "error", err)
		return err
	}
	return nil
}
