package faultrecovery

import (
	"context"
	"encoding/json"
	"os"

	"github.com/wxzhao/workstation/internal/bus"
	"github.com/wxzhao/workstation/internal/logging"
	"github.com/wxzhao/workstation/internal/wire"
)

// RestartRequester receives the exit code a matched restart rule picked.
// The implementation both composition roots supply logs, cancels the daemon
// context and calls os.Exit with that code at once; it does not store the
// code for a later exit, and the daemon's shutdown sequence (RPC stop,
// executor stop, session stop, audit sink close) does not run.
type RestartRequester func(exitCode int)

// Executor subscribes to the fault topic and evaluates Rules against every
// inbound event.
type Executor struct {
	Rules            []Rule
	RequestRestart   RestartRequester
	DefaultExitCode  int
}

// New returns an Executor with the given rules and restart callback.
func New(rules []Rule, requestRestart RestartRequester, defaultExitCode int) *Executor {
	return &Executor{Rules: rules, RequestRestart: requestRestart, DefaultExitCode: defaultExitCode}
}

// Run subscribes to topic on b and evaluates every inbound fault event
// until ctx is cancelled.
func (e *Executor) Run(ctx context.Context, b bus.Bus, topic string) {
	ch, unsubscribe := b.Subscribe(ctx, topic)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			e.handle(env)
		}
	}
}

func (e *Executor) handle(env bus.Envelope) {
	var ev wire.FaultEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		logging.Op().Warn("fault recovery: dropping malformed fault event", "error", err)
		return
	}

	for _, rule := range e.Rules {
		if !rule.Matches(ev) {
			continue
		}
		if rule.Action != "restart" {
			return
		}
		e.triggerRestart(rule, ev)
		return
	}
}

func (e *Executor) triggerRestart(rule Rule, ev wire.FaultEvent) {
	if rule.MarkerFile != "" {
		if err := os.WriteFile(rule.MarkerFile, []byte(ev.Fault+": "+ev.Err), 0644); err != nil {
			logging.Op().Warn("fault recovery: marker file write failed", "path", rule.MarkerFile, "error", err)
		}
	}

	exitCode := rule.ExitCode
	if exitCode == 0 {
		exitCode = e.DefaultExitCode
	}
	logging.Op().Error("fault recovery: restart rule matched", "fault", ev.Fault, "service", ev.Service, "severity", ev.Severity, "exit_code", exitCode)
	if e.RequestRestart != nil {
		e.RequestRestart(exitCode)
	}
}
