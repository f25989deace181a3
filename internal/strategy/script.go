package strategy

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/dop251/goja"

	"github.com/lox/celojack/internal/game"
)

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 250 * time.Millisecond
)

// Script is a strategy written in JavaScript. The source must define
// decide(hand), returning "hit"/"stand" or a boolean (true means hit).
//
// hand has the fields cards (["As","10d"]), total, soft, dealer ("Kc") and
// dealerValue (10, ace counts 11).
type Script struct {
	runtime *goja.Runtime
	decide  goja.Callable
	clock   quartz.Clock
	mu      sync.Mutex
}

// ScriptOption configures a Script
type ScriptOption func(*Script)

// WithScriptClock sets the clock used for script timeouts
func WithScriptClock(clock quartz.Clock) ScriptOption {
	return func(s *Script) {
		s.clock = clock
	}
}

// NewScript compiles source in a sandboxed runtime
func NewScript(source string, opts ...ScriptOption) (*Script, error) {
	s := &Script{
		runtime: goja.New(),
		clock:   quartz.NewReal(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, name := range []string{"require", "fetch", "XMLHttpRequest", "eval", "Function"} {
		if err := s.runtime.Set(name, goja.Undefined()); err != nil {
			return nil, err
		}
	}

	err := s.runWithTimeout(scriptInitTimeout, func() error {
		if _, err := s.runtime.RunString(source); err != nil {
			return fmt.Errorf("script execution error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fn := s.runtime.Get("decide")
	if fn == nil || goja.IsUndefined(fn) || goja.IsNull(fn) {
		return nil, fmt.Errorf("decide() function is not defined")
	}
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, fmt.Errorf("decide is not a function")
	}
	s.decide = callable
	return s, nil
}

// Decide implements game.Strategy
func (s *Script) Decide(view game.PlayerView) (game.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards := make([]string, len(view.Player))
	for i, c := range view.Player {
		cards[i] = c.Code()
	}
	hand := s.runtime.NewObject()
	for k, v := range map[string]any{
		"cards":       cards,
		"total":       view.Score.Total,
		"soft":        view.Score.Soft,
		"dealer":      view.DealerUp.Code(),
		"dealerValue": view.DealerUp.Value(),
	} {
		if err := hand.Set(k, v); err != nil {
			return game.DecisionStand, err
		}
	}

	var result goja.Value
	err := s.runWithTimeout(scriptCallTimeout, func() error {
		v, err := s.decide(goja.Undefined(), hand)
		if err != nil {
			return fmt.Errorf("decide() error: %w", err)
		}
		result = v
		return nil
	})
	if err != nil {
		return game.DecisionStand, err
	}
	return toDecision(result)
}

func toDecision(v goja.Value) (game.Decision, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return game.DecisionStand, fmt.Errorf("decide() returned nothing")
	}
	switch exported := v.Export().(type) {
	case bool:
		if exported {
			return game.DecisionHit, nil
		}
		return game.DecisionStand, nil
	case string:
		switch strings.ToLower(exported) {
		case "hit", "h":
			return game.DecisionHit, nil
		case "stand", "s":
			return game.DecisionStand, nil
		}
	}
	return game.DecisionStand, fmt.Errorf("decide() returned %q, want \"hit\" or \"stand\"", v.String())
}

func (s *Script) runWithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := s.clock.NewTimer(timeout, "script")
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		// Interrupt a runaway script
		s.runtime.Interrupt("script execution timeout")
		err := <-done
		s.runtime.ClearInterrupt()
		if err != nil {
			return fmt.Errorf("script timed out: %w", err)
		}
		return fmt.Errorf("script timed out")
	}
}
