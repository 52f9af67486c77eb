package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"hygrostat-cloud/internal/actuator"
	control "hygrostat-cloud/internal/control/domain"
	"hygrostat-cloud/internal/observability/metrics"
	telemetryapp "hygrostat-cloud/internal/telemetry/application"
	telemetry "hygrostat-cloud/internal/telemetry/domain"
)

// ActuatorClient is the outbound relay controller interface.
type ActuatorClient interface {
	Request(ctx context.Context, cmd actuator.Command) (actuator.Result, error)
	QueryState(ctx context.Context) (actuator.State, error)
}

// CycleStatus is the outcome of one decision cycle or manual command,
// published to stream subscribers and kept as the latest status.
type CycleStatus struct {
	CycleID    string            `json:"cycle_id"`
	At         time.Time         `json:"at"`
	Blend      *float64          `json:"blend,omitempty"`
	Action     control.Action    `json:"action"`
	Suppressed bool              `json:"suppressed"`
	Manual     bool              `json:"manual"`
	Confirmed  bool              `json:"confirmed"`
	HTTPStatus int               `json:"http_status,omitempty"`
	State      control.State     `json:"state"`
	Override   *control.Override `json:"override,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// CycleNotifier receives cycle status events.
type CycleNotifier interface {
	Notify(ctx context.Context, status CycleStatus)
}

// Engine drives the control loop: pull windowed aggregates, blend them,
// decide, and command the actuator. Settings and the decision state
// machine live behind one mutex; the mutex is never held across the
// actuator call.
type Engine struct {
	mu          sync.Mutex
	decider     *control.Decider
	weights     map[string]float64
	thresholds  control.Thresholds
	last        *CycleStatus
	aggregator  *telemetryapp.Aggregator
	gateway     ActuatorClient
	field       telemetry.Field
	window      telemetry.Window
	callTimeout time.Duration
	logger      *log.Logger
	notifier    CycleNotifier
	clock       telemetryapp.Clock
}

// EngineOption customizes the engine.
type EngineOption func(*Engine)

// WithNotifier assigns a cycle notifier.
func WithNotifier(n CycleNotifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

// WithEngineClock assigns a clock.
func WithEngineClock(clock telemetryapp.Clock) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// WithCallTimeout bounds each actuator call.
func WithCallTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// NewEngine constructs an engine.
func NewEngine(aggregator *telemetryapp.Aggregator, gateway ActuatorClient, cfg Config, logger *log.Logger, opts ...EngineOption) (*Engine, error) {
	if aggregator == nil {
		return nil, errors.New("control engine: nil aggregator")
	}
	if gateway == nil {
		return nil, errors.New("control engine: nil actuator client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	weights := make(map[string]float64, len(cfg.Weights))
	for source, w := range cfg.Weights {
		weights[source] = w
	}
	e := &Engine{
		decider:     control.NewDecider(),
		weights:     weights,
		thresholds:  cfg.Thresholds,
		aggregator:  aggregator,
		gateway:     gateway,
		field:       telemetry.Field(cfg.Field),
		window:      telemetry.TimeWindow(time.Duration(cfg.WindowSeconds) * time.Second),
		callTimeout: time.Duration(cfg.ActuatorTimeoutSeconds) * time.Second,
		logger:      logger,
		clock:       systemClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// RunCycle evaluates one decision cycle. A failed or timed-out actuator
// call leaves the tracked state untouched; the next cycle re-attempts.
func (e *Engine) RunCycle(ctx context.Context) CycleStatus {
	start := time.Now()
	now := e.clock.Now()

	status := CycleStatus{
		CycleID: uuid.NewString(),
		At:      now,
		Action:  control.ActionNoAction,
	}

	aggs, err := e.aggregator.AggregateAll(e.window)
	if err != nil {
		status.Error = err.Error()
		e.mu.Lock()
		status.State = e.decider.State()
		status.Override = e.decider.Override()
		e.last = &status
		e.mu.Unlock()
		e.finishCycle(ctx, status, start, metrics.ResultError)
		return status
	}

	e.mu.Lock()
	weights := e.weights
	thresholds := e.thresholds
	var blendPtr *float64
	if blend, ok := control.BlendField(aggs, weights, e.field); ok {
		blendPtr = &blend
	}
	decision := e.decider.Decide(blendPtr, thresholds)
	e.mu.Unlock()

	status.Blend = decision.Blend
	status.Action = decision.Action
	status.Suppressed = decision.Suppressed

	if decision.Suppressed {
		e.logger.Printf("control cycle: turn-on suppressed by override blend=%.2f", *decision.Blend)
	}

	if decision.Action != control.ActionNoAction {
		status.Confirmed, status.HTTPStatus, status.Error = e.execute(ctx, decision.Action)
	}

	e.mu.Lock()
	if status.Confirmed {
		e.decider.Confirm(status.Action)
	}
	status.State = e.decider.State()
	status.Override = e.decider.Override()
	e.last = &status
	e.mu.Unlock()

	result := metrics.ResultSuccess
	if status.Error != "" {
		result = metrics.ResultError
	}
	e.finishCycle(ctx, status, start, result)
	return status
}

// Command applies a manual operator command, bypassing thresholds.
func (e *Engine) Command(ctx context.Context, state control.State) (CycleStatus, error) {
	if state != control.StateOn && state != control.StateOff {
		return CycleStatus{}, errors.New("control engine: invalid manual state")
	}
	now := e.clock.Now()

	e.mu.Lock()
	action := e.decider.Command(state, now)
	e.mu.Unlock()

	status := CycleStatus{
		CycleID: uuid.NewString(),
		At:      now,
		Action:  action,
		Manual:  true,
	}
	status.Confirmed, status.HTTPStatus, status.Error = e.execute(ctx, action)

	e.mu.Lock()
	if status.Confirmed {
		e.decider.Confirm(action)
	}
	status.State = e.decider.State()
	status.Override = e.decider.Override()
	e.last = &status
	e.mu.Unlock()

	metrics.IncDecisionAction(string(action))
	e.notify(ctx, status)
	return status, nil
}

// ClearOverride releases the manual latch.
func (e *Engine) ClearOverride() {
	e.mu.Lock()
	e.decider.ClearOverride()
	e.mu.Unlock()
}

// SetWeights replaces the blend weights after validation.
func (e *Engine) SetWeights(weights map[string]float64) error {
	if err := control.ValidateWeights(weights); err != nil {
		return err
	}
	copied := make(map[string]float64, len(weights))
	for source, w := range weights {
		copied[source] = w
	}
	e.mu.Lock()
	e.weights = copied
	e.mu.Unlock()
	return nil
}

// SetThresholds replaces the hysteresis band after validation.
func (e *Engine) SetThresholds(t control.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.thresholds = t
	e.mu.Unlock()
	return nil
}

// EngineStatus is the operator-facing view of the loop.
type EngineStatus struct {
	State      control.State      `json:"state"`
	Override   *control.Override  `json:"override,omitempty"`
	Thresholds control.Thresholds `json:"thresholds"`
	Weights    map[string]float64 `json:"weights"`
	LastCycle  *CycleStatus       `json:"last_cycle,omitempty"`
}

// Status reports a snapshot of settings, latch, and the last cycle.
func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	weights := make(map[string]float64, len(e.weights))
	for source, w := range e.weights {
		weights[source] = w
	}
	status := EngineStatus{
		State:      e.decider.State(),
		Override:   e.decider.Override(),
		Thresholds: e.thresholds,
		Weights:    weights,
	}
	if e.last != nil {
		last := *e.last
		status.LastCycle = &last
	}
	return status
}

// ActuatorState queries the controller's own physical state report.
func (e *Engine) ActuatorState(ctx context.Context) (actuator.State, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return e.gateway.QueryState(callCtx)
}

func (e *Engine) execute(ctx context.Context, action control.Action) (confirmed bool, httpStatus int, errText string) {
	var cmd actuator.Command
	switch action {
	case control.ActionTurnOn:
		cmd = actuator.CommandOn
	case control.ActionTurnOff:
		cmd = actuator.CommandOff
	default:
		return false, 0, ""
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	start := time.Now()
	res, err := e.gateway.Request(callCtx, cmd)
	if err != nil {
		metrics.ObserveActuatorRequest(string(cmd), metrics.ResultError, time.Since(start))
		e.logger.Printf("control cycle: actuator %s unconfirmed: %v", cmd, err)
		return false, 0, err.Error()
	}
	result := metrics.ResultSuccess
	if !res.Success {
		result = metrics.ResultError
		e.logger.Printf("control cycle: actuator %s unconfirmed: http %d", cmd, res.HTTPStatus)
	}
	metrics.ObserveActuatorRequest(string(cmd), result, time.Since(start))
	return res.Success, res.HTTPStatus, ""
}

func (e *Engine) finishCycle(ctx context.Context, status CycleStatus, start time.Time, result string) {
	metrics.IncDecisionAction(string(status.Action))
	metrics.ObserveDecisionCycle(result, time.Since(start))
	e.notify(ctx, status)
}

func (e *Engine) notify(ctx context.Context, status CycleStatus) {
	if e.notifier != nil {
		e.notifier.Notify(ctx, status)
	}
}
