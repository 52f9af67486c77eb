package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Command is a physical actuator command.
type Command string

const (
	CommandOn  Command = "on"
	CommandOff Command = "off"
)

// Result reports one actuator call. Success is true only for a 2xx
// response; callers treat transport errors and non-2xx identically as
// "not confirmed".
type Result struct {
	Success    bool `json:"success"`
	HTTPStatus int  `json:"http_status"`
}

// State is the actuator's own report of its physical state.
type State struct {
	Enabled bool `json:"usb_enabled"`
}

// Gateway is a minimal REST client for the relay controller. It is the
// only external call the control loop makes.
type Gateway struct {
	baseURL string
	client  *http.Client
}

// NewGateway constructs a gateway for the controller at baseURL.
func NewGateway(baseURL string, timeout time.Duration) (*Gateway, error) {
	if baseURL == "" {
		return nil, errors.New("actuator: empty base url")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Request issues one on/off command. A transport failure returns an
// error; a non-2xx response returns Result{Success: false} with the
// status, without an error.
func (g *Gateway) Request(ctx context.Context, cmd Command) (Result, error) {
	if cmd != CommandOn && cmd != CommandOff {
		return Result{}, fmt.Errorf("actuator: unknown command %q", cmd)
	}
	// The relay controller toggles on GET, a quirk of the device firmware.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/"+string(cmd), nil)
	if err != nil {
		return Result{}, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	return Result{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		HTTPStatus: resp.StatusCode,
	}, nil
}

// QueryState asks the controller for its current physical state.
func (g *Gateway) QueryState(ctx context.Context) (State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/status", nil)
	if err != nil {
		return State{}, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return State{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return State{}, fmt.Errorf("actuator: http %d", resp.StatusCode)
	}
	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return State{}, err
	}
	return state, nil
}
