package control

import (
	"bufio"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
)

// T returns the tracer this package logs to: the shared gtrace.SyntaxTracer.
func T() tracing.Trace {
	return gtrace.SyntaxTracer
}

// Controller is everything the control endpoint needs from the running
// resource. Every method is called from a connection-handling goroutine
// and must itself apply any mutation only at a quiescent point (§5): the
// concrete RuntimeController does this by acquiring PauseGate's mutex,
// which the driving cycle loop also acquires once per cycle boundary.
type Controller interface {
	State() DebugState
	Stops() []StopReason
	Stack() []StackFrame
	Scopes(frameId int) ([]Scope, error)
	Variables(ref int) ([]Variable, error)
	Evaluate(expr string, frameId int) (Variable, error)
	SetBreakpoints(source string, lines []int) ([]BreakpointLocation, error)
	ClearBreakpoints(source string) error
	BreakpointLocations(source string, line int) []BreakpointLocation
	Pause() error
	Resume() error
	StepIn() error
	StepOver() error
	StepOut() error
	IoRead(address string) ([]IoEntry, error)
	IoWrite(address, value string) error
}

// ParseEndpoint splits a runtime.control.endpoint string into a
// net.Listen-compatible (network, address) pair: "tcp://host:port" or
// "unix:///path/to.sock".
func ParseEndpoint(endpoint string) (network, address string, err error) {
	switch {
	case strings.HasPrefix(endpoint, "tcp://"):
		return "tcp", strings.TrimPrefix(endpoint, "tcp://"), nil
	case strings.HasPrefix(endpoint, "unix://"):
		return "unix", strings.TrimPrefix(endpoint, "unix://"), nil
	default:
		return "", "", fmt.Errorf("control: unsupported endpoint %q", endpoint)
	}
}

// Server accepts control/debug connections on one listener and dispatches
// each line-delimited JSON request to a Controller.
type Server struct {
	Controller Controller
	AuthToken  string // empty disables auth checking (§6.2 control.auth_token)

	ln net.Listener
}

// Listen opens the listener for endpoint ("tcp://..." or "unix://...")
// without yet accepting connections.
func Listen(endpoint string) (net.Listener, error) {
	network, address, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("control: listen %s: %w", endpoint, err)
	}
	return ln, nil
}

// Serve accepts connections from ln until it is closed, handling each on
// its own goroutine. Serve returns when Accept fails (typically because
// the listener was closed).
func (s *Server) Serve(ln net.Listener) error {
	s.ln = ln
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	w := bufio.NewWriter(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		resp := s.handleLine(line)
		data, err := json.Marshal(resp)
		if err != nil {
			T().Errorf("control: marshaling response: %v", err)
			return
		}
		if _, err := w.Write(data); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) handleLine(line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{Ok: false, Error: fmt.Sprintf("invalid request: %v", err)}
	}
	if s.AuthToken != "" {
		if subtle.ConstantTimeCompare([]byte(req.Auth), []byte(s.AuthToken)) != 1 {
			return fail(req.Id, fmt.Errorf("unauthorized"))
		}
	}
	return s.dispatch(req)
}

func (s *Server) dispatch(req Request) Response {
	c := s.Controller
	switch req.Type {
	case "debug.state":
		return ok(req.Id, c.State())
	case "debug.stops":
		return ok(req.Id, c.Stops())
	case "debug.stack":
		return ok(req.Id, c.Stack())
	case "debug.scopes":
		var p scopesParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return fail(req.Id, err)
		}
		scopes, err := c.Scopes(p.FrameId)
		if err != nil {
			return fail(req.Id, err)
		}
		return ok(req.Id, scopes)
	case "debug.variables":
		var p variablesParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return fail(req.Id, err)
		}
		vars, err := c.Variables(p.VariablesReference)
		if err != nil {
			return fail(req.Id, err)
		}
		return ok(req.Id, vars)
	case "debug.evaluate":
		var p evaluateParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return fail(req.Id, err)
		}
		v, err := c.Evaluate(p.Expression, p.FrameId)
		if err != nil {
			return fail(req.Id, err)
		}
		return ok(req.Id, v)
	case "breakpoints.set":
		var p setBreakpointsParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return fail(req.Id, err)
		}
		resolved, err := c.SetBreakpoints(p.Source, p.Lines)
		if err != nil {
			return fail(req.Id, err)
		}
		return ok(req.Id, resolved)
	case "breakpoints.clear":
		var p setBreakpointsParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return fail(req.Id, err)
		}
		if err := c.ClearBreakpoints(p.Source); err != nil {
			return fail(req.Id, err)
		}
		return ok(req.Id, nil)
	case "debug.breakpoint_locations":
		var p breakpointLocationsParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return fail(req.Id, err)
		}
		return ok(req.Id, c.BreakpointLocations(p.Source, p.Line))
	case "pause":
		if err := c.Pause(); err != nil {
			return fail(req.Id, err)
		}
		return ok(req.Id, nil)
	case "resume":
		if err := c.Resume(); err != nil {
			return fail(req.Id, err)
		}
		return ok(req.Id, nil)
	case "step_in":
		if err := c.StepIn(); err != nil {
			return fail(req.Id, err)
		}
		return ok(req.Id, nil)
	case "step_over":
		if err := c.StepOver(); err != nil {
			return fail(req.Id, err)
		}
		return ok(req.Id, nil)
	case "step_out":
		if err := c.StepOut(); err != nil {
			return fail(req.Id, err)
		}
		return ok(req.Id, nil)
	case "io.read":
		var p ioReadParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return fail(req.Id, err)
		}
		entries, err := c.IoRead(p.Address)
		if err != nil {
			return fail(req.Id, err)
		}
		return ok(req.Id, entries)
	case "io.write":
		var p ioWriteParams
		if err := unmarshalParams(req.Params, &p); err != nil {
			return fail(req.Id, err)
		}
		if err := c.IoWrite(p.Address, p.Value); err != nil {
			return fail(req.Id, err)
		}
		return ok(req.Id, nil)
	default:
		return fail(req.Id, fmt.Errorf("unknown request type %q", req.Type))
	}
}

func unmarshalParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
