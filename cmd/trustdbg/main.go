// Command trustdbg is an interactive console for a running resource's
// control/debug endpoint (§6.4): it connects over TCP or a Unix socket,
// sends one line-delimited JSON request per command, and prints the
// decoded response.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pterm/pterm"

	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"

	"github.com/trust-automation/trust/internal/control"
)

func main() {
	initDisplay()
	gtrace.SyntaxTracer = gologadapter.New()

	endpoint := flag.String("endpoint", "tcp://127.0.0.1:9000", "control endpoint (tcp://host:port or unix:///path)")
	auth := flag.String("auth", "", "control.auth_token, if the endpoint requires one")
	tlevel := flag.String("trace", "Info", "Trace level [Debug|Info|Error]")
	flag.Parse()
	gtrace.SyntaxTracer.SetTraceLevel(tracing.TraceLevelFromString(*tlevel))

	network, address, err := control.ParseEndpoint(*endpoint)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(2)
	}
	conn, err := net.Dial(network, address)
	if err != nil {
		pterm.Error.Printf("connecting to %s: %v\n", *endpoint, err)
		os.Exit(1)
	}
	defer conn.Close()

	c := &client{conn: conn, r: bufio.NewReader(conn), auth: *auth}

	repl, err := readline.New("trustdbg> ")
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(3)
	}
	defer repl.Close()

	pterm.Info.Printf("connected to %s\n", *endpoint)
	pterm.Info.Println("type 'help' for commands, <ctrl>D to quit")

	for {
		line, err := repl.Readline()
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if line == "help" {
			printHelp()
			continue
		}
		if err := c.run(line); err != nil {
			pterm.Error.Println(err)
		}
	}
	pterm.Info.Println("bye")
}

func initDisplay() {
	pterm.Info.Prefix = pterm.Prefix{Text: "  >>", Style: pterm.NewStyle(pterm.BgCyan, pterm.FgBlack)}
	pterm.Error.Prefix = pterm.Prefix{Text: "  Error", Style: pterm.NewStyle(pterm.BgRed, pterm.FgBlack)}
}

func printHelp() {
	pterm.Println(`commands:
  state                           debug.state
  stops                           debug.stops
  stack                           debug.stack
  scopes <frameId>                debug.scopes
  vars <ref>                      debug.variables
  eval <frameId> <expr>           debug.evaluate
  break set <source> <line...>    breakpoints.set
  break clear <source>            breakpoints.clear
  break locs <source> <line>      debug.breakpoint_locations
  pause | resume                  pause / resume
  step_in | step_over | step_out  stepping
  io read [address]                io.read (all, if address omitted)
  io write <address> <value>      io.write
  quit                            close the connection`)
}

// client sends one {id,type,params,auth} request per line and reads back
// exactly one {id,ok,result,error} response, matching the server's
// connection protocol (one outstanding request at a time).
type client struct {
	conn net.Conn
	r    *bufio.Reader
	auth string
	next uint64
}

func (c *client) send(typ string, params interface{}) (control.Response, error) {
	c.next++
	req := control.Request{Id: c.next, Type: typ, Auth: c.auth}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return control.Response{}, err
		}
		req.Params = raw
	}
	line, err := json.Marshal(req)
	if err != nil {
		return control.Response{}, err
	}
	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		return control.Response{}, err
	}
	respLine, err := c.r.ReadBytes('\n')
	if err != nil {
		return control.Response{}, fmt.Errorf("reading response: %w", err)
	}
	var resp control.Response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return control.Response{}, fmt.Errorf("decoding response: %w", err)
	}
	return resp, nil
}

func (c *client) run(line string) error {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	var resp control.Response
	var err error

	switch cmd {
	case "state":
		resp, err = c.send("debug.state", nil)
	case "stops":
		resp, err = c.send("debug.stops", nil)
	case "stack":
		resp, err = c.send("debug.stack", nil)
	case "scopes":
		frameId, aerr := requireInt(args, 0, "frameId")
		if aerr != nil {
			return aerr
		}
		resp, err = c.send("debug.scopes", map[string]int{"frame_id": frameId})
	case "vars":
		ref, aerr := requireInt(args, 0, "ref")
		if aerr != nil {
			return aerr
		}
		resp, err = c.send("debug.variables", map[string]int{"variables_reference": ref})
	case "eval":
		if len(args) < 2 {
			return fmt.Errorf("usage: eval <frameId> <expr>")
		}
		frameId, aerr := strconv.Atoi(args[0])
		if aerr != nil {
			return fmt.Errorf("frameId must be an integer: %w", aerr)
		}
		expr := strings.Join(args[1:], " ")
		resp, err = c.send("debug.evaluate", map[string]interface{}{"frame_id": frameId, "expression": expr})
	case "break":
		resp, err = c.runBreak(args)
	case "pause":
		resp, err = c.send("pause", nil)
	case "resume":
		resp, err = c.send("resume", nil)
	case "step_in":
		resp, err = c.send("step_in", nil)
	case "step_over":
		resp, err = c.send("step_over", nil)
	case "step_out":
		resp, err = c.send("step_out", nil)
	case "io":
		resp, err = c.runIo(args)
	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
	if err != nil {
		return err
	}
	printResponse(resp)
	return nil
}

func (c *client) runBreak(args []string) (control.Response, error) {
	if len(args) < 2 {
		return control.Response{}, fmt.Errorf("usage: break set|clear|locs <source> ...")
	}
	source := args[1]
	switch args[0] {
	case "set":
		lines := make([]int, 0, len(args)-2)
		for _, a := range args[2:] {
			n, err := strconv.Atoi(a)
			if err != nil {
				return control.Response{}, fmt.Errorf("line must be an integer: %w", err)
			}
			lines = append(lines, n)
		}
		return c.send("breakpoints.set", map[string]interface{}{"source": source, "lines": lines})
	case "clear":
		return c.send("breakpoints.clear", map[string]interface{}{"source": source, "lines": []int{}})
	case "locs":
		if len(args) < 3 {
			return control.Response{}, fmt.Errorf("usage: break locs <source> <line>")
		}
		line, err := strconv.Atoi(args[2])
		if err != nil {
			return control.Response{}, fmt.Errorf("line must be an integer: %w", err)
		}
		return c.send("debug.breakpoint_locations", map[string]interface{}{"source": source, "line": line})
	default:
		return control.Response{}, fmt.Errorf("unknown break subcommand %q", args[0])
	}
}

func (c *client) runIo(args []string) (control.Response, error) {
	if len(args) == 0 {
		return control.Response{}, fmt.Errorf("usage: io read|write ...")
	}
	switch args[0] {
	case "read":
		address := ""
		if len(args) > 1 {
			address = args[1]
		}
		return c.send("io.read", map[string]string{"address": address})
	case "write":
		if len(args) != 3 {
			return control.Response{}, fmt.Errorf("usage: io write <address> <value>")
		}
		return c.send("io.write", map[string]string{"address": args[1], "value": args[2]})
	default:
		return control.Response{}, fmt.Errorf("unknown io subcommand %q", args[0])
	}
}

func requireInt(args []string, idx int, name string) (int, error) {
	if idx >= len(args) {
		return 0, fmt.Errorf("missing %s", name)
	}
	n, err := strconv.Atoi(args[idx])
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return n, nil
}

func printResponse(resp control.Response) {
	if !resp.Ok {
		pterm.Error.Println(resp.Error)
		return
	}
	if resp.Result == nil {
		pterm.Info.Println("ok")
		return
	}
	pretty, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		pterm.Info.Printf("%v\n", resp.Result)
		return
	}
	fmt.Println(string(pretty))
}
