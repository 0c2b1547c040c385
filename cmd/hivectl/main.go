// hivectl is a small client for the hived HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

func parseArgs(args []string) map[string]string {
	result := make(map[string]string)
	for i := 0; i < len(args); i++ {
		if len(args[i]) > 2 && args[i][:2] == "--" && i+1 < len(args) {
			result[args[i][2:]] = args[i+1]
			i++
		}
	}
	return result
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, `  hivectl status`)
	fmt.Fprintln(os.Stderr, `  hivectl agents`)
	fmt.Fprintln(os.Stderr, `  hivectl submit --file spec.json`)
	fmt.Fprintln(os.Stderr, `  hivectl result --id <spec-id>`)
	fmt.Fprintln(os.Stderr, `  hivectl cancel --id <spec-id>`)
	fmt.Fprintln(os.Stderr, `  hivectl spawn --type <agent-type>`)
	fmt.Fprintln(os.Stderr, `  hivectl terminate --id <agent-id>`)
	fmt.Fprintln(os.Stderr, `  hivectl search --q "<terms>" [--limit N]`)
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Environment:")
	fmt.Fprintln(os.Stderr, "  HIVED_URL    API base URL (default http://localhost:8080)")
	fmt.Fprintln(os.Stderr, "  HIVED_TOKEN  Bearer token when the API requires auth")
	os.Exit(1)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func newClient() *client {
	base := os.Getenv("HIVED_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	return &client{
		base:  base,
		token: os.Getenv("HIVED_TOKEN"),
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

// call sends a request and pretty-prints the JSON response. Non-2xx
// responses surface the API's error message.
func (c *client) call(method, path string, body any) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			fatal("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		fatal("%v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		fatal("%v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fatal("read response: %v", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			fatal("%s (%s)", apiErr.Error, resp.Status)
		}
		fatal("%s", resp.Status)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		os.Stdout.Write(data)
		return
	}
	pretty.WriteByte('\n')
	os.Stdout.Write(pretty.Bytes())
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	c := newClient()
	command := os.Args[1]
	args := parseArgs(os.Args[2:])

	switch command {
	case "status":
		c.call("GET", "/api/status", nil)

	case "agents":
		c.call("GET", "/api/agents", nil)

	case "submit":
		if args["file"] == "" {
			fatal("--file is required")
		}
		data, err := os.ReadFile(args["file"])
		if err != nil {
			fatal("read spec: %v", err)
		}
		var spec map[string]any
		if err := json.Unmarshal(data, &spec); err != nil {
			fatal("parse spec: %v", err)
		}
		c.call("POST", "/api/specifications", spec)

	case "result":
		if args["id"] == "" {
			fatal("--id is required")
		}
		c.call("GET", "/api/specifications/"+args["id"]+"/result", nil)

	case "cancel":
		if args["id"] == "" {
			fatal("--id is required")
		}
		c.call("POST", "/api/specifications/"+args["id"]+"/cancel", nil)

	case "spawn":
		if args["type"] == "" {
			fatal("--type is required")
		}
		c.call("POST", "/api/agents", map[string]string{"type": args["type"]})

	case "terminate":
		if args["id"] == "" {
			fatal("--id is required")
		}
		c.call("DELETE", "/api/agents/"+args["id"], nil)

	case "search":
		if args["q"] == "" {
			fatal("--q is required")
		}
		path := "/api/memory/search?q=" + url.QueryEscape(args["q"])
		if args["limit"] != "" {
			path += "&limit=" + args["limit"]
		}
		c.call("GET", path, nil)

	default:
		fatal("unknown command: %s", command)
	}
}
