package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"log/slog"

	"github.com/harshhgithub/CodeSync/internal/app"
	"github.com/harshhgithub/CodeSync/pkg/metrics"
)

// FailureOutput is shown to every room member when a run cannot complete.
const FailureOutput = "Error compiling code. Please try again."

const noOutput = "No output."

// Request is one code execution, captured by value at submit time.
type Request struct {
	Language string
	Version  string
	Code     string
	Stdin    string
}

// Result is what gets broadcast back to the room.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
}

// Client calls a Piston-compatible execution service.
type Client struct {
	url string
	hc  *http.Client
	log *slog.Logger
}

// NewClient builds the gateway from config; the HTTP timeout bounds every run
func NewClient(cfg app.Config, log *slog.Logger) *Client {
	return &Client{
		url: cfg.ExecURL,
		hc:  &http.Client{Timeout: cfg.ExecTimeout},
		log: log,
	}
}

// Piston wire format: source goes in a files array, output comes back under run.
type pistonRequest struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Files    []pistonFile `json:"files"`
	Stdin    string       `json:"stdin"`
}

type pistonFile struct {
	Content string `json:"content"`
}

type pistonResponse struct {
	Run struct {
		Output string `json:"output"`
	} `json:"run"`
}

// Execute runs the code remotely. It never returns an error: any transport,
// status, or decode failure becomes a failed Result with a fixed placeholder
// output, so callers can broadcast whatever comes back.
func (c *Client) Execute(ctx context.Context, req Request) Result {
	start := time.Now()
	res := c.execute(ctx, req)
	metrics.ExecDuration.Observe(time.Since(start).Seconds())
	status := "ok"
	if !res.Success {
		status = "error"
	}
	metrics.ExecRuns.WithLabelValues(status).Inc()
	return res
}

func (c *Client) execute(ctx context.Context, req Request) Result {
	body, err := json.Marshal(pistonRequest{
		Language: req.Language,
		Version:  req.Version,
		Files:    []pistonFile{{Content: req.Code}},
		Stdin:    req.Stdin,
	})
	if err != nil {
		return Result{Success: false, Output: FailureOutput}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{Success: false, Output: FailureOutput}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		c.log.Debug("exec.call", "err", err)
		return Result{Success: false, Output: FailureOutput}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug("exec.status", "code", resp.StatusCode)
		return Result{Success: false, Output: FailureOutput}
	}

	var out pistonResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.log.Debug("exec.decode", "err", err)
		return Result{Success: false, Output: FailureOutput}
	}

	output := out.Run.Output
	if output == "" {
		output = noOutput
	}
	return Result{Success: true, Output: output}
}
