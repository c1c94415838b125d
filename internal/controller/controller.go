// Package controller exposes the harvesting engine over a local HTTP
// and server-sent-event surface: a single HTML page, a /events
// stream carrying log and job lifecycle notifications, and a small
// JSON API that starts, stops, and reports on one batch job at a
// time plus proxies the single-shot session subcommands.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"sync"

	"github.com/twharvest/twharvest/pkg/config"
	"github.com/twharvest/twharvest/pkg/engine"
	"github.com/twharvest/twharvest/pkg/events"
	"github.com/twharvest/twharvest/pkg/harvest"
	"github.com/twharvest/twharvest/pkg/logger"
	"github.com/twharvest/twharvest/pkg/session"
)

// Server holds the controller's running state: at most one batch job
// runs at a time, and every connected browser tab shares the same
// event hub.
type Server struct {
	cfg     *config.Config
	log     logger.Logger
	exePath string
	hub     *hub

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New returns a Server. exePath is the path to this binary,
// re-invoked for the single-shot login/whoami/logout subcommands so
// the controller never reimplements their logic.
func New(cfg *config.Config, log logger.Logger, exePath string) *Server {
	return &Server{cfg: cfg, log: log, exePath: exePath, hub: newHub()}
}

// Handler builds the controller's full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/download", s.handleDownload)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/login", s.proxySubcommand("login"))
	mux.HandleFunc("/api/whoami", s.proxySubcommand("whoami"))
	mux.HandleFunc("/api/logout", s.proxySubcommand("logout"))
	mux.HandleFunc("/api/login-interactive", s.proxySubcommand("login", "--interactive"))
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
			flusher.Flush()
		}
	}
}

type statusResponse struct {
	Running bool `json:"running"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, statusResponse{Running: running})
}

type downloadRequest struct {
	Users             []string           `json:"users"`
	OutputDir         string             `json:"outputDir"`
	Kinds             []events.MediaKind `json:"kinds"`
	MaxTweetsPerUser  int                `json:"maxTweetsPerUser"`
	Concurrency       int                `json:"concurrency"`
	RetryCount        int                `json:"retryCount"`
	UserRetryCount    int                `json:"userRetryCount"`
	UserDelayMs       int                `json:"userDelayMs"`
	PerRequestDelayMs int                `json:"perRequestDelayMs"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(req.Users) == 0 || req.OutputDir == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "users and outputDir are required"})
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a job is already running"})
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	jobCfg := *s.cfg
	if req.Concurrency > 0 {
		jobCfg.Download.Concurrency = req.Concurrency
	}
	if req.RetryCount > 0 {
		jobCfg.Download.RetryCount = req.RetryCount
	}

	scraper := engine.New(&jobCfg, s.log)
	store := session.New(config.AppName, nil)

	go s.runJob(ctx, harvest.JobOptions{
		Store:             store,
		Users:             req.Users,
		OutputDir:         req.OutputDir,
		MediaKinds:        req.Kinds,
		MaxTweetsPerUser:  req.MaxTweetsPerUser,
		Concurrency:       jobCfg.Download.Concurrency,
		RetryCount:        jobCfg.Download.RetryCount,
		UserRetryCount:    req.UserRetryCount,
		UserDelayMs:       req.UserDelayMs,
		PerRequestDelayMs: req.PerRequestDelayMs,
		Scraper:           scraper,
	})

	writeJSON(w, http.StatusAccepted, map[string]bool{"started": true})
}

// runJob drains RunBatchJob's channel, republishing every JobEvent as
// a "job" SSE event and a matching "log" line, and clears the
// running flag once the channel closes.
func (s *Server) runJob(ctx context.Context, opts harvest.JobOptions) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	s.publishJob(map[string]interface{}{"type": "started"})

	ch := harvest.RunBatchJob(ctx, opts)
	for msg := range ch {
		if msg.Event != nil {
			s.publishLog(msg.Event)
		}
		if msg.Result != nil {
			s.publishJob(map[string]interface{}{"type": "finished", "result": msg.Result})
		}
	}
}

func (s *Server) publishJob(payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	s.hub.publish(sseEvent{name: "job", data: data})
}

func (s *Server) publishLog(ev *events.JobEvent) {
	data, err := json.Marshal(map[string]interface{}{
		"stream": "stdout",
		"line":   ev.Message,
		"parsed": ev,
	})
	if err != nil {
		return
	}
	s.hub.publish(sseEvent{name: "log", data: data})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": cancel != nil})
}

type subcommandResponse struct {
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	OK       bool   `json:"ok"`
}

// proxySubcommand returns a handler that re-invokes this binary as
// "<exe> <name> <extraArgs...> --output-format json" and relays its
// exit code and captured output. Every interactive or stateful
// subcommand (login, whoami, logout) is implemented once, as a CLI
// command; the controller never duplicates that logic.
func (s *Server) proxySubcommand(name string, extraArgs ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		args := append([]string{name}, extraArgs...)
		args = append(args, "--output-format", "json")
		cmd := exec.CommandContext(r.Context(), s.exePath, args...)
		cmd.Stdin = r.Body

		var stdout, stderr strings.Builder
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		resp := subcommandResponse{Stdout: stdout.String(), Stderr: stderr.String()}
		if err == nil {
			resp.ExitCode = 0
			resp.OK = true
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			resp.ExitCode = exitErr.ExitCode()
		} else {
			resp.ExitCode = 5
			resp.Stderr += err.Error()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>twharvest</title></head>
<body>
<h1>twharvest</h1>
<p>Use the JSON API under /api/* and subscribe to /events for live progress.</p>
<pre id="log"></pre>
<script>
const log = document.getElementById('log');
const src = new EventSource('/events');
src.addEventListener('log', e => { log.textContent += e.data + "\n"; });
src.addEventListener('job', e => { log.textContent += "[job] " + e.data + "\n"; });
</script>
</body>
</html>
`
