package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/chenhg5/phone-pilot/dualmodel"
	"github.com/chenhg5/phone-pilot/store"
)

// APIServer exposes the control API on a local Unix socket, and optionally
// on a TCP address for remote clients.
type APIServer struct {
	socketPath  string
	listener    net.Listener
	tcpListener net.Listener
	mux         *http.ServeMux
	engines     map[string]*Engine // device name → engine
	cron        *CronScheduler
	history     store.Store
	mu          sync.RWMutex
}

// RunRequest is the JSON body for POST /run.
type RunRequest struct {
	Device string `json:"device"`
	Task   string `json:"task"`
	Wait   bool   `json:"wait"`
}

// NewAPIServer creates an API server on a Unix socket under dataDir, plus
// an optional TCP listener when listen is non-empty.
func NewAPIServer(dataDir, listen string) (*APIServer, error) {
	sockDir := filepath.Join(dataDir, "run")
	if err := os.MkdirAll(sockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	sockPath := filepath.Join(sockDir, "api.sock")

	// Remove stale socket
	os.Remove(sockPath)

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	os.Chmod(sockPath, 0o660)

	s := &APIServer{
		socketPath: sockPath,
		listener:   listener,
		mux:        http.NewServeMux(),
		engines:    make(map[string]*Engine),
	}

	if listen != "" {
		tcp, err := net.Listen("tcp", listen)
		if err != nil {
			listener.Close()
			os.Remove(sockPath)
			return nil, fmt.Errorf("listen tcp %s: %w", listen, err)
		}
		s.tcpListener = tcp
	}

	s.mux.HandleFunc("/run", s.handleRun)
	s.mux.HandleFunc("/abort", s.handleAbort)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/tasks", s.handleTasks)
	s.mux.HandleFunc("/events", s.handleEvents)
	s.mux.HandleFunc("/dual/analyze", s.handleDualAnalyze)
	s.mux.HandleFunc("/dual/decide", s.handleDualDecide)
	s.mux.HandleFunc("/dual/generate", s.handleDualGenerate)
	s.mux.HandleFunc("/dual/reset", s.handleDualReset)
	s.mux.HandleFunc("/cron/add", s.handleCronAdd)
	s.mux.HandleFunc("/cron/list", s.handleCronList)
	s.mux.HandleFunc("/cron/del", s.handleCronDel)

	return s, nil
}

func (s *APIServer) SocketPath() string {
	return s.socketPath
}

func (s *APIServer) RegisterEngine(name string, e *Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[name] = e
}

func (s *APIServer) SetCronScheduler(cs *CronScheduler) {
	s.cron = cs
}

func (s *APIServer) SetHistory(h store.Store) {
	s.history = h
}

func (s *APIServer) Start() {
	serve := func(l net.Listener, label string) {
		go func() {
			srv := &http.Server{Handler: s.mux}
			if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
				slog.Error("api server error", "listener", label, "error", err)
			}
		}()
	}
	serve(s.listener, "unix")
	slog.Info("api server started", "socket", s.socketPath)
	if s.tcpListener != nil {
		serve(s.tcpListener, "tcp")
		slog.Info("api server listening", "addr", s.tcpListener.Addr().String())
	}
}

func (s *APIServer) Stop() {
	s.listener.Close()
	if s.tcpListener != nil {
		s.tcpListener.Close()
	}
	os.Remove(s.socketPath)
}

// resolveEngine finds the engine for a device name. An empty name resolves
// when exactly one device is configured.
func (s *APIServer) resolveEngine(name string) (*Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.engines[name]; ok {
		return e, nil
	}
	if name == "" && len(s.engines) == 1 {
		for _, e := range s.engines {
			return e, nil
		}
	}
	if name == "" {
		return nil, fmt.Errorf("device is required (multiple devices configured)")
	}
	return nil, fmt.Errorf("device %q not found", name)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *APIServer) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Task == "" {
		http.Error(w, "task is required", http.StatusBadRequest)
		return
	}

	engine, err := s.resolveEngine(req.Device)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if engine.Busy() {
		http.Error(w, engine.BusyMessage(), http.StatusConflict)
		return
	}

	if req.Wait {
		message, err := engine.RunTask(r.Context(), req.Task)
		if err != nil {
			if errors.Is(err, ErrBusy) {
				http.Error(w, engine.BusyMessage(), http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"status": string(engine.agent.Status()), "message": message})
		return
	}

	// The request context dies with the response; the task outlives it.
	go func() {
		if _, err := engine.RunTask(context.Background(), req.Task); err != nil && !errors.Is(err, ErrBusy) {
			slog.Error("task run failed", "device", engine.Name(), "error", err)
		}
	}()
	writeJSON(w, map[string]string{"status": "started", "device": engine.Name()})
}

func (s *APIServer) handleAbort(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Device string `json:"device"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	engine, err := s.resolveEngine(req.Device)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	engine.Abort()
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]EngineStatus, 0, len(s.engines))
	for _, e := range s.engines {
		statuses = append(statuses, e.Status())
	}
	writeJSON(w, statuses)
}

func (s *APIServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "task history not available", http.StatusServiceUnavailable)
		return
	}
	engine, err := s.resolveEngine(r.URL.Query().Get("device"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.history.ListTasks(r.Context(), engine.Device().Serial(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

// handleEvents streams the engine's event surface as server-sent events
// until the client disconnects.
func (s *APIServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	engine, err := s.resolveEngine(r.URL.Query().Get("device"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	events, cancel := engine.Events().Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprint(w, ev.SSE())
			flusher.Flush()
		}
	}
}

// ── Dual-model API ─────────────────────────────────────────────

func (s *APIServer) resolveOrchestrator(name string) (*dualmodel.Orchestrator, error) {
	engine, err := s.resolveEngine(name)
	if err != nil {
		return nil, err
	}
	orch := engine.Orchestrator()
	if orch == nil {
		return nil, fmt.Errorf("decision model not configured")
	}
	return orch, nil
}

func (s *APIServer) handleDualAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Device string `json:"device"`
		Task   string `json:"task"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Task == "" {
		http.Error(w, "task is required", http.StatusBadRequest)
		return
	}
	orch, err := s.resolveOrchestrator(req.Device)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	plan := orch.AnalyzeTask(r.Context(), req.Task)
	writeJSON(w, map[string]any{
		"summary":           plan.Summary,
		"steps":             plan.Steps,
		"estimated_actions": plan.EstimatedActions,
	})
}

func (s *APIServer) handleDualDecide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Device  string `json:"device"`
		Screen  string `json:"screen"`
		Context string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Screen == "" {
		http.Error(w, "screen is required", http.StatusBadRequest)
		return
	}
	orch, err := s.resolveOrchestrator(req.Device)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	decision, err := orch.MakeDecision(r.Context(), req.Screen, req.Context)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"action":    decision.Action,
		"target":    decision.Target,
		"reasoning": decision.Reasoning,
		"content":   decision.Content,
		"finished":  decision.Finished,
	})
}

func (s *APIServer) handleDualGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Device       string `json:"device"`
		ContentType  string `json:"content_type"`
		Context      string `json:"context"`
		Requirements string `json:"requirements"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ContentType == "" {
		http.Error(w, "content_type is required", http.StatusBadRequest)
		return
	}
	orch, err := s.resolveOrchestrator(req.Device)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	content, err := orch.GenerateContent(r.Context(), req.ContentType, req.Context, req.Requirements)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"content": content})
}

func (s *APIServer) handleDualReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Device string `json:"device"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	orch, err := s.resolveOrchestrator(req.Device)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	orch.Reset()
	writeJSON(w, map[string]string{"status": "ok"})
}

// ── Cron API ───────────────────────────────────────────────────

// CronAddRequest is the JSON body for POST /cron/add.
type CronAddRequest struct {
	Device      string `json:"device"`
	CronExpr    string `json:"cron_expr"`
	Task        string `json:"task"`
	Description string `json:"description"`
}

func (s *APIServer) handleCronAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	if s.cron == nil {
		http.Error(w, "cron scheduler not available", http.StatusServiceUnavailable)
		return
	}

	var req CronAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.CronExpr == "" || req.Task == "" {
		http.Error(w, "cron_expr and task are required", http.StatusBadRequest)
		return
	}

	engine, err := s.resolveEngine(req.Device)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	job := &CronJob{
		ID:          GenerateCronID(),
		Device:      engine.Name(),
		CronExpr:    req.CronExpr,
		Task:        req.Task,
		Description: req.Description,
		Enabled:     true,
	}
	job.CreatedAt = time.Now()

	if err := s.cron.AddJob(job); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, job)
}

func (s *APIServer) handleCronList(w http.ResponseWriter, r *http.Request) {
	if s.cron == nil {
		http.Error(w, "cron scheduler not available", http.StatusServiceUnavailable)
		return
	}

	device := r.URL.Query().Get("device")
	var jobs []*CronJob
	if device != "" {
		jobs = s.cron.Store().ListByDevice(device)
	} else {
		jobs = s.cron.Store().List()
	}

	writeJSON(w, jobs)
}

func (s *APIServer) handleCronDel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	if s.cron == nil {
		http.Error(w, "cron scheduler not available", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	if s.cron.RemoveJob(req.ID) {
		writeJSON(w, map[string]string{"status": "ok"})
	} else {
		http.Error(w, fmt.Sprintf("job %q not found", req.ID), http.StatusNotFound)
	}
}
