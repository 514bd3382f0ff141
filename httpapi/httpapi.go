// Package httpapi is the HTTP/SSE facade (spec.md §4.12): every route a
// browser dashboard or popup needs, mounted on a stdlib net/http
// ServeMux using Go 1.22 method patterns, grounded in
// loppo-llc-kojo/internal/server/server.go's route-table and JSON-helper
// idiom.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"dmux/action"
	"dmux/config"
	"dmux/hooks"
	"dmux/lifecycle"
	"dmux/logsvc"
	"dmux/merge"
	"dmux/store"
	"dmux/termstream"
	"dmux/tmux"
)

// Facade wires every dependency a route handler touches. It is
// constructed once in main and mounted behind the CORS middleware.
type Facade struct {
	Store       *store.Store
	Tmux        *tmux.Adapter
	Hub         *termstream.Hub
	Dispatcher  *action.Dispatcher
	Lifecycle   *lifecycle.Controller
	MergeEngine *merge.Session
	Hooks       *hooks.Runner
	Ring        *logsvc.Ring
	Toasts      *logsvc.ToastQueue
	ProjectRoot string
	ProjectName string

	mux *http.ServeMux
}

// New builds the route table. Handler() returns the CORS-wrapped result.
func New(f *Facade) *Facade {
	f.mux = http.NewServeMux()

	f.mux.HandleFunc("GET /api/health", f.handleHealth)
	f.mux.HandleFunc("GET /api/session", f.handleSession)

	f.mux.HandleFunc("GET /api/panes", f.handleListPanes)
	f.mux.HandleFunc("POST /api/panes", f.handleCreatePane)
	f.mux.HandleFunc("GET /api/panes/{id}", f.handleGetPane)
	f.mux.HandleFunc("GET /api/panes/{id}/snapshot", f.handleSnapshot)
	f.mux.HandleFunc("PUT /api/panes/{id}/test", f.handlePutTestStatus)
	f.mux.HandleFunc("PUT /api/panes/{id}/dev", f.handlePutDevStatus)

	f.mux.HandleFunc("GET /api/stream/{id}", f.handleStream)
	f.mux.HandleFunc("GET /api/stream-stats", f.handleStreamStats)
	f.mux.HandleFunc("POST /api/keys/{id}", f.handlePostKeys)

	f.mux.HandleFunc("GET /api/actions", f.handleListAllActions)
	f.mux.HandleFunc("GET /api/panes/{id}/actions", f.handlePaneActions)
	f.mux.HandleFunc("POST /api/panes/{paneId}/actions/{actionId}", f.handleInvokeAction)

	f.mux.HandleFunc("POST /api/callbacks/confirm/{id}", f.handleConfirmCallback)
	f.mux.HandleFunc("POST /api/callbacks/choice/{id}", f.handleChoiceCallback)
	f.mux.HandleFunc("POST /api/callbacks/input/{id}", f.handleInputCallback)

	f.mux.HandleFunc("GET /api/settings", f.handleGetSettings)
	f.mux.HandleFunc("PATCH /api/settings", f.handlePatchSettings)
	f.mux.HandleFunc("GET /api/hooks", f.handleListHooks)
	f.mux.HandleFunc("GET /api/logs", f.handleGetLogs)
	f.mux.HandleFunc("POST /api/logs/mark-read", f.handleMarkLogsRead)

	return f
}

// Handler returns the mux wrapped in the CORS middleware spec.md §4.12
// requires ("admits *", "OPTIONS returns 204").
func (f *Facade) Handler() http.Handler {
	return withCORS(f.mux)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// --- health / session ---

func (f *Facade) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now().UnixMilli()})
}

func (f *Facade) handleSession(w http.ResponseWriter, r *http.Request) {
	snap := f.Store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"projectName": snap.ProjectName,
		"projectRoot": snap.ProjectRoot,
		"serverPort":  snap.ServerPort,
		"settings":    snap.Settings,
		"paneCount":   len(snap.Panes),
	})
}

// --- panes ---

func (f *Facade) findPane(id string) (store.Pane, bool) {
	for _, p := range f.Store.Snapshot().Panes {
		if p.ID == id {
			return p, true
		}
	}
	return store.Pane{}, false
}

func (f *Facade) handleListPanes(w http.ResponseWriter, r *http.Request) {
	snap := f.Store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"panes":       snap.Panes,
		"projectName": snap.ProjectName,
		"sessionName": f.Tmux.SessionName,
		"timestamp":   time.Now().UnixMilli(),
	})
}

type createPaneRequest struct {
	Prompt string      `json:"prompt"`
	Agent  store.Agent `json:"agent,omitempty"`
}

func (f *Facade) handleCreatePane(w http.ResponseWriter, r *http.Request) {
	var req createPaneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap := f.Store.Snapshot()
	result, err := f.Lifecycle.Create(r.Context(), lifecycle.CreateInput{
		Prompt:        req.Prompt,
		Agent:         req.Agent,
		ProjectName:   snap.ProjectName,
		ControlPaneID: snap.ControlPaneID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result.NeedsAgentChoice {
		writeJSON(w, http.StatusOK, map[string]any{"needsAgentChoice": true, "availableAgents": result.AvailableAgents})
		return
	}

	if err := f.persistAddPane(result.Pane); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("pane created but not persisted: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "pane": result.Pane})
}

func (f *Facade) handleGetPane(w http.ResponseWriter, r *http.Request) {
	pane, ok := f.findPane(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "pane not found")
		return
	}
	writeJSON(w, http.StatusOK, pane)
}

func (f *Facade) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	pane, ok := f.findPane(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "pane not found")
		return
	}
	content, err := f.Tmux.CapturePane(r.Context(), pane.TmuxPaneID, -1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	row, col, _ := f.Tmux.CursorPosition(r.Context(), pane.TmuxPaneID)
	width, height, _ := f.Tmux.Geometry(r.Context(), pane.TmuxPaneID)
	writeJSON(w, http.StatusOK, map[string]any{
		"width": width, "height": height, "content": content, "cursorRow": row, "cursorCol": col,
	})
}

type testStatusRequest struct {
	Status store.TestStatus `json:"status"`
}

func (f *Facade) handlePutTestStatus(w http.ResponseWriter, r *http.Request) {
	var req testStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := f.updatePane(r.PathValue("id"), func(p *store.Pane) { p.TestStatus = req.Status }); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type devStatusRequest struct {
	Status store.DevStatus `json:"status"`
	URL    string          `json:"url,omitempty"`
}

func (f *Facade) handlePutDevStatus(w http.ResponseWriter, r *http.Request) {
	var req devStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := f.updatePane(r.PathValue("id"), func(p *store.Pane) {
		p.DevStatus = req.Status
		if req.URL != "" {
			p.DevURL = req.URL
		}
	}); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- streaming ---

func (f *Facade) handleStream(w http.ResponseWriter, r *http.Request) {
	pane, ok := f.findPane(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "pane not found")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	ch, unsubscribe := f.Hub.Subscribe(r.Context(), pane.TmuxPaneID)
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "%s:%s\n", msg.Type, msg.Payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (f *Facade) handleStreamStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, f.Hub.GetStats())
}

// --- keys ---

type keyRequest struct {
	Key      string `json:"key"`
	CtrlKey  bool   `json:"ctrlKey,omitempty"`
	AltKey   bool   `json:"altKey,omitempty"`
	ShiftKey bool   `json:"shiftKey,omitempty"`
	MetaKey  bool   `json:"metaKey,omitempty"`
}

func (f *Facade) handlePostKeys(w http.ResponseWriter, r *http.Request) {
	pane, ok := f.findPane(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "pane not found")
		return
	}
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Special case: Shift+Enter has no plain tmux send-keys token; encode
	// it as the raw CSI sequence and deliver it through a paste buffer so
	// it reaches the pane as one keystroke (spec.md §4.12).
	if req.Key == "Enter" && req.ShiftKey {
		if err := f.pasteLiteral(r.Context(), pane.TmuxPaneID, "\x1b[13;2~"); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	token, literal, err := tmux.TranslateKey(req.Key)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if literal {
		err = f.Tmux.SendLiteral(r.Context(), pane.TmuxPaneID, token)
	} else {
		err = f.Tmux.SendKeys(r.Context(), pane.TmuxPaneID, withModifiers(token, req))
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// withModifiers prefixes a named tmux key token with C-/M- when the event
// carried ctrl/alt, the same way tmux's own send-keys modifier syntax
// works (tmux has no separate shift modifier for named keys).
func withModifiers(token string, req keyRequest) string {
	if req.CtrlKey {
		token = "C-" + token
	}
	if req.AltKey {
		token = "M-" + token
	}
	return token
}

// pasteLiteral writes text to a temp file, loads it into a scratch tmux
// buffer, pastes it into paneID, and deletes the buffer — the same
// primary-path large-payload technique the lifecycle controller's
// prompt handoff uses, generalized to arbitrary escape sequences.
func (f *Facade) pasteLiteral(ctx context.Context, paneID, text string) error {
	tmp, err := os.CreateTemp("", "dmux-key-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	bufferName := "dmux-key-" + filepath.Base(tmp.Name())
	if err := f.Tmux.LoadBuffer(ctx, bufferName, tmp.Name()); err != nil {
		return err
	}
	defer f.Tmux.DeleteBuffer(ctx, bufferName)
	return f.Tmux.PasteBuffer(ctx, bufferName, paneID)
}

// --- actions ---

func (f *Facade) handleListAllActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"actions": []action.ID{
		action.ActionMerge, action.ActionClose, action.ActionRename, action.ActionDuplicate,
		action.ActionOpenInEditor, action.ActionCopyPath, action.ActionToggleAutopilot,
	}})
}

func (f *Facade) handlePaneActions(w http.ResponseWriter, r *http.Request) {
	pane, ok := f.findPane(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "pane not found")
		return
	}
	ids := action.GetAvailableActions(pane, f.Store.Snapshot().Settings)
	writeJSON(w, http.StatusOK, map[string]any{"actions": ids})
}

func (f *Facade) handleInvokeAction(w http.ResponseWriter, r *http.Request) {
	pane, ok := f.findPane(r.PathValue("paneId"))
	if !ok {
		writeError(w, http.StatusNotFound, "pane not found")
		return
	}
	id := action.ID(r.PathValue("actionId"))
	result, err := f.Dispatcher.Invoke(r.Context(), pane, id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, encodeResult(f.Dispatcher.Callbacks, result))
}

func (f *Facade) handleConfirmCallback(w http.ResponseWriter, r *http.Request) {
	result, ok := f.Dispatcher.Callbacks.Resolve(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusGone, "callback expired or already resolved")
		return
	}
	var req struct {
		Confirm bool `json:"confirm"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	var next action.Result
	var err error
	if req.Confirm {
		if result.OnConfirm != nil {
			next, err = result.OnConfirm(r.Context())
		}
	} else if result.OnCancel != nil {
		next, err = result.OnCancel(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, encodeResult(f.Dispatcher.Callbacks, next))
}

func (f *Facade) handleChoiceCallback(w http.ResponseWriter, r *http.Request) {
	result, ok := f.Dispatcher.Callbacks.Resolve(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusGone, "callback expired or already resolved")
		return
	}
	var req struct {
		OptionID string `json:"optionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if result.OnSelect == nil {
		writeError(w, http.StatusBadRequest, "callback has no selection handler")
		return
	}
	next, err := result.OnSelect(r.Context(), req.OptionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, encodeResult(f.Dispatcher.Callbacks, next))
}

func (f *Facade) handleInputCallback(w http.ResponseWriter, r *http.Request) {
	result, ok := f.Dispatcher.Callbacks.Resolve(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusGone, "callback expired or already resolved")
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if result.OnSubmit == nil {
		writeError(w, http.StatusBadRequest, "callback has no submit handler")
		return
	}
	next, err := result.OnSubmit(r.Context(), req.Value)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, encodeResult(f.Dispatcher.Callbacks, next))
}

// encodedResult is the JSON shape of an action.Result: callbacks become a
// banked callbackId rather than a function value.
type encodedResult struct {
	Kind         string          `json:"kind"`
	Message      string          `json:"message,omitempty"`
	TargetPaneID string          `json:"targetPaneId,omitempty"`
	Dismissable  bool            `json:"dismissable,omitempty"`
	Title        string          `json:"title,omitempty"`
	ConfirmLabel string          `json:"confirmLabel,omitempty"`
	CancelLabel  string          `json:"cancelLabel,omitempty"`
	Options      []action.Option `json:"options,omitempty"`
	Placeholder  string          `json:"placeholder,omitempty"`
	DefaultValue string          `json:"defaultValue,omitempty"`
	TimeoutMs    int             `json:"timeoutMs,omitempty"`
	CallbackID   string          `json:"callbackId,omitempty"`
}

func encodeResult(registry *action.CallbackRegistry, result action.Result) encodedResult {
	out := encodedResult{
		Kind: result.Kind.String(), Message: result.Message, TargetPaneID: result.TargetPaneID,
		Dismissable: result.Dismissable, Title: result.Title, ConfirmLabel: result.ConfirmLabel,
		CancelLabel: result.CancelLabel, Options: result.Options, Placeholder: result.Placeholder,
		DefaultValue: result.DefaultValue, TimeoutMs: result.TimeoutMs,
	}
	if result.OnConfirm != nil || result.OnCancel != nil || result.OnSelect != nil || result.OnSubmit != nil {
		out.CallbackID = registry.Bank(result)
	}
	return out
}

// --- settings / hooks / logs ---

func (f *Facade) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, f.Store.Snapshot().Settings)
}

func (f *Facade) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch config.Settings
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	merged := f.Store.Snapshot().Settings.Merge(patch)
	if err := merged.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := config.SaveProjectSettings(f.ProjectRoot, merged); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	f.Store.UpdateSettings(merged)
	writeJSON(w, http.StatusOK, merged)
}

func (f *Facade) handleListHooks(w http.ResponseWriter, r *http.Request) {
	names := []hooks.Name{hooks.PreCreate, hooks.PreMerge, hooks.PostMerge, hooks.PrePR, hooks.PostClose}
	type hookStatus struct {
		Name       string `json:"name"`
		Path       string `json:"path,omitempty"`
		Found      bool   `json:"found"`
		Executable bool   `json:"executable"`
	}
	out := make([]hookStatus, 0, len(names))
	for _, n := range names {
		path, found, notExec := f.Hooks.Resolve(n)
		out = append(out, hookStatus{Name: string(n), Path: path, Found: found, Executable: found && !notExec})
	}
	writeJSON(w, http.StatusOK, map[string]any{"hooks": out})
}

func (f *Facade) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	q := logsvc.Query{
		Level:      logsvc.Level(r.URL.Query().Get("level")),
		Source:     r.URL.Query().Get("source"),
		PaneID:     r.URL.Query().Get("paneId"),
		UnreadOnly: r.URL.Query().Get("unreadOnly") == "true",
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": f.Ring.Query(q), "unread": f.Ring.UnreadCounts()})
}

func (f *Facade) handleMarkLogsRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID    int64        `json:"id,omitempty"`
		Level logsvc.Level `json:"level,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Level != "" {
		f.Ring.MarkLevelAsRead(req.Level)
	} else {
		f.Ring.MarkAsRead(req.ID)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- store persistence helpers (the facade is one of the "other writers"
// store.UpdatePanes's doc comment describes: it persists to disk and relies
// on the config watcher's re-read to update the in-memory snapshot) ---

func (f *Facade) persistAddPane(pane store.Pane) error {
	path := store.ConfigFilePath(f.ProjectRoot)
	pf, err := store.ReadPaneFile(path)
	if err != nil {
		return err
	}
	pf.Panes = append(pf.Panes, pane)
	return store.WriteLocked(path, pf, time.Now())
}

func (f *Facade) updatePane(id string, mutate func(p *store.Pane)) error {
	path := store.ConfigFilePath(f.ProjectRoot)
	pf, err := store.ReadPaneFile(path)
	if err != nil {
		return err
	}
	found := false
	for i := range pf.Panes {
		if pf.Panes[i].ID == id {
			mutate(&pf.Panes[i])
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("pane %s not found", id)
	}
	return store.WriteLocked(path, pf, time.Now())
}
