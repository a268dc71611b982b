package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"BrowserPerfTraceKit/internal/database"
	"BrowserPerfTraceKit/internal/logger"
	"BrowserPerfTraceKit/internal/perfsession"
)

// APIResponse 统一响应结构
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// OperationResult 单次跟踪操作的结果载荷。操作层的所有失败都已经
// 折叠进lines，HTTP层永远返回200。
type OperationResult struct {
	Lines []string `json:"lines"`
	Text  string   `json:"text"`
}

// TraceHandlers 跟踪会话操作的HTTP处理器集合
type TraceHandlers struct {
	controller *perfsession.Controller
	archive    *database.TraceArchive
	logs       *logger.LogStream
	startTime  time.Time
}

// NewTraceHandlers 创建处理器集合，archive与logs可为nil（对应能力未启用）
func NewTraceHandlers(controller *perfsession.Controller, archive *database.TraceArchive, logs *logger.LogStream) *TraceHandlers {
	return &TraceHandlers{
		controller: controller,
		archive:    archive,
		logs:       logs,
		startTime:  time.Now(),
	}
}

// RegisterRoutes 挂载全部操作路由
func (h *TraceHandlers) RegisterRoutes(api *mux.Router) {
	api.HandleFunc("/recording/start", h.StartRecording).Methods("POST")
	api.HandleFunc("/recording/stop", h.StopRecording).Methods("POST")

	api.HandleFunc("/trace/main-thread", h.MainThreadSummary).Methods("GET")
	api.HandleFunc("/trace/network", h.NetworkSummary).Methods("GET")
	api.HandleFunc("/trace/events/{key}", h.EventByKey).Methods("GET")
	api.HandleFunc("/trace/events/{key}/call-tree", h.CallTree).Methods("GET")
	api.HandleFunc("/trace/insights/{name}", h.AnalyzeInsight).Methods("GET")

	api.HandleFunc("/archive/traces", h.ListArchivedTraces).Methods("GET")

	api.HandleFunc("/status", h.Status).Methods("GET")
	api.HandleFunc("/health", h.Health).Methods("GET")

	if h.logs != nil {
		api.HandleFunc("/logs/stream", h.logs.HandleWebSocket)
	}
}

// startRequest 开始录制的请求体
type startRequest struct {
	Reload   bool `json:"reload"`
	AutoStop bool `json:"auto_stop"`
}

// StartRecording POST /recording/start
func (h *TraceHandlers) StartRecording(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
			return
		}
	}

	resp := h.controller.Start(r.Context(), req.Reload, req.AutoStop)
	h.streamLines("recording", resp)
	writeOperation(w, resp)
}

// StopRecording POST /recording/stop
func (h *TraceHandlers) StopRecording(w http.ResponseWriter, r *http.Request) {
	resp := h.controller.Stop(r.Context())
	h.streamLines("recording", resp)
	writeOperation(w, resp)
}

// streamLines 把操作结果行推送到日志流（若启用）
func (h *TraceHandlers) streamLines(module string, resp *perfsession.Response) {
	if h.logs == nil {
		return
	}
	for _, line := range resp.Lines() {
		h.logs.Info(module, line, nil)
	}
}

// MainThreadSummary GET /trace/main-thread?min=&max=
func (h *TraceHandlers) MainThreadSummary(w http.ResponseWriter, r *http.Request) {
	min, max, ok := parseBoundsParams(w, r)
	if !ok {
		return
	}
	writeOperation(w, h.controller.MainThreadSummary(min, max))
}

// NetworkSummary GET /trace/network?min=&max=
func (h *TraceHandlers) NetworkSummary(w http.ResponseWriter, r *http.Request) {
	min, max, ok := parseBoundsParams(w, r)
	if !ok {
		return
	}
	writeOperation(w, h.controller.NetworkSummary(min, max))
}

// EventByKey GET /trace/events/{key}
func (h *TraceHandlers) EventByKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	writeOperation(w, h.controller.EventByKey(key))
}

// CallTree GET /trace/events/{key}/call-tree
func (h *TraceHandlers) CallTree(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	writeOperation(w, h.controller.CallTree(key))
}

// AnalyzeInsight GET /trace/insights/{name}
func (h *TraceHandlers) AnalyzeInsight(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	writeOperation(w, h.controller.AnalyzeInsight(name))
}

// ListArchivedTraces GET /archive/traces?limit=
func (h *TraceHandlers) ListArchivedTraces(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive_disabled", "Trace archive is not enabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	traces, err := h.archive.ListTraces(ctx, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "archive_query_failed", err.Error())
		return
	}
	writeSuccess(w, traces)
}

// Status GET /status
func (h *TraceHandlers) Status(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, map[string]interface{}{
		"state":          h.controller.State().String(),
		"trace_count":    h.controller.History().Len(),
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

// Health GET /health
func (h *TraceHandlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UnixMilli(),
	}
	if h.archive != nil {
		if err := h.archive.Ping(r.Context()); err != nil {
			health["status"] = "degraded"
			health["archive_error"] = err.Error()
		}
	}
	writeSuccess(w, health)
}

// parseBoundsParams 解析可选的min/max边界参数，缺省为0（由边界解析器处理）
func parseBoundsParams(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	parse := func(name string) (int64, bool) {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return 0, true
		}
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_bounds",
				name+" must be an integer timestamp in microseconds")
			return 0, false
		}
		return value, true
	}

	min, ok := parse("min")
	if !ok {
		return 0, 0, false
	}
	max, ok := parse("max")
	if !ok {
		return 0, 0, false
	}
	return min, max, true
}

// writeOperation 操作结果以文本行形式返回，状态码恒为200
func writeOperation(w http.ResponseWriter, resp *perfsession.Response) {
	writeSuccess(w, OperationResult{
		Lines: resp.Lines(),
		Text:  resp.Text(),
	})
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, APIResponse{
		Success:   false,
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UnixMilli(),
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
