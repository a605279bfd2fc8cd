package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clearmesh/agentgate/core"
	"github.com/clearmesh/agentgate/ports"
	"github.com/clearmesh/agentgate/service"

	"github.com/google/uuid"
)

// RPC method names.
const (
	MethodExecute       = "skills/execute"
	MethodExecuteStream = "skills/executeStream"
	MethodTaskGet       = "tasks/get"
	MethodTaskList      = "tasks/list"
	MethodTaskCancel    = "tasks/cancel"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// RPCHandlers serves the JSON-RPC operations and the SSE streaming variant.
type RPCHandlers struct {
	tasks    *service.TaskService
	executor ports.SkillExecutor
	logger   *slog.Logger
}

// NewRPCHandlers creates the protocol handlers.
func NewRPCHandlers(tasks *service.TaskService, executor ports.SkillExecutor, logger *slog.Logger) *RPCHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCHandlers{tasks: tasks, executor: executor, logger: logger}
}

// Dispatch is the single RPC endpoint. Streaming requests switch the
// response over to server-sent events; everything else answers with one
// envelope.
func (h *RPCHandlers) Dispatch(c *gin.Context) {
	var req RPCRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusOK, rpcError(nil, CodeParseError, "parse error"))
		return
	}
	if req.Method == "" {
		c.JSON(http.StatusOK, rpcError(req.ID, CodeInvalidRequest, "invalid request"))
		return
	}

	actx := accessFrom(c)
	switch req.Method {
	case MethodExecute:
		c.JSON(http.StatusOK, h.executeAndWait(c, actx, req))
	case MethodExecuteStream:
		h.executeAndStream(c, actx, req)
	case MethodTaskGet:
		c.JSON(http.StatusOK, h.fetchOne(c, actx, req))
	case MethodTaskList:
		c.JSON(http.StatusOK, h.listMine(c, actx, req))
	case MethodTaskCancel:
		c.JSON(http.StatusOK, h.cancelOne(c, actx, req))
	default:
		c.JSON(http.StatusOK, rpcError(req.ID, CodeMethodNotFound, "method not found"))
	}
}

type executeParams struct {
	SkillID string          `json:"skillId"`
	Input   json.RawMessage `json:"input"`
}

// checkExecute runs the shared execute preconditions in order, returning the
// owning session id (synthesized for anonymous callers) on success.
func (h *RPCHandlers) checkExecute(actx core.AccessContext, params executeParams) (string, error) {
	if params.SkillID == "" {
		return "", errInvalidParams
	}
	skill, ok := h.executor.Lookup(params.SkillID)
	if !ok {
		return "", core.ErrSkillNotFound
	}
	if skill.Access != core.AccessPublic && !actx.Authenticated {
		return "", core.ErrSessionRequired
	}
	if skill.Access == core.AccessRegistered && !actx.Registered {
		return "", core.ErrAccessDenied
	}
	sessionID := actx.SessionID
	if sessionID == "" {
		// Anonymous callers still get a retention class for their task.
		sessionID = core.AnonymousSessionPrefix + uuid.NewString()
	}
	return sessionID, nil
}

// runTask owns the whole task lifecycle for one invocation: pending, then
// working, then exactly one terminal state. observe is called after every
// stored transition with the current snapshot.
func (h *RPCHandlers) runTask(c *gin.Context, actx core.AccessContext, params executeParams, sessionID string, observe func(stage string, task *core.Task)) (*core.Task, error) {
	ctx := c.Request.Context()

	task, err := h.tasks.Create(ctx, params.SkillID, params.Input, sessionID)
	if err != nil {
		h.logger.Error("task create failed", "skill_id", params.SkillID, "error", err)
		return nil, err
	}
	observe("created", task)

	if t := h.tasks.UpdateStatus(ctx, task.ID, core.TaskWorking, nil, nil); t != nil {
		task = t
	}
	observe("status", task)

	output, execErr := h.executor.Execute(ctx, params.SkillID, params.Input, actx)
	if execErr != nil {
		h.logger.Warn("skill execution failed", "skill_id", params.SkillID, "task_id", task.ID, "error", execErr)
		if t := h.tasks.UpdateStatus(ctx, task.ID, core.TaskFailed, nil, &core.TaskError{
			Code:    CodeInternalError,
			Message: execErr.Error(),
		}); t != nil {
			task = t
		}
	} else {
		if t := h.tasks.UpdateStatus(ctx, task.ID, core.TaskCompleted, output, nil); t != nil {
			task = t
		}
	}
	observe("terminal", task)
	return task, nil
}

func (h *RPCHandlers) executeAndWait(c *gin.Context, actx core.AccessContext, req RPCRequest) RPCResponse {
	var params executeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcError(req.ID, CodeInvalidParams, "invalid params")
	}
	sessionID, err := h.checkExecute(actx, params)
	if err != nil {
		if err == errInvalidParams {
			return rpcError(req.ID, CodeInvalidParams, "skillId is required")
		}
		return rpcErrorFor(req.ID, err)
	}

	task, err := h.runTask(c, actx, params, sessionID, func(string, *core.Task) {})
	if err != nil {
		return rpcError(req.ID, CodeInternalError, "internal error")
	}
	return rpcResult(req.ID, task)
}

// executeAndStream emits the task lifecycle over server-sent events:
// task.created, task.status, then task.completed or task.failed, then done.
// A task cancelled mid-run ends with a final task.status carrying the
// cancelled snapshot instead of a completion event.
// The stream is single pass; a disconnected client re-invokes and gets a new
// task.
func (h *RPCHandlers) executeAndStream(c *gin.Context, actx core.AccessContext, req RPCRequest) {
	var params executeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		c.JSON(http.StatusOK, rpcError(req.ID, CodeInvalidParams, "invalid params"))
		return
	}
	sessionID, err := h.checkExecute(actx, params)
	if err != nil {
		if err == errInvalidParams {
			c.JSON(http.StatusOK, rpcError(req.ID, CodeInvalidParams, "skillId is required"))
			return
		}
		c.JSON(http.StatusOK, rpcErrorFor(req.ID, err))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	emit := func(event string, task *core.Task) {
		c.SSEvent(event, task)
		c.Writer.Flush()
	}

	_, err = h.runTask(c, actx, params, sessionID, func(stage string, task *core.Task) {
		switch stage {
		case "created":
			emit("task.created", task)
		case "status":
			emit("task.status", task)
		case "terminal":
			switch task.Status {
			case core.TaskCompleted:
				emit("task.completed", task)
			case core.TaskFailed:
				emit("task.failed", task)
			default:
				// A cancel raced the skill: the cancelled snapshot is
				// reported as a plain status update, not a completion.
				emit("task.status", task)
			}
		}
	})
	if err != nil {
		c.SSEvent("task.failed", gin.H{"error": "internal error"})
	}
	c.SSEvent("done", gin.H{})
	c.Writer.Flush()
}

func (h *RPCHandlers) fetchOne(c *gin.Context, actx core.AccessContext, req RPCRequest) RPCResponse {
	var params struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.TaskID == "" {
		return rpcError(req.ID, CodeInvalidParams, "taskId is required")
	}

	task := h.tasks.Get(c.Request.Context(), params.TaskID)
	if task == nil {
		return rpcError(req.ID, CodeTaskNotFound, "task not found")
	}
	// Exact session match, anonymous owners included.
	if task.SessionID != actx.SessionID {
		return rpcError(req.ID, CodeAccessDenied, "access denied")
	}
	return rpcResult(req.ID, task)
}

func (h *RPCHandlers) listMine(c *gin.Context, actx core.AccessContext, req RPCRequest) RPCResponse {
	if !actx.Authenticated {
		return rpcError(req.ID, CodeSessionRequired, "session required")
	}
	var params struct {
		Limit  int             `json:"limit"`
		Offset int             `json:"offset"`
		Status core.TaskStatus `json:"status"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return rpcError(req.ID, CodeInvalidParams, "invalid params")
		}
	}
	if params.Status != "" && !params.Status.Valid() {
		return rpcError(req.ID, CodeInvalidParams, "unknown status filter")
	}

	// Clamp at the protocol boundary; the store assumes sane inputs.
	limit := params.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	tasks, total := h.tasks.ListBySession(c.Request.Context(), actx.SessionID, service.ListOptions{
		Limit:  limit,
		Offset: offset,
		Status: params.Status,
	})
	return rpcResult(req.ID, gin.H{"tasks": tasks, "total": total})
}

func (h *RPCHandlers) cancelOne(c *gin.Context, actx core.AccessContext, req RPCRequest) RPCResponse {
	var params struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.TaskID == "" {
		return rpcError(req.ID, CodeInvalidParams, "taskId is required")
	}

	task, err := h.tasks.Cancel(c.Request.Context(), params.TaskID, actx.SessionID)
	if err != nil {
		return rpcErrorFor(req.ID, err)
	}
	return rpcResult(req.ID, task)
}
