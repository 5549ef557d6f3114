package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/foreman-hq/foreman/internal/hierarchy"
	"github.com/foreman-hq/foreman/internal/state"
	"github.com/foreman-hq/foreman/internal/supervisor"
)

// Handlers wires HTTP requests to supervisor operations.
type Handlers struct {
	sup    *supervisor.Supervisor
	store  *state.Store
	prefix string
}

// NewHandlers returns Handlers bound to sup. prefix is the configured
// session prefix, used to resolve user-facing short IDs. store serves
// the project-list endpoints directly, since projects are not part of
// the supervisor's per-tick agent view.
func NewHandlers(sup *supervisor.Supervisor, store *state.Store, prefix string) *Handlers {
	return &Handlers{sup: sup, store: store, prefix: prefix}
}

// parseIntOrZero parses s as a base-10 int, returning 0 on failure —
// used for path parameters where a bad ID should simply miss a lookup,
// not crash the handler.
func parseIntOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// agentInfo is the AgentInfo response shape from spec §4.7.
type agentInfo struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Health     string `json:"health"`
	LastOutput string `json:"last_output"`
}

func toAgentInfo(a supervisor.Agent, prefix string) agentInfo {
	return agentInfo{
		ID:         hierarchy.ShortName(a.SessionName, prefix),
		Status:     "running",
		Health:     a.Health.String(),
		LastOutput: a.LastOutput,
	}
}

// GetHealth handles GET /api/health.
func (h *Handlers) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
}

// ListAgents handles GET /api/agents: refreshes, then returns every
// owned non-root agent plus the root as "manager".
func (h *Handlers) ListAgents(c *gin.Context) {
	if err := h.sup.Refresh(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var agents []agentInfo
	var manager *agentInfo
	for _, a := range h.sup.Agents() {
		info := toAgentInfo(a, h.prefix)
		if a.Role == supervisor.RoleRoot {
			manager = &info
			continue
		}
		agents = append(agents, info)
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents, "manager": manager})
}

// GetAgent handles GET /api/agents/{id}.
func (h *Handlers) GetAgent(c *gin.Context) {
	agent, ok := h.sup.Find(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	tail, _ := h.sup.OutputTail(agent.SessionName, 50) // best-effort: empty on capture failure
	info := toAgentInfo(agent, h.prefix)
	c.JSON(http.StatusOK, gin.H{
		"id": info.ID, "status": info.Status, "health": info.Health,
		"last_output": info.LastOutput, "output_tail": tail,
	})
}

// CreateAgent handles POST /api/agents.
func (h *Handlers) CreateAgent(c *gin.Context) {
	var body struct {
		Name    string `json:"name"`
		Task    string `json:"task"`
		Workdir string `json:"workdir"`
		Command string `json:"command"`
		Role    string `json:"role"`
		Parent  string `json:"parent"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.sup.Spawn(supervisor.SpawnRequest{
		Name:    body.Name,
		Command: body.Command,
		Workdir: body.Workdir,
		Task:    body.Task,
		Role:    supervisor.Role(body.Role),
		Parent:  body.Parent,
	})
	if err != nil {
		if errors.Is(err, supervisor.ErrNameConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      hierarchy.ShortName(res.SessionName, h.prefix),
		"status":  "running",
		"session": res.SessionName,
	})
}

// DeleteAgent handles DELETE /api/agents/{id}.
func (h *Handlers) DeleteAgent(c *gin.Context) {
	err := h.sup.Kill(c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "killed"})
	case errors.Is(err, supervisor.ErrRootProtected):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, supervisor.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// SendAgentInput handles POST /api/agents/{id}/send.
func (h *Handlers) SendAgentInput(c *gin.Context) {
	var body struct {
		Text  string `json:"text"`
		Enter bool   `json:"enter"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.sup.SendInput(c.Param("id"), body.Text, body.Enter)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "sent"})
	case errors.Is(err, supervisor.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ListProjects handles GET /api/projects.
func (h *Handlers) ListProjects(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"projects": h.store.LoadProjects()})
}

// CreateProject handles POST /api/projects.
func (h *Handlers) CreateProject(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.store.AddProject(body.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "name": body.Name})
}

// DeleteProject handles DELETE /api/projects/{id}.
func (h *Handlers) DeleteProject(c *gin.Context) {
	id := parseIntOrZero(c.Param("id"))
	found, err := h.store.RemoveProject(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}
