package handlers

import (
	"log/slog"
	"net/http"

	"taskhub/backend/internal/services"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves the /admin routes. Unlike the self-service task routes,
// a miss on update or delete is a 404.
type AdminHandler struct {
	auth   services.AuthService
	tasks  services.TaskService
	groups services.GroupService
	log    *slog.Logger
}

func NewAdminHandler(auth services.AuthService, tasks services.TaskService, groups services.GroupService, log *slog.Logger) *AdminHandler {
	return &AdminHandler{auth: auth, tasks: tasks, groups: groups, log: log}
}

type adminTaskUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Done        *bool   `json:"done"`
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	users, err := h.auth.ListUsers(c.Request.Context(), caller)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *AdminHandler) ListUserTasks(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	userID, ok := paramID(c, "userId")
	if !ok {
		return
	}

	tasks, err := h.tasks.ListUserTasks(c.Request.Context(), caller, userID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *AdminHandler) ListGroups(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	groups, err := h.groups.ListAll(c.Request.Context(), caller)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (h *AdminHandler) ListGroupTasks(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	groupID, ok := paramID(c, "groupId")
	if !ok {
		return
	}

	tasks, err := h.tasks.ListAnyGroupTasks(c.Request.Context(), caller, groupID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *AdminHandler) UpdateTask(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req adminTaskUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	task, err := h.tasks.Update(c.Request.Context(), caller, id, services.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
		Done:        req.Done,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *AdminHandler) DeleteTask(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	deleted, err := h.tasks.Delete(c.Request.Context(), caller, id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if !deleted {
		writeError(c, h.log, services.ErrTaskNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}
