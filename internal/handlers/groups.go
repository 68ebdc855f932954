package handlers

import (
	"log/slog"
	"net/http"

	"taskhub/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type GroupHandler struct {
	groups services.GroupService
	log    *slog.Logger
}

func NewGroupHandler(groups services.GroupService, log *slog.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, log: log}
}

func (h *GroupHandler) CreateGroup(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var req services.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	group, err := h.groups.Create(c.Request.Context(), caller, req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *GroupHandler) ListGroups(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	groups, err := h.groups.ListForCaller(c.Request.Context(), caller)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (h *GroupHandler) ListInvitations(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	invitations, err := h.groups.PendingInvitations(c.Request.Context(), caller)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, invitations)
}

func (h *GroupHandler) AcceptInvitation(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	membershipID, ok := paramID(c, "membershipId")
	if !ok {
		return
	}

	member, err := h.groups.AcceptInvitation(c.Request.Context(), caller, membershipID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Invitation accepted", "membership": member})
}

func (h *GroupHandler) GetGroup(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	groupID, ok := paramID(c, "groupId")
	if !ok {
		return
	}

	group, err := h.groups.Get(c.Request.Context(), caller, groupID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, group)
}
