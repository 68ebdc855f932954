package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"taskhub/backend/internal/services"

	"github.com/gin-gonic/gin"
)

// multipart framing allowance on top of the file size limit
const formOverhead = 1 << 20

type TaskHandler struct {
	tasks          services.TaskService
	maxUploadBytes int64
	log            *slog.Logger
}

func NewTaskHandler(tasks services.TaskService, maxUploadBytes int64, log *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, maxUploadBytes: maxUploadBytes, log: log}
}

// GetTasks lists the caller's personal tasks. With ?page it answers a page
// envelope instead of a bare array.
func (h *TaskHandler) GetTasks(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	pageParam := c.Query("page")
	if pageParam == "" {
		tasks, err := h.tasks.ListPersonal(c.Request.Context(), caller)
		if err != nil {
			writeError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, tasks)
		return
	}

	page, err := strconv.Atoi(pageParam)
	if err != nil {
		badRequest(c, "page must be a number")
		return
	}
	pageSize := services.DefaultPageSize
	if raw := c.Query("pageSize"); raw != "" {
		if pageSize, err = strconv.Atoi(raw); err != nil {
			badRequest(c, "pageSize must be a number")
			return
		}
	}

	result, err := h.tasks.ListPersonalPage(c.Request.Context(), caller, page, pageSize)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var input services.TaskInput
	if err := c.ShouldBind(&input); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	task, err := h.tasks.Create(c.Request.Context(), caller, input)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var patch services.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	task, err := h.tasks.Update(c.Request.Context(), caller, id, patch)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// DeleteTask answers 204 whether or not a task matched.
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if _, err := h.tasks.Delete(c.Request.Context(), caller, id); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) UploadFile(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+formOverhead)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large", "message": "Uploaded file is too large"})
			return
		}
		badRequest(c, "No file was uploaded")
		return
	}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large", "message": "Uploaded file is too large"})
		return
	}

	file, err := header.Open()
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	defer file.Close()

	attachment, err := h.tasks.AttachFile(c.Request.Context(), caller, id, services.FileUpload{
		Reader:      file,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":          "File uploaded successfully",
		"fileUrl":          attachment.URL,
		"originalFilename": attachment.OriginalFilename,
		"mimeType":         attachment.MimeType,
	})
}

func (h *TaskHandler) GetGroupTasks(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	groupID, ok := paramID(c, "groupId")
	if !ok {
		return
	}

	tasks, err := h.tasks.ListGroupTasks(c.Request.Context(), caller, groupID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *TaskHandler) CreateGroupTask(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	groupID, ok := paramID(c, "groupId")
	if !ok {
		return
	}

	var input services.TaskInput
	if err := c.ShouldBind(&input); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	task, err := h.tasks.CreateGroupTask(c.Request.Context(), caller, groupID, input)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}
