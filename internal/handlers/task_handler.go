package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskboard-api/internal/apperr"
	"taskboard-api/internal/lifecycle"
	"taskboard-api/internal/models"
	"taskboard-api/internal/service"
	"taskboard-api/internal/store"
)

// maxBodyBytes bounds a task request body.
const maxBodyBytes = 1 << 20

type TaskHandler struct {
	tasks *service.TaskService
}

func NewTaskHandler(tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

/*
*
GetTasks handles GET /api/tasks
Returns all tasks newest first. Optional query params: assignee (user id) and status.
*/
func (h *TaskHandler) GetTasks(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}

	filter := store.TaskFilter{AssigneeID: c.Query("assignee")}
	if s := c.Query("status"); s != "" {
		status := models.TaskStatus(s)
		if !status.Valid() {
			respondError(c, apperr.New(apperr.InvalidArgument, "invalid status: "+s, nil))
			return
		}
		filter.Status = status
	}

	tasks, err := h.tasks.List(c.Request.Context(), who, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// GetTaskByID handles GET /api/tasks/:id
func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	task, err := h.tasks.Get(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

/*
*
CreateTask handles POST /api/tasks
Admin only. title, startDate, assignDate, expectedDeliveryDate and assignee are required.
*/
func (h *TaskHandler) CreateTask(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	p, ok := readPatch(c)
	if !ok {
		return
	}
	task, err := h.tasks.Create(c.Request.Context(), who, p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// UpdateTask handles PUT and PATCH /api/tasks/:id
// Members may only send note; anything else rejects the whole request.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	p, ok := readPatch(c)
	if !ok {
		return
	}
	task, err := h.tasks.Update(c.Request.Context(), who, c.Param("id"), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// DeleteTask handles DELETE /api/tasks/:id
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	if err := h.tasks.Delete(c.Request.Context(), who, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Task deleted successfully",
	})
}

// GetStats handles GET /api/stats/:userid
func (h *TaskHandler) GetStats(c *gin.Context) {
	if _, ok := caller(c); !ok {
		return
	}
	userID := c.Param("userid")
	counts, err := h.tasks.Stats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{
		"userId": userID,
		"counts": counts,
		"total":  total,
	})
}

func readPatch(c *gin.Context) (lifecycle.Patch, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, apperr.New(apperr.InvalidArgument, "request body must not exceed 1 MiB", err))
			return lifecycle.Patch{}, false
		}
		respondError(c, apperr.New(apperr.InvalidArgument, "failed to read request body", err))
		return lifecycle.Patch{}, false
	}
	p, err := lifecycle.DecodePatch(body)
	if err != nil {
		respondError(c, err)
		return lifecycle.Patch{}, false
	}
	return p, true
}
