package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/service"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

// MarkHandler wires mark, attendance and progress endpoints to the mark service.
type MarkHandler struct {
	service *service.MarkService
}

// NewMarkHandler creates a new handler.
func NewMarkHandler(svc *service.MarkService) *MarkHandler {
	return &MarkHandler{service: svc}
}

// UpsertMark godoc
// @Summary Set a mark
// @Description Create or replace the mark for a student on a lesson
// @Tags Marks
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.UpsertMarkRequest true "Mark payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id}/marks/ [post]
func (h *MarkHandler) UpsertMark(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpsertMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid mark payload"))
		return
	}

	mark, err := h.service.Upsert(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, mark)
}

// DeleteMark godoc
// @Summary Remove a mark
// @Description Delete the student's mark on a lesson
// @Tags Marks
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.DeleteMarkRequest true "Student reference"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id}/marks/ [delete]
func (h *MarkHandler) DeleteMark(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.DeleteMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "student is required"))
		return
	}

	if err := h.service.Delete(c.Request.Context(), claims.UserID, c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// SetAttendance godoc
// @Summary Toggle attendance
// @Description Mark the student present or absent on a lesson
// @Tags Marks
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.AttendanceRequest true "Attendance payload"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id}/attendances/ [post]
func (h *MarkHandler) SetAttendance(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.AttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}

	if err := h.service.SetAttendance(c.Request.Context(), claims.UserID, c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// LessonStudents godoc
// @Summary Lesson roster
// @Description List the owning group's students with attendance flag and mark for the lesson
// @Tags Marks
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id}/students/ [get]
func (h *MarkHandler) LessonStudents(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	students, err := h.service.LessonStudents(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, students)
}

// StudentProgress godoc
// @Summary Student progress report
// @Description Per-lesson attendance and marks for one student of the group, optionally exported as csv or pdf
// @Tags Marks
// @Produce json
// @Param id path string true "Group ID"
// @Param email query string true "Student email"
// @Param format query string false "Export format (csv or pdf)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /groups/{id}/student_progress/ [get]
func (h *MarkHandler) StudentProgress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	email := c.Query("email")
	if email == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "email query parameter is required"))
		return
	}

	if format := c.Query("format"); format != "" {
		payload, contentType, filename, err := h.service.ExportStudentProgress(c.Request.Context(), claims.UserID, c.Param("id"), email, format)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		c.Data(http.StatusOK, contentType, payload)
		return
	}

	views, err := h.service.StudentProgress(c.Request.Context(), claims.UserID, c.Param("id"), email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, views)
}
