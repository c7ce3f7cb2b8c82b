package handler

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/classgrid/timetable-engine/internal/dto"
	"github.com/classgrid/timetable-engine/internal/middleware"
	"github.com/classgrid/timetable-engine/internal/service"
	appErrors "github.com/classgrid/timetable-engine/pkg/errors"
	"github.com/classgrid/timetable-engine/pkg/response"
)

// TimetableHandler exposes generate/validate/suggest/move/activate/report
// over HTTP, per spec §6's external interface.
type TimetableHandler struct {
	timetables *service.TimetableService
	reports    *service.ReportService
	validate   *validator.Validate
}

// NewTimetableHandler creates a TimetableHandler.
func NewTimetableHandler(timetables *service.TimetableService, reports *service.ReportService, validate *validator.Validate) *TimetableHandler {
	return &TimetableHandler{timetables: timetables, reports: reports, validate: validate}
}

func (h *TimetableHandler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "validation failed"))
		return false
	}
	return true
}

// Generate godoc
// @Summary Generate schedule candidates
// @Description Builds num_versions candidate schedules from the current instance and activates the best-scoring one
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.GenerateRequest false "Generation options"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /timetable/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if c.Request.ContentLength > 0 {
		if !h.bindAndValidate(c, &req) {
			return
		}
	}

	result, err := h.timetables.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// Validate godoc
// @Summary Validate an arbitrary entry set
// @Description Runs the conflict detector over a caller-supplied entry set without persisting anything
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.ValidateRequest true "Entries to validate"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /timetable/validate [post]
func (h *TimetableHandler) Validate(c *gin.Context) {
	var req dto.ValidateRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	result, err := h.timetables.Validate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Suggest godoc
// @Summary Suggest alternate slots for an entry
// @Description Returns up to limit conflict-free alternate slots for one entry of a schedule version
// @Tags Timetable
// @Produce json
// @Param version_id path string true "Schedule version ID"
// @Param entry_id path string true "Entry ID"
// @Param limit query int false "Maximum alternates to return"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/versions/{version_id}/entries/{entry_id}/suggest [get]
func (h *TimetableHandler) Suggest(c *gin.Context) {
	versionID := c.Param("version_id")
	entryID := c.Param("entry_id")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	alternates, err := h.timetables.Suggest(c.Request.Context(), versionID, entryID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"alternates": alternates}, nil)
}

// Move godoc
// @Summary Move an entry to a new slot
// @Description Relocates one entry; a rejected move responds 409 with Accepted=false, violations and alternates in the envelope data
// @Tags Timetable
// @Accept json
// @Produce json
// @Param entry_id path string true "Entry ID"
// @Param payload body dto.MoveRequest true "Target slot"
// @Success 200 {object} response.Envelope
// @Success 409 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/entries/{entry_id}/move [post]
func (h *TimetableHandler) Move(c *gin.Context) {
	entryID := c.Param("entry_id")
	var req dto.MoveRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	result, err := h.timetables.Move(c.Request.Context(), entryID, req.NewSlotID)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if !result.Accepted {
		status = http.StatusConflict
	}
	response.JSON(c, status, result, nil)
}

// Activate godoc
// @Summary Activate a schedule version
// @Description Marks one schedule version active and deactivates every other version
// @Tags Timetable
// @Produce json
// @Param version_id path string true "Schedule version ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /timetable/versions/{version_id}/activate [post]
func (h *TimetableHandler) Activate(c *gin.Context) {
	versionID := c.Param("version_id")
	if err := h.timetables.Activate(c.Request.Context(), versionID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Report godoc
// @Summary Get a schedule version's report payload
// @Description Returns teacher workload, room usage, subject distribution, free-slot counts, score and conflict count
// @Tags Timetable
// @Produce json
// @Param version_id path string true "Schedule version ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/versions/{version_id}/report [get]
func (h *TimetableHandler) Report(c *gin.Context) {
	versionID := c.Param("version_id")
	payload, err := h.timetables.Report(c.Request.Context(), versionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payload, nil)
}

// ReportCSV godoc
// @Summary Export a schedule version's report as CSV
// @Description Renders the report payload as CSV and returns a signed, time-limited download token
// @Tags Timetable
// @Produce json
// @Param version_id path string true "Schedule version ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /timetable/versions/{version_id}/report.csv [get]
func (h *TimetableHandler) ReportCSV(c *gin.Context) {
	versionID := c.Param("version_id")
	export, err := h.reports.ExportCSV(c.Request.Context(), versionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, export, nil)
}

// ReportPDF godoc
// @Summary Export a schedule version's report as PDF
// @Description Renders the report payload as PDF and returns a signed, time-limited download token
// @Tags Timetable
// @Produce json
// @Param version_id path string true "Schedule version ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /timetable/versions/{version_id}/report.pdf [get]
func (h *TimetableHandler) ReportPDF(c *gin.Context) {
	versionID := c.Param("version_id")
	export, err := h.reports.ExportPDF(c.Request.Context(), versionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, export, nil)
}

// Download godoc
// @Summary Download a signed report export
// @Description Streams a previously rendered report export identified by a signed token
// @Tags Timetable
// @Produce application/octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /timetable/reports/download [get]
func (h *TimetableHandler) Download(c *gin.Context) {
	token := c.Query("token")
	path, err := h.reports.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// SubstitutesNeeded godoc
// @Summary List entries needing a substitute teacher
// @Description Finds every entry of the active schedule version whose assigned teacher is marked unavailable, with the teachers free to cover it
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/substitutes/needed [get]
func (h *TimetableHandler) SubstitutesNeeded(c *gin.Context) {
	needed, err := h.timetables.SubstitutesNeeded(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"needed": needed}, nil)
}

// AssignSubstitute godoc
// @Summary Assign a substitute teacher to an entry
// @Description Reassigns an absent-marked entry's teacher to a substitute, as a direct audited replacement
// @Tags Timetable
// @Accept json
// @Produce json
// @Param entry_id path string true "Entry ID"
// @Param payload body dto.AssignSubstituteRequest true "Substitute teacher"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/entries/{entry_id}/substitute [post]
func (h *TimetableHandler) AssignSubstitute(c *gin.Context) {
	entryID := c.Param("entry_id")
	var req dto.AssignSubstituteRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	if err := h.timetables.AssignSubstitute(c.Request.Context(), entryID, req.SubstituteTeacherID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ConflictLog godoc
// @Summary List conflict log entries for a schedule version
// @Description Returns the audit trail of generation attempts and validation violations recorded against one schedule version
// @Tags Timetable
// @Produce json
// @Param version_id path string true "Schedule version ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/versions/{version_id}/conflict-log [get]
func (h *TimetableHandler) ConflictLog(c *gin.Context) {
	versionID := c.Param("version_id")
	logs, err := h.timetables.ConflictLogs(c.Request.Context(), versionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
