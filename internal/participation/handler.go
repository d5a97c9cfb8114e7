package participation

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	v1 "github.com/catalyst-ed/project-catalyst/internal/api/v1"
	httperr "github.com/catalyst-ed/project-catalyst/internal/core/errors"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all participation API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/participants", s.HandleCreateParticipant)
	r.POST("/v1/participation/data", s.HandleUpsertDatum)

	r.GET("/v1/participation", s.HandleParticipation)
	r.GET("/v1/participation/batch", s.HandleParticipationByEntities)
	r.GET("/v1/completion", s.HandleCompletionIDs)
	r.GET("/v1/completion/by_cohort", s.HandleCompletionByCohort)
	r.GET("/v1/participants/:participant_id/data", s.HandleListByParticipant)
}

// windowQuery binds the optional start/end filter shared by all read routes.
type windowQuery struct {
	Start *time.Time `form:"start" time_format:"2006-01-02T15:04:05Z07:00"`
	End   *time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
}

// HandleCreateParticipant handles POST /v1/participants.
// Creation is idempotent: repeating a (name, organization_id) pair returns
// the existing identity.
func (s *Service) HandleCreateParticipant(c *gin.Context) {
	var p v1.Participant
	if err := c.ShouldBindJSON(&p); err != nil {
		writeBadRequest(c, httperr.HttpInvalidJsonError, "Invalid JSON body", err)
		return
	}

	created, err := s.GetOrCreateParticipant(c.Request.Context(), &p)
	if err != nil {
		writeServiceError(c, err, "Failed to create participant")
		return
	}

	c.JSON(http.StatusOK, created)
}

// HandleUpsertDatum handles POST /v1/participation/data.
func (s *Service) HandleUpsertDatum(c *gin.Context) {
	var d v1.ParticipantDatum
	if err := c.ShouldBindJSON(&d); err != nil {
		writeBadRequest(c, httperr.HttpInvalidJsonError, "Invalid JSON body", err)
		return
	}

	slog.Info("Received datum",
		"participant_id", d.ParticipantID,
		"survey_id", d.SurveyID,
		"key", d.Key,
		"project_cohort_id", d.ProjectCohortID)

	stored, err := s.UpsertDatum(c.Request.Context(), &d)
	if err != nil {
		writeServiceError(c, err, "Failed to store datum")
		return
	}

	c.JSON(http.StatusOK, stored)
}

// HandleParticipation handles GET /v1/participation.
// Query parameters: program_label | project_cohort_id | survey_id (exactly
// one), cohort_label, start, end.
func (s *Service) HandleParticipation(c *gin.Context) {
	var query struct {
		windowQuery
		ProgramLabel    string `form:"program_label"`
		ProjectCohortID string `form:"project_cohort_id"`
		SurveyID        string `form:"survey_id"`
		CohortLabel     string `form:"cohort_label"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		writeBadRequest(c, httperr.HttpInvalidJsonError, "Invalid query parameters", err)
		return
	}

	scope := Scope{
		ProgramLabel:    query.ProgramLabel,
		ProjectCohortID: query.ProjectCohortID,
		SurveyID:        query.SurveyID,
		CohortLabel:     query.CohortLabel,
	}

	counts, err := s.Participation(c.Request.Context(), scope, query.Start, query.End)
	if err != nil {
		writeServiceError(c, err, "Failed to query participation")
		return
	}
	if counts == nil {
		counts = []v1.ParticipationCount{}
	}

	c.JSON(http.StatusOK, gin.H{"results": counts})
}

// HandleParticipationByEntities handles GET /v1/participation/batch.
// Query parameters: ids (comma-separated), use_codes, start, end.
func (s *Service) HandleParticipationByEntities(c *gin.Context) {
	var query struct {
		windowQuery
		IDs      string `form:"ids" binding:"required"`
		UseCodes bool   `form:"use_codes"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		writeBadRequest(c, httperr.HttpInvalidJsonError, "Invalid query parameters", err)
		return
	}

	ids := strings.Split(query.IDs, ",")
	results, err := s.ParticipationByEntities(c.Request.Context(), ids, query.UseCodes, query.Start, query.End)
	if err != nil {
		writeServiceError(c, err, "Failed to query batched participation")
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// HandleCompletionIDs handles GET /v1/completion.
func (s *Service) HandleCompletionIDs(c *gin.Context) {
	var query struct {
		windowQuery
		ProgramLabel    string `form:"program_label"`
		ProjectCohortID string `form:"project_cohort_id"`
		SurveyID        string `form:"survey_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		writeBadRequest(c, httperr.HttpInvalidJsonError, "Invalid query parameters", err)
		return
	}

	scope := Scope{
		ProgramLabel:    query.ProgramLabel,
		ProjectCohortID: query.ProjectCohortID,
		SurveyID:        query.SurveyID,
	}

	rows, err := s.CompletionIDs(c.Request.Context(), scope, query.Start, query.End)
	if err != nil {
		writeServiceError(c, err, "Failed to query completion")
		return
	}
	if rows == nil {
		rows = []v1.CompletionRow{}
	}

	c.JSON(http.StatusOK, gin.H{"results": rows})
}

// HandleCompletionByCohort handles GET /v1/completion/by_cohort.
func (s *Service) HandleCompletionByCohort(c *gin.Context) {
	var query struct {
		ProgramLabel string `form:"program_label" binding:"required"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		writeBadRequest(c, httperr.HttpInvalidScopeError, "program_label is required", err)
		return
	}

	rows, err := s.CompletionByCohort(c.Request.Context(), query.ProgramLabel)
	if err != nil {
		writeServiceError(c, err, "Failed to query cohort completion")
		return
	}
	if rows == nil {
		rows = []v1.CohortCompletion{}
	}

	c.JSON(http.StatusOK, gin.H{"results": rows})
}

// HandleListByParticipant handles GET /v1/participants/:participant_id/data.
// Only whitelisted keys are returned; free-text survey answers never leave
// via this route.
func (s *Service) HandleListByParticipant(c *gin.Context) {
	var uri struct {
		ParticipantID string `uri:"participant_id" binding:"required"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		writeBadRequest(c, httperr.HttpInvalidJsonError, "Invalid path parameters", err)
		return
	}

	data, err := s.ListByParticipant(c.Request.Context(), uri.ParticipantID, c.Query("project_cohort_id"))
	if err != nil {
		writeServiceError(c, err, "Failed to list participant data")
		return
	}
	if data == nil {
		data = []*v1.ParticipantDatum{}
	}

	c.JSON(http.StatusOK, gin.H{"results": data})
}

func writeBadRequest(c *gin.Context, errorType, message string, err error) {
	c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
		ErrorType: errorType,
		Message:   message,
		Details:   err.Error(),
	})
}

// writeServiceError maps service errors onto the client/server fault split:
// scope and validity errors are client rejections, a progress regression is
// a distinguishable conflict most clients log and ignore, everything else is
// a server fault.
func writeServiceError(c *gin.Context, err error, internalMessage string) {
	switch {
	case errors.Is(err, ErrInvalidScope):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidScopeError,
			Message:   "Invalid participation scope",
			Details:   err.Error(),
		})
	case errors.Is(err, ErrInvalidDatum):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid request",
			Details:   err.Error(),
		})
	case errors.Is(err, ErrInvalidProgressValue):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidProgressError,
			Message:   "Progress value must be an integer in [0, 100]",
			Details:   err.Error(),
		})
	case errors.Is(err, ErrProgressRegression):
		c.JSON(http.StatusConflict, httperr.ErrorResponse{
			ErrorType: httperr.HttpProgressRegressionError,
			Message:   "Progress value is below the stored value",
			Details:   err.Error(),
		})
	default:
		slog.Error(internalMessage, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   internalMessage,
		})
	}
}
