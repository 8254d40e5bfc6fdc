package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"taskhub/internal/filter"
	"taskhub/internal/models"
)

const dateLayout = "2006-01-02"

type taskRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	RichText    *string `json:"rich_text"`
	// ScheduledDate is YYYY-MM-DD; an empty string clears it.
	ScheduledDate *string   `json:"scheduled_date"`
	StartTime     *string   `json:"start_time"`
	EndTime       *string   `json:"end_time"`
	Price         *float64  `json:"price"`
	ColorTag      *[]string `json:"color_tag"`
	// TeamAssignment is cleared by an empty string.
	TeamAssignment *string `json:"team_assignment"`
	Status         *string `json:"status"`
}

func parseDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("scheduled_date must be YYYY-MM-DD")
	}
	return &d, nil
}

func (r taskRequest) draft() (models.Draft, error) {
	var d models.Draft
	d.Name = getString(r.Name)
	d.Description = getString(r.Description)
	d.RichText = getString(r.RichText)
	d.StartTime = getString(r.StartTime)
	d.EndTime = getString(r.EndTime)
	if r.Price != nil {
		d.Price = *r.Price
	}
	if r.ColorTag != nil {
		d.ColorTag = *r.ColorTag
	}
	if r.TeamAssignment != nil && *r.TeamAssignment != "" {
		team := *r.TeamAssignment
		d.TeamAssignment = &team
	}
	if r.ScheduledDate != nil {
		date, err := parseDate(*r.ScheduledDate)
		if err != nil {
			return d, err
		}
		d.ScheduledDate = date
	}
	return d, nil
}

func (r taskRequest) patch() (models.Patch, error) {
	p := models.Patch{
		Name:        r.Name,
		Description: r.Description,
		RichText:    r.RichText,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Price:       r.Price,
		ColorTag:    r.ColorTag,
	}
	if r.ScheduledDate != nil {
		date, err := parseDate(*r.ScheduledDate)
		if err != nil {
			return p, err
		}
		p.ScheduledDate = &date
	}
	if r.TeamAssignment != nil {
		var team *string
		if *r.TeamAssignment != "" {
			v := *r.TeamAssignment
			team = &v
		}
		p.TeamAssignment = &team
	}
	if r.Status != nil {
		status, ok := models.ParseStatus(*r.Status)
		if !ok {
			return p, fmt.Errorf("unknown status %q", *r.Status)
		}
		p.Status = &status
	}
	return p, nil
}

// parseCriteria reads the filter query parameters shared by the list and
// watch endpoints.
func parseCriteria(c *gin.Context) (filter.Criteria, error) {
	var crit filter.Criteria
	if raw := c.Query("trash"); raw != "" {
		trash, err := strconv.ParseBool(raw)
		if err != nil {
			return crit, fmt.Errorf("trash must be a boolean")
		}
		crit.ShowDeleted = trash
	}

	var rawStatuses []string
	if s := c.Query("status"); s != "" {
		rawStatuses = append(rawStatuses, s)
	}
	if s := c.Query("statuses"); s != "" {
		rawStatuses = append(rawStatuses, strings.Split(s, ",")...)
	}
	for _, raw := range rawStatuses {
		status, ok := models.ParseStatus(raw)
		if !ok {
			return crit, fmt.Errorf("unknown status %q", raw)
		}
		crit.Statuses = append(crit.Statuses, status)
	}

	window, err := filter.ParseWindow(c.Query("window"))
	if err != nil {
		return crit, err
	}
	crit.Window = window
	crit.Query = c.Query("q")
	return crit, nil
}

// handleListTasks returns the caller's tasks after the filter pipeline.
func (s *Server) handleListTasks(c *gin.Context) {
	actor := actorFrom(c)
	crit, err := parseCriteria(c)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	force, _ := strconv.ParseBool(c.Query("force"))

	tasks, err := s.ctrl.List(c.Request.Context(), actor, force)
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	crit.UserID = actor.UserID
	respondSuccess(c, http.StatusOK, gin.H{"tasks": filter.Apply(tasks, crit)})
}

// handleGetTask returns one task.
func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.ctrl.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleCreateTask creates a task owned by the caller.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("name is required"))
		return
	}
	draft, err := req.draft()
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	task, err := s.ctrl.Create(c.Request.Context(), actorFrom(c), draft)
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": task})
}

// handleEditTask applies a partial update.
func (s *Server) handleEditTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	task, err := s.ctrl.Edit(c.Request.Context(), actorFrom(c), c.Param("id"), patch)
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

func (s *Server) handleToggleTask(c *gin.Context) {
	task, err := s.ctrl.ToggleCompletion(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleSoftDeleteTask moves a task to the trash.
func (s *Server) handleSoftDeleteTask(c *gin.Context) {
	task, err := s.ctrl.SoftDelete(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

func (s *Server) handleRestoreTask(c *gin.Context) {
	task, err := s.ctrl.Restore(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handlePurgeTask removes a trashed task completely.
func (s *Server) handlePurgeTask(c *gin.Context) {
	if err := s.ctrl.Purge(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "purged"})
}

func getString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
