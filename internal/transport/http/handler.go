package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/User159951/IntelliPM-sub015/internal/outbox"
	"github.com/User159951/IntelliPM-sub015/internal/repo"
	"github.com/User159951/IntelliPM-sub015/internal/service"
)

// Services bundles everything the transport layer needs.
type Services struct {
	Projects *service.ProjectService
	Sprints  *service.SprintService
	Tasks    *service.TaskService
	Repo     repo.RepositoryInterface
	Outbox   *outbox.Store
}

func RegisterHandlers(r *gin.Engine, s Services) {
	v1 := r.Group("/v1")
	{
		v1.POST("/projects", createProjectHandler(s))
		v1.POST("/projects/:id/members", addMemberHandler(s))
		v1.POST("/projects/:id/sprints", createSprintHandler(s))
		v1.POST("/projects/:id/tasks", createTaskHandler(s))
		v1.POST("/sprints/:id/status", changeSprintStatusHandler(s))
		v1.POST("/tasks/:id/status", changeTaskStatusHandler(s))
		v1.POST("/tasks/:id/move", moveTaskHandler(s))
		v1.POST("/tasks/:id/comments", addCommentHandler(s))

		v1.GET("/projects/:id/overview", projectOverviewHandler(s))
		v1.GET("/sprints/:id/summary", sprintSummaryHandler(s))
		v1.GET("/outbox/dead-letters", deadLettersHandler(s))
		v1.GET("/outbox/dead-letters/count", deadLetterCountHandler(s))
	}
}

func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func writeErr(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

type createProjectReq struct {
	OrgID   uint64 `json:"org_id" binding:"required"`
	Name    string `json:"name" binding:"required"`
	ActorID uint64 `json:"actor_id" binding:"required"`
}

func createProjectHandler(s Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createProjectReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p, err := s.Projects.CreateProject(c, req.OrgID, req.Name, req.ActorID)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

type addMemberReq struct {
	UserID      uint64 `json:"user_id" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
	Role        string `json:"role"`
	ActorID     uint64 `json:"actor_id" binding:"required"`
}

func addMemberHandler(s Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, ok := pathID(c)
		if !ok {
			return
		}
		var req addMemberReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		m, err := s.Projects.AddMember(c, projectID, req.UserID, req.DisplayName, req.Role, req.ActorID)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, m)
	}
}

type createSprintReq struct {
	Number    int       `json:"number" binding:"required"`
	StartDate time.Time `json:"start_date" binding:"required"`
	EndDate   time.Time `json:"end_date" binding:"required"`
	ActorID   uint64    `json:"actor_id" binding:"required"`
}

func createSprintHandler(s Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, ok := pathID(c)
		if !ok {
			return
		}
		var req createSprintReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sp, err := s.Sprints.CreateSprint(c, projectID, req.Number, req.StartDate, req.EndDate, req.ActorID)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, sp)
	}
}

type createTaskReq struct {
	Title       string  `json:"title" binding:"required"`
	Type        string  `json:"type"`
	StoryPoints string  `json:"story_points"`
	SprintID    *uint64 `json:"sprint_id"`
	AssigneeID  *uint64 `json:"assignee_id"`
	ActorID     uint64  `json:"actor_id" binding:"required"`
}

func createTaskHandler(s Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, ok := pathID(c)
		if !ok {
			return
		}
		var req createTaskReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		points := decimal.Zero
		if req.StoryPoints != "" {
			var err error
			points, err = decimal.NewFromString(req.StoryPoints)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid story_points"})
				return
			}
		}
		t, err := s.Tasks.CreateTask(c, projectID, service.CreateTaskInput{
			Title:       req.Title,
			Type:        req.Type,
			StoryPoints: points,
			SprintID:    req.SprintID,
			AssigneeID:  req.AssigneeID,
		}, req.ActorID)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

type statusReq struct {
	Status  string `json:"status" binding:"required"`
	ActorID uint64 `json:"actor_id" binding:"required"`
}

func changeSprintStatusHandler(s Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sprintID, ok := pathID(c)
		if !ok {
			return
		}
		var req statusReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sp, err := s.Sprints.ChangeSprintStatus(c, sprintID, req.Status, req.ActorID)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, sp)
	}
}

func changeTaskStatusHandler(s Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID, ok := pathID(c)
		if !ok {
			return
		}
		var req statusReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		t, err := s.Tasks.ChangeTaskStatus(c, taskID, req.Status, req.ActorID)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

type moveTaskReq struct {
	SprintID *uint64 `json:"sprint_id"`
	ActorID  uint64  `json:"actor_id" binding:"required"`
}

func moveTaskHandler(s Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID, ok := pathID(c)
		if !ok {
			return
		}
		var req moveTaskReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		t, err := s.Tasks.MoveTask(c, taskID, req.SprintID, req.ActorID)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

type addCommentReq struct {
	AuthorID uint64 `json:"author_id" binding:"required"`
	Body     string `json:"body" binding:"required"`
}

func addCommentHandler(s Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID, ok := pathID(c)
		if !ok {
			return
		}
		var req addCommentReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cm, err := s.Projects.AddComment(c, taskID, req.AuthorID, req.Body)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, cm)
	}
}

// projectOverviewHandler serves the dashboard read model, cache first.
func projectOverviewHandler(s Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, ok := pathID(c)
		if !ok {
			return
		}
		if cached, err := s.Repo.GetCachedProjectOverview(c, projectID); err == nil {
			c.JSON(http.StatusOK, cached)
			return
		}
		ov, err := s.Repo.GetProjectOverview(c, projectID)
		if err != nil {
			writeErr(c, err)
			return
		}
		if ov == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "project overview not found"})
			return
		}
		c.JSON(http.StatusOK, ov)
	}
}

func sprintSummaryHandler(s Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sprintID, ok := pathID(c)
		if !ok {
			return
		}
		if cached, err := s.Repo.GetCachedSprintSummary(c, sprintID); err == nil {
			c.JSON(http.StatusOK, cached)
			return
		}
		sum, err := s.Repo.GetSprintSummary(c, sprintID)
		if err != nil {
			writeErr(c, err)
			return
		}
		if sum == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "sprint summary not found"})
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}

// deadLettersHandler lists terminally failed outbox entries for operators.
func deadLettersHandler(s Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		entries, err := s.Outbox.ListFailed(c, limit)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

func deadLetterCountHandler(s Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := s.Outbox.FailedCount(c)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": n})
	}
}
