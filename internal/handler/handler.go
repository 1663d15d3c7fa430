package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"candor/internal/features"
	"candor/internal/repo"
	"candor/internal/session"
	logging "candor/pkg/logger/pkg"
)

const requestIDHeader = "X-Request-ID"

// History serves stored candidates
type History interface {
	GetByEmail(ctx context.Context, email string) (*repo.Record, error)
	List(ctx context.Context, opts repo.ListOptions) ([]repo.Summary, int, error)
}

type Handler struct {
	interviewer *features.Interviewer
	history     History
	logger      *zap.Logger
}

// New creates the HTTP handler. history may be nil when no database is configured.
func New(interviewer *features.Interviewer, history History, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{interviewer: interviewer, history: history, logger: logger}
}

// NewRouter builds an engine with the request id middleware, the given middlewares and all routes
func NewRouter(h *Handler, middlewares ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID())
	r.Use(middlewares...)
	h.Register(r)
	return r
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.health)
	r.GET("/metrics", h.metrics)

	api := r.Group("/api")
	s := api.Group("/sessions")
	s.POST("", h.createSession)
	s.GET("/:id", h.getSession)
	s.DELETE("/:id", h.deleteSession)
	s.GET("/:id/question", h.currentQuestion)
	s.GET("/:id/events", h.events)
	s.GET("/:id/export", h.export)
	s.POST("/:id/profile", h.submitProfile)
	s.POST("/:id/introduction", h.submitIntroduction)
	s.POST("/:id/introduction/skip", h.command(func(*gin.Context) (session.Command, error) {
		return session.SkipIntroduction{}, nil
	}))
	s.POST("/:id/answers", h.submitAnswer)
	s.POST("/:id/answers/skip", h.skipQuestion)
	s.POST("/:id/secondary", h.submitSecondary)
	s.POST("/:id/secondary/skip", h.command(func(*gin.Context) (session.Command, error) {
		return session.SkipSecondary{}, nil
	}))
	s.POST("/:id/results", h.command(func(*gin.Context) (session.Command, error) {
		return session.Finalize{}, nil
	}))
	s.POST("/:id/close", h.command(func(*gin.Context) (session.Command, error) {
		return session.Close{}, nil
	}))
	s.POST("/:id/restart", h.command(func(*gin.Context) (session.Command, error) {
		return session.Restart{}, nil
	}))

	c := api.Group("/candidates")
	c.GET("", h.listCandidates)
	c.GET("/:email", h.getCandidate)
	c.GET("/:email/export", h.exportCandidate)
}

// RequestID propagates or assigns an X-Request-ID and makes it visible to logging.Logger
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

type errorResponse struct {
	Error  string               `json:"error"`
	Fields []session.FieldError `json:"fields,omitempty"`
	Result *features.Result     `json:"result,omitempty"`
	Stage  *session.Stage       `json:"stage,omitempty"`
}

// abort maps a domain error to its HTTP status. res is attached when it carries a verdict.
func (h *Handler) abort(c *gin.Context, err error, res *features.Result) {
	var (
		validation *session.ValidationError
		stage      *session.StageError
		status     int
		body       = errorResponse{Error: err.Error()}
	)
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
		body.Fields = validation.Fields
	case errors.Is(err, repo.ErrInvalidSort):
		status = http.StatusBadRequest
	case errors.Is(err, features.ErrSessionNotFound), errors.Is(err, repo.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &stage):
		status = http.StatusConflict
		body.Stage = &stage.Stage
	case errors.Is(err, session.ErrStaleQuestion), errors.Is(err, features.ErrNotFinalized):
		status = http.StatusConflict
	case errors.Is(err, repo.ErrDuplicateCandidate):
		status = http.StatusConflict
		body.Result = res
	default:
		status = http.StatusInternalServerError
		body.Error = "internal error"
		if res != nil && res.Verdict != nil {
			body.Result = res
		}
		logging.Logger(c.Request.Context()).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.interviewer.Metrics())
}
