package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"scribeit/internal/auth"
	"scribeit/internal/backend"
	"scribeit/internal/dashboard"
	"scribeit/internal/logger"
	"scribeit/internal/models"
	"scribeit/internal/summary"
	"scribeit/internal/upload"
)

// UploadManager runs upload and YouTube jobs for sessions.
type UploadManager interface {
	SubmitFile(owner string, cred backend.Credential, title string, spool *models.SpooledMedia) (upload.Snapshot, error)
	SubmitYouTube(owner string, cred backend.Credential, videoURL, title string) (upload.Snapshot, error)
	Get(owner, jobID string) (upload.Snapshot, error)
	Current(owner string) (upload.Snapshot, bool)
	Subscribe(owner, jobID string) (<-chan upload.Snapshot, func(), error)
	Abandon(owner, jobID string) error
	AbandonOwner(owner string)
}

// DashboardLoader reads the dashboard overview.
type DashboardLoader interface {
	Load(ctx context.Context, owner string, cred backend.Credential) (*dashboard.Overview, error)
	InvalidateUsage(ctx context.Context, owner string)
}

// Handler wires HTTP routes to sessions, uploads and summaries.
type Handler struct {
	auth      *auth.Service
	uploads   UploadManager
	dashboard DashboardLoader
	viewer    *summary.Viewer
	poller    *summary.Poller
	spoolDir  string
}

// NewHandler constructs a Handler instance.
func NewHandler(authService *auth.Service, uploads UploadManager, dash DashboardLoader, viewer *summary.Viewer, poller *summary.Poller, spoolDir string) *Handler {
	return &Handler{
		auth:      authService,
		uploads:   uploads,
		dashboard: dash,
		viewer:    viewer,
		poller:    poller,
		spoolDir:  spoolDir,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.healthz)

	api := router.Group("/api")
	api.Use(h.auth.CSRFMiddleware())
	api.GET("/pricing", h.pricing)
	api.POST("/session/login", h.login)

	optional := api.Group("")
	optional.Use(h.auth.OptionalMiddleware())
	optional.POST("/uploads/selection", h.previewSelection)
	optional.GET("/summaries/:id", h.getSummary)

	private := api.Group("")
	private.Use(h.auth.Middleware())
	private.GET("/session", h.currentSession)
	private.POST("/session/logout", h.logout)
	private.GET("/dashboard", h.getDashboard)
	private.POST("/uploads", h.uploadMedia)
	private.POST("/youtube", h.submitYouTube)
	private.GET("/jobs/:job_id", h.getJob)
	private.GET("/jobs/:job_id/events", h.jobEvents)
	private.DELETE("/jobs/:job_id", h.abandonJob)
	private.GET("/summaries/:id/events", h.summaryEvents)
	private.GET("/summaries/:id/export", h.exportSummary)
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// session returns the authenticated session or writes a 401.
func (h *Handler) session(c *gin.Context) (*models.WebSession, bool) {
	sess, ok := auth.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return nil, false
	}
	return sess, true
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sess, err := h.auth.Login(c.Request.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setSessionCookies(c, sess, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"session":       sess,
		"session_token": sess.ID,
	})
}

func (h *Handler) currentSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	resp := gin.H{"session": sess}
	if job, ok := h.uploads.Current(sess.ID); ok {
		resp["current_job"] = job
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) logout(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	h.uploads.AbandonOwner(sess.ID)
	if err := h.auth.Logout(c.Request.Context(), sess.ID); err != nil {
		logger.Error(c.Request.Context(), "logout failed", err)
	}
	h.clearSessionCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) getDashboard(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	overview, err := h.dashboard.Load(c.Request.Context(), sess.ID, auth.CredentialFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

type pricingTier struct {
	Name          string   `json:"name"`
	Price         string   `json:"price"`
	Period        string   `json:"period"`
	MinutesPerMon int      `json:"minutes_per_month"`
	Features      []string `json:"features"`
	Highlighted   bool     `json:"highlighted,omitempty"`
}

var pricingTiers = []pricingTier{
	{
		Name:          "Free",
		Price:         "$0",
		Period:        "For occasional use",
		MinutesPerMon: 100,
		Features:      []string{"100 minutes per month", "Basic summaries", "Text export"},
	},
	{
		Name:          "Pro",
		Price:         "$9.99",
		Period:        "Per month",
		MinutesPerMon: 400,
		Features:      []string{"400 minutes per month", "Advanced summaries", "All export options", "Priority processing"},
		Highlighted:   true,
	},
	{
		Name:          "Enterprise",
		Price:         "$99",
		Period:        "Per month",
		MinutesPerMon: 1500,
		Features:      []string{"1,500 minutes per month", "Premium summaries", "All export options", "Team sharing", "API access"},
	},
}

func (h *Handler) pricing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tiers": pricingTiers})
}

func (h *Handler) setSessionCookies(c *gin.Context, sess *models.WebSession, csrfToken string) {
	ttl := int(sess.ExpiresAt.Sub(sess.CreatedAt).Seconds())
	if ttl <= 0 {
		ttl = int(h.auth.SessionTTL().Seconds())
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.SessionCookieName(),
		Value:    sess.ID,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearSessionCookies(c *gin.Context) {
	for _, name := range []string{h.auth.SessionCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.SessionCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
