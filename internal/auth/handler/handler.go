package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"auth-bridge/internal/auth/flow"
	"auth-bridge/internal/auth/redirect"
	"auth-bridge/internal/middleware"
	"auth-bridge/internal/monitoring"
	"auth-bridge/internal/session"
)

const (
	failureMessage = "Login failed. Please try again."
	controllerKey  = "flow_controller"
)

// Logouter ends a session.
type Logouter interface {
	Logout(ctx context.Context, sessionID string) error
}

type Handler struct {
	flows     map[string]*flow.Controller
	redirects *redirect.Resolver
	users     Logouter
	sessions  *middleware.SessionMiddleware
	logoutURL string
	logger    *zap.Logger
}

func NewHandler(
	flows map[string]*flow.Controller,
	redirects *redirect.Resolver,
	users Logouter,
	sessions *middleware.SessionMiddleware,
	logoutURL string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		flows:     flows,
		redirects: redirects,
		users:     users,
		sessions:  sessions,
		logoutURL: logoutURL,
		logger:    logger.Named("handler"),
	}
}

// RegisterRoutes mounts the /auth surface. limit wraps the routes that
// start a login; pass nil to disable throttling.
func (h *Handler) RegisterRoutes(r gin.IRouter, limit gin.HandlerFunc) {
	g := r.Group("/auth")

	g.GET("/user", h.sessions.LoadUser(), h.user)
	g.GET("/logout", h.logout)
	g.GET("/failure", h.failure)

	start := []gin.HandlerFunc{h.requireProvider}
	if limit != nil {
		start = append(start, limit)
	}
	start = append(start, h.sessions.EnsureSession())

	g.GET("/:provider/init", chain(start, h.initLogin)...)
	g.GET("/:provider", chain(start, h.beginLogin)...)
	g.GET("/:provider/callback", h.requireProvider, h.callback)
}

func chain(pre []gin.HandlerFunc, last gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(pre)+1)
	return append(append(out, pre...), last)
}

// requireProvider resolves :provider to its controller or answers 404.
func (h *Handler) requireProvider(c *gin.Context) {
	ctrl, ok := h.flows[c.Param("provider")]
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}
	c.Set(controllerKey, ctrl)
	c.Next()
}

func controller(c *gin.Context) *flow.Controller {
	return c.MustGet(controllerKey).(*flow.Controller)
}

// initLogin captures the post-login destination, then hands over to
// beginLogin.
func (h *Handler) initLogin(c *gin.Context) {
	ctrl := controller(c)
	sid, _ := middleware.SessionIDFromContext(c.Request.Context())

	target := h.redirects.Capture(c.Query("redirect"))
	if err := h.redirects.StoreFor(c.Request.Context(), sid, target); err != nil {
		h.internalError(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/auth/"+ctrl.Provider())
}

func (h *Handler) beginLogin(c *gin.Context) {
	ctrl := controller(c)
	sid, _ := middleware.SessionIDFromContext(c.Request.Context())

	authURL, err := ctrl.BeginLogin(c.Request.Context(), sid, c.Query("redirect"))
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

func (h *Handler) callback(c *gin.Context) {
	ctrl := controller(c)
	sid := session.ReadCookie(c.Request)

	res, err := ctrl.HandleCallback(c.Request.Context(), sid, c.Request.URL.Query())
	if err != nil {
		h.internalError(c, err)
		return
	}
	if res.Location != flow.FailurePath {
		session.SetCookie(c.Writer, res.SessionID, h.sessions.TTL)
	}
	c.Redirect(http.StatusFound, res.Location)
}

// user reports the logged-in identity, or JSON null.
func (h *Handler) user(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.UserFromContext(c.Request.Context()))
}

func (h *Handler) logout(c *gin.Context) {
	if sid := session.ReadCookie(c.Request); sid != "" {
		if err := h.users.Logout(c.Request.Context(), sid); err != nil {
			h.internalError(c, err)
			return
		}
	}
	session.ClearCookie(c.Writer)
	c.Redirect(http.StatusFound, h.logoutURL)
}

func (h *Handler) failure(c *gin.Context) {
	c.String(http.StatusUnauthorized, failureMessage)
}

func (h *Handler) internalError(c *gin.Context, err error) {
	monitoring.CaptureError(err, map[string]string{"component": "handler"})
	h.logger.Error("request failed",
		zap.String("request_id", middleware.RequestIDFrom(c)),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": "internal error",
	})
}
