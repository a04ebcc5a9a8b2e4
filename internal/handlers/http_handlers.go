package handlers

import (
	"context"
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"luckydraw/internal/auth"
	"luckydraw/internal/services"
)

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPHandler holds the dependencies for the HTTP handlers.
type HTTPHandler struct {
	service  *services.LotteryService
	operator *auth.Operator
	store    Pinger
	gatherer prometheus.Gatherer
}

// NewHTTPHandler creates a new HTTPHandler. A nil operator disables the
// operator routes.
func NewHTTPHandler(service *services.LotteryService, operator *auth.Operator, store Pinger, gatherer prometheus.Gatherer) *HTTPHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &HTTPHandler{
		service:  service,
		operator: operator,
		store:    store,
		gatherer: gatherer,
	}
}

// RegisterPublicRoutes registers the registration and public history routes.
func (h *HTTPHandler) RegisterPublicRoutes(router gin.IRouter) {
	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	api.GET("/event", h.ShowEvent)
	api.POST("/register", h.Register)
	api.GET("/winners", h.ListWinners)
}

// RegisterOperatorRoutes registers the login route and the token-protected
// operator routes.
func (h *HTTPHandler) RegisterOperatorRoutes(router gin.IRouter) {
	admin := router.Group("/api/admin")
	admin.POST("/login", h.Login)

	protected := admin.Group("/")
	protected.Use(h.OperatorMiddleware())
	protected.GET("/participants", h.ListParticipants)
	protected.GET("/participants/:number", h.FindParticipant)
	protected.GET("/available", h.AvailableNumbers)
	protected.GET("/stats", h.Stats)
	protected.POST("/draw", h.Draw)
	protected.GET("/winners.csv", h.ExportWinnersCSV)
	protected.DELETE("/winners", h.DeleteAllWinners)
	protected.DELETE("/winners/:id", h.DeleteWinner)
	protected.DELETE("/participants", h.DeleteAllParticipants)
	protected.DELETE("/all", h.DeleteAll)
}

// Health reports whether the store is reachable.
func (h *HTTPHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		logger.Warningf("health check: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ShowEvent returns the event name and number range.
func (h *HTTPHandler) ShowEvent(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Event())
}

// Register handles a participant registration.
func (h *HTTPHandler) Register(c *gin.Context) {
	var in struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": codeValidation})
		return
	}

	participant, err := h.service.Register(c.Request.Context(), in.Name, in.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, participant)
}

// ListWinners returns the draw history, most recent first.
func (h *HTTPHandler) ListWinners(c *gin.Context) {
	winners, err := h.service.ListWinners(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, winners)
}

// Login exchanges operator credentials for a bearer token.
func (h *HTTPHandler) Login(c *gin.Context) {
	if h.operator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "operator login is not configured", "code": codeUnavailable})
		return
	}
	var in struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": codeValidation})
		return
	}
	token, expires, err := h.operator.Login(in.Email, in.Password)
	if err != nil {
		logger.Warningf("operator login failed for %q", in.Email)
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": codeUnauthorized})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expiresAt": expires})
}

// ListParticipants returns every participant, newest first.
func (h *HTTPHandler) ListParticipants(c *gin.Context) {
	participants, err := h.service.ListParticipants(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, participants)
}

// FindParticipant looks a participant up by ticket number.
func (h *HTTPHandler) FindParticipant(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "number must be an integer", "code": codeValidation})
		return
	}
	participant, ok, err := h.service.FindByNumber(c.Request.Context(), number)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no participant holds this number", "code": codeNotFound})
		return
	}
	c.JSON(http.StatusOK, participant)
}

// AvailableNumbers returns the numbers that can still win.
func (h *HTTPHandler) AvailableNumbers(c *gin.Context) {
	numbers, err := h.service.AvailableNumbers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"numbers": numbers, "count": len(numbers)})
}

// Stats returns the dashboard counters.
func (h *HTTPHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Draw picks one winner for the submitted prize. It answers 204 when no
// number is left to draw.
func (h *HTTPHandler) Draw(c *gin.Context) {
	var in struct {
		Prize string `json:"prize"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": codeValidation})
		return
	}
	winner, err := h.service.DrawWinner(c.Request.Context(), in.Prize)
	if err != nil {
		writeError(c, err)
		return
	}
	if winner == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusCreated, winner)
}

// DeleteWinner removes a single winner.
func (h *HTTPHandler) DeleteWinner(c *gin.Context) {
	if err := h.service.DeleteWinner(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAllWinners clears the draw history.
func (h *HTTPHandler) DeleteAllWinners(c *gin.Context) {
	if err := h.service.DeleteAllWinners(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAllParticipants clears every registration.
func (h *HTTPHandler) DeleteAllParticipants(c *gin.Context) {
	if err := h.service.DeleteAllParticipants(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAll resets winners and participants.
func (h *HTTPHandler) DeleteAll(c *gin.Context) {
	if err := h.service.DeleteAllWinnersAndParticipants(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportWinnersCSV handles the request to download the draw history as a CSV file.
func (h *HTTPHandler) ExportWinnersCSV(c *gin.Context) {
	winners, err := h.service.ListWinners(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment;filename=winners.csv")

	// Add BOM to ensure UTF-8 compatibility in Excel
	c.Writer.Write([]byte("\xef\xbb\xbf"))

	w := csv.NewWriter(c.Writer)
	if err := w.Write([]string{"Number", "Participant ID", "Participant", "Prize", "Drawn At"}); err != nil {
		logger.Infof("Error writing CSV header: %v", err)
		return
	}
	for _, winner := range winners {
		row := []string{
			strconv.Itoa(winner.Number),
			winner.ParticipantID,
			winner.ParticipantName,
			winner.Prize,
			winner.DrawnAt.Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			logger.Infof("Error writing CSV row: %v", err)
			return
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		logger.Infof("Error flushing CSV writer: %v", err)
	}
}
