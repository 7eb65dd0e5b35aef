// Package httpapi serves a read-only HTTP view of the local state of a replica, and its metrics.
// Answers reflect one replica only and are not authenticated, so clients that need a Byzantine
// fault tolerant read must use the quorum client.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iykyk-syn/bboard"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
	"github.com/iykyk-syn/bboard/replica"
)

var errMissingReplica = errors.New("replica dependency required")

type Dependencies struct {
	Replica  *replica.Replica
	Index    int
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Replica == nil {
		return nil, errMissingReplica
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		replica: deps.Replica,
		index:   deps.Index,
		logger:  logger.With("module", "httpapi"),
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/v1/general", handler.handleReadGeneral)
	router.GET("/v1/users/:key", handler.handleRead)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return router, nil
}

type httpHandler struct {
	replica *replica.Replica
	index   int
	logger  *slog.Logger
}

type healthPayload struct {
	Status        string `json:"status"`
	Replica       int    `json:"replica"`
	Users         int    `json:"users"`
	Announcements int    `json:"announcements"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	dir := h.replica.Directory()
	c.JSON(http.StatusOK, healthPayload{
		Status:        "ok",
		Replica:       h.index,
		Users:         dir.Users(),
		Announcements: dir.Announcements(),
	})
}

func (h *httpHandler) handleReadGeneral(c *gin.Context) {
	count, ok := h.count(c)
	if !ok {
		return
	}
	list, err := h.replica.ReadGeneral(c.Request.Context(), count)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *httpHandler) handleRead(c *gin.Context) {
	key, err := ed25519.HexToPubKey(c.Param("key"))
	if err != nil {
		h.fail(c, bboard.ErrInvalidKey)
		return
	}
	count, ok := h.count(c)
	if !ok {
		return
	}
	list, err := h.replica.Read(c.Request.Context(), key, count)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *httpHandler) count(c *gin.Context) (int64, bool) {
	raw := c.DefaultQuery("count", "0")
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.fail(c, bboard.ErrInvalidCount)
		return 0, false
	}
	return count, true
}

func (h *httpHandler) fail(c *gin.Context, err error) {
	code, reason := bboard.Code(err)
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, bboard.ErrUnknownUser):
		status = http.StatusNotFound
	case bboard.KindOf(err) == bboard.KindInternal:
		h.logger.ErrorContext(c.Request.Context(), "serving http", "path", c.FullPath(), "err", err)
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": reason, "code": code.String()})
}
