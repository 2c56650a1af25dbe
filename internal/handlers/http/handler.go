package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	apperrors "huddle/pkg/errors"
	"huddle/pkg/validation"
)

// Handler serves the small read-only HTTP surface next to the WebSocket
// endpoint: health, room listing, and recording status.
type Handler struct {
	rooms    ports.RoomDirectory
	recorder ports.RecordingService
}

func NewHandler(rooms ports.RoomDirectory, recorder ports.RecordingService) *Handler {
	return &Handler{rooms: rooms, recorder: recorder}
}

// RegisterRoutes mounts the handler's routes on the given router.
func (h *Handler) RegisterRoutes(r *gin.Engine, metricsEnabled bool) {
	r.GET("/ping", h.Ping)
	if metricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/rooms", h.ListRooms)
		v1.GET("/rooms/:id/recording", h.GetRecording)
	}
}

func (h *Handler) Ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

func (h *Handler) ListRooms(c *gin.Context) {
	rooms := h.rooms.ListActiveRooms()
	if rooms == nil {
		rooms = []domain.RoomInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *Handler) GetRecording(c *gin.Context) {
	code := strings.ToUpper(strings.TrimSpace(c.Param("id")))
	if err := validation.ValidateRoomCode(code, domain.RoomCodeLength); err != nil {
		respondError(c, apperrors.NewInvalidInputError("invalid room code"))
		return
	}
	roomID := domain.RoomID(code)

	if !h.rooms.RoomExists(roomID) {
		respondError(c, apperrors.NewNotFoundError("room"))
		return
	}

	info, active := h.recorder.RecordingInfo(roomID)
	if !active {
		c.JSON(http.StatusOK, domain.RecordingInfo{RoomID: roomID, Active: false})
		return
	}
	c.JSON(http.StatusOK, info)
}

func respondError(c *gin.Context, err error) {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message, "code": appErr.Code})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
