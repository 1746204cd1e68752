package api

import (
	"log"
	"net/http"
	"strconv"

	"statusbot/internal/models"
	"statusbot/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultListLimit = 50

type Handler struct {
	Bot       *service.BotService
	Repo      service.TicketRepository
	Sender    service.ReplySender
	Tracker   service.ChatTracker
	Announcer *service.Announcer
}

func NewAPIHandler(bot *service.BotService, repo service.TicketRepository, sender service.ReplySender, tracker service.ChatTracker, announcer *service.Announcer) *Handler {
	return &Handler{
		Bot:       bot,
		Repo:      repo,
		Sender:    sender,
		Tracker:   tracker,
		Announcer: announcer,
	}
}

type webhookRequest struct {
	SenderID int64  `json:"sender_id"`
	ChatID   int64  `json:"chat_id" binding:"required"`
	Text     string `json:"text"`
}

// Webhook receives one inbound chat event, dispatches it and delivers the
// reply through the chat transport. Delivery failure surfaces as 502 with no
// retry and no fallback message to the user.
func (h *Handler) Webhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload"})
		return
	}
	c.Header("X-Correlation-Id", uuid.NewString())

	ctx := c.Request.Context()
	if err := h.Tracker.TrackChat(ctx, req.ChatID); err != nil {
		// Tracking is best effort; the reply still goes out.
		log.Printf("Failed to track chat %d: %v", req.ChatID, err)
	}

	reply := h.Bot.Dispatch(ctx, models.InboundMessage{
		SenderID: req.SenderID,
		ChatID:   req.ChatID,
		Text:     req.Text,
	})
	messageID, err := h.Sender.SendReply(ctx, reply.ChatID, reply.Text)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply, "message_id": messageID})
}

// ListTickets returns up to limit tickets, optionally filtered by exact
// status match.
func (h *Handler) ListTickets(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	var tickets []models.Ticket
	var err error
	if status := c.Query("status"); status != "" {
		tickets, err = h.Repo.FetchByStatus(c.Request.Context(), status, limit)
	} else {
		tickets, err = h.Repo.FetchAll(c.Request.Context(), limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

// GetTicket returns a single ticket by id, 404 when absent.
func (h *Handler) GetTicket(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}
	ticket, err := h.Repo.FetchByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ticket == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

func (h *Handler) StartAnnouncer(c *gin.Context) {
	if h.Announcer.IsRunning() {
		c.JSON(http.StatusOK, gin.H{"message": "Announcer already running"})
		return
	}
	_ = h.Announcer.Start()
	c.JSON(http.StatusOK, gin.H{"message": "Announcer started"})
}

func (h *Handler) StopAnnouncer(c *gin.Context) {
	if !h.Announcer.IsRunning() {
		c.JSON(http.StatusOK, gin.H{"message": "Announcer already stopped"})
		return
	}
	_ = h.Announcer.Stop()
	c.JSON(http.StatusOK, gin.H{"message": "Announcer stopped"})
}
