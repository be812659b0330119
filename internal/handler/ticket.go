package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"supportdesk/internal/middleware"
	"supportdesk/internal/model"
	"supportdesk/internal/store"
)

type TicketHandler struct {
	Store store.TicketStore
	// Verifier authorises support-attributed messages on the public endpoint.
	Verifier middleware.TokenVerifier
}

type createTicketBody struct {
	ClientName string `json:"clientName"`
}

type messageBody struct {
	Content string       `json:"content"`
	Sender  model.Sender `json:"sender"`
}

type statusBody struct {
	Status model.Status `json:"status"`
}

func (h *TicketHandler) Create(c *gin.Context) {
	var body createTicketBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ticket, err := h.Store.CreateTicket(c.Request.Context(), body.ClientName)
	if err != nil {
		writeStoreError(c, "create ticket", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticketId": ticket.ID, "clientName": ticket.ClientName})
}

func (h *TicketHandler) Get(c *gin.Context) {
	conv, err := h.Store.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeStoreError(c, "get ticket", err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *TicketHandler) List(c *gin.Context) {
	convs, err := h.Store.ListTickets(c.Request.Context())
	if err != nil {
		writeStoreError(c, "list tickets", err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *TicketHandler) SetStatus(c *gin.Context) {
	var body statusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.Store.SetStatus(c.Request.Context(), c.Param("id"), body.Status); err != nil {
		writeStoreError(c, "update ticket", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// PostMessage appends a message from the public side. Messages attributed to
// support additionally need a valid staff token.
func (h *TicketHandler) PostMessage(c *gin.Context) {
	var body messageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.Sender == "" {
		body.Sender = model.SenderUser
	}
	if body.Sender == model.SenderSupport {
		token := middleware.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Access denied"})
			return
		}
		if h.Verifier == nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid token"})
			return
		}
		if _, err := h.Verifier.Verify(token); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid token"})
			return
		}
	}

	h.appendMessage(c, body.Content, body.Sender)
}

func (h *TicketHandler) Reply(c *gin.Context) {
	var body messageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	h.appendMessage(c, body.Content, model.SenderSupport)
}

func (h *TicketHandler) appendMessage(c *gin.Context, content string, sender model.Sender) {
	msg, err := h.Store.AppendMessage(c.Request.Context(), c.Param("id"), content, sender)
	if err != nil {
		writeStoreError(c, "append message", err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func writeStoreError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
	case errors.Is(err, store.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("handler: %s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
	}
}
