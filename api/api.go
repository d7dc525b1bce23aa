package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"

	"hearth/agent"
	"hearth/common"
	"hearth/llm"
	"hearth/logger"
)

// defaultSystemPrompt frames the assistant for smart-home turns when the
// config does not supply its own prompt.
const defaultSystemPrompt = "You are a voice assistant for a smart home. Answer briefly and helpfully. Use the available tools to control devices when the user asks for an action."

type Controller struct {
	orchestrator *agent.Orchestrator
	memory       *agent.ConversationMemory
	config       common.Config
	systemPrompt string
}

func NewController(orchestrator *agent.Orchestrator, memory *agent.ConversationMemory, config common.Config) Controller {
	return Controller{
		orchestrator: orchestrator,
		memory:       memory,
		config:       config,
		systemPrompt: defaultSystemPrompt,
	}
}

// RunServer starts the HTTP API in a goroutine and returns the server handle
// for graceful shutdown.
func RunServer(ctrl Controller) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := DefineRoutes(ctrl)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", ctrl.config.ServerPort),
		Handler: router.Handler(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log := logger.Get()
			log.Fatal().Err(err).Msg("failed to start API server")
		}
	}()

	return server
}

func DefineRoutes(ctrl Controller) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.ForwardedByClientIP = true
	r.SetTrustedProxies(nil)

	v1 := r.Group("/api/v1")
	v1.GET("/status", ctrl.StatusHandler)
	v1.POST("/conversations", ctrl.CreateConversationHandler)

	conversationRoutes := v1.Group("/conversations/:id")
	conversationRoutes.POST("/turns", ctrl.TurnHandler)
	conversationRoutes.GET("/history", ctrl.HistoryHandler)
	conversationRoutes.DELETE("", ctrl.DeleteConversationHandler)

	return r
}

func (ctrl *Controller) ErrorHandler(c *gin.Context, status int, err error) {
	log := logger.Get()
	log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(status, gin.H{"error": err.Error()})
}

func (ctrl *Controller) StatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"pending": ctrl.orchestrator.Store().Len(),
	})
}

// CreateConversationHandler mints a fresh conversation id. Callers may also
// invent their own ids; this endpoint just provides a collision-free default.
func (ctrl *Controller) CreateConversationHandler(c *gin.Context) {
	c.JSON(http.StatusCreated, gin.H{"id": "conv_" + ksuid.New().String()})
}

type turnRequest struct {
	Text string `json:"text"`
}

// TurnHandler runs one conversational turn. A turn on a conversation with an
// outstanding background answer is treated as a continuation: the text then
// steers the wait instead of starting new work.
func (ctrl *Controller) TurnHandler(c *gin.Context) {
	conversationId := c.Param("id")

	var request turnRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, fmt.Errorf("invalid turn request: %w", err))
		return
	}
	if strings.TrimSpace(request.Text) == "" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("turn text must not be empty"))
		return
	}

	continuing := ctrl.orchestrator.Store().Has(conversationId)
	if !continuing {
		ctrl.memory.Append(conversationId, llm.UserMessage(request.Text))
	}

	messages := append(
		[]llm.ChatMessage{llm.SystemMessage(ctrl.systemPrompt)},
		ctrl.memory.History(conversationId)...,
	)

	result, err := ctrl.orchestrator.ProcessTurn(c.Request.Context(), conversationId, request.Text, messages)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}

	if !result.Pending {
		ctrl.memory.Append(conversationId, llm.AssistantMessage(result.Text, nil))
	}

	c.JSON(http.StatusOK, result)
}

func (ctrl *Controller) HistoryHandler(c *gin.Context) {
	conversationId := c.Param("id")
	c.JSON(http.StatusOK, gin.H{
		"id":       conversationId,
		"messages": ctrl.memory.History(conversationId),
	})
}

func (ctrl *Controller) DeleteConversationHandler(c *gin.Context) {
	conversationId := c.Param("id")
	ctrl.memory.Clear(conversationId)
	if entry, ok := ctrl.orchestrator.Store().Claim(conversationId); ok {
		entry.Cancel()
	}
	c.Status(http.StatusNoContent)
}
