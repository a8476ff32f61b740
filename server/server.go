// Package server exposes the daemon's RPC entrypoints: firing one channel
// invocation and resolving channel renderers. It is deliberately not a REST
// surface over the entity model.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pombredanne/bipio/engine"
	"github.com/pombredanne/bipio/store"
)

type Server struct {
	log     *slog.Logger
	reg     *engine.Registry
	store   *store.Store
	invoker *engine.Invoker
	domain  string
}

func New(log *slog.Logger, reg *engine.Registry, st *store.Store, invoker *engine.Invoker, domain string) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{log: log, reg: reg, store: st, invoker: invoker, domain: domain}
}

// Routes registers the RPC handlers on g.
func (s *Server) Routes(g *gin.Engine) {
	g.GET("/rpc/describe", s.describe)
	g.POST("/rpc/invoke/:id", s.invoke)
	g.GET("/rpc/render/channel/:id/:renderer", s.render)
}

func (s *Server) describe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"actions":  s.reg.Actions(),
		"emitters": s.reg.Emitters(),
	})
}

type invokeRequest struct {
	Exports      map[string]any       `json:"exports"`
	Transforms   engine.Transforms    `json:"transforms"`
	ContentParts []engine.ContentPart `json:"content_parts"`
}

func (s *Server) invoke(c *gin.Context) {
	ch, ok := s.channel(c)
	if !ok {
		return
	}

	var req invokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "malformed invocation body"})
		return
	}

	client := &engine.Client{
		ID:          uuid.New().String(),
		Host:        c.ClientIP(),
		ContentType: c.ContentType(),
		Date:        time.Now(),
	}

	type outcome struct {
		err     error
		exports map[string]any
	}
	done := make(chan outcome, 1)
	err := s.invoker.Invoke(ch, req.Exports, req.Transforms, client, req.ContentParts, func(err error, exports map[string]any) {
		done <- outcome{err: err, exports: exports}
	})
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
		return
	}

	select {
	case o := <-done:
		if o.err != nil {
			s.log.Error("invocation failed",
				"channel", ch.ID,
				"action", ch.Action,
				"error", o.err)
			c.JSON(http.StatusBadGateway, gin.H{"message": o.err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": client.ID, "exports": o.exports})
	case <-c.Request.Context().Done():
		c.JSON(http.StatusGatewayTimeout, gin.H{"message": "invocation did not complete"})
	}
}

func (s *Server) render(c *gin.Context) {
	ch, ok := s.channel(c)
	if !ok {
		return
	}

	renderer := c.Param("renderer")
	ref := engine.ParseAction(s.reg, ch.Action)
	if !ref.OK() {
		c.JSON(http.StatusConflict, gin.H{"message": "channel action does not resolve"})
		return
	}
	if _, declared := ref.Schema().Renderers[renderer]; !declared {
		c.JSON(http.StatusNotFound, gin.H{"message": "no such renderer"})
		return
	}

	account := engine.AccountInfo{
		User:          engine.User{ID: ch.OwnerID},
		DefaultDomain: s.domain,
	}
	c.JSON(http.StatusOK, gin.H{
		"channel":   ch.ID,
		"repr":      ch.Repr(s.reg),
		"renderers": ch.Renderers(s.reg, account),
	})
}

func (s *Server) channel(c *gin.Context) (*engine.Channel, bool) {
	ch, err := s.store.Channel(c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "channel not found"})
		} else {
			s.log.Error("loading channel", "id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "error loading channel"})
		}
		return nil, false
	}
	if !ch.Available {
		c.JSON(http.StatusConflict, gin.H{"message": "channel is not available"})
		return nil, false
	}
	return ch, true
}
