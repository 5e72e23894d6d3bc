package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/dkeye/VoiceCaptions/internal/adapters/signal"
	"github.com/dkeye/VoiceCaptions/internal/adapters/speech"
	"github.com/dkeye/VoiceCaptions/internal/app/orch"
	"github.com/dkeye/VoiceCaptions/internal/config"
	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const GroupWSPath = "/ws/group"

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, speechSvc *speech.Service) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoiceSessions", store))
	r.Use(ClientTokenMiddleware())

	if _, err := os.Stat(cfg.StaticPath); err == nil {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	issuer := NewTokenIssuer(cfg.Hub.JWTSecret, cfg.Hub.Name, cfg.Hub.TokenTTL)
	hub := signal.NewGroupWSController(o, signal.HubConfig{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		RateLimit:  cfg.Hub.RateLimit,
		RateWindow: cfg.Hub.RateWindow,
		SendBuffer: cfg.Hub.SendBuffer,
	})
	h := &handlers{cfg: cfg, orch: o, issuer: issuer, speech: speechSvc}

	log.Info().Str("module", "adapters.http").Str("hub", cfg.Hub.Name).Msg("router setup")

	r.GET("/health", h.health)

	api := r.Group("/api")
	api.POST("/negotiate", h.negotiate)
	api.POST("/speech-token", h.speechToken)
	api.POST("/tts", h.tts)
	api.GET("/groups", h.listGroups)
	api.GET("/groups/:name/members", h.groupMembers)

	r.GET(GroupWSPath, AccessTokenAuth(issuer), func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sub", c.GetString("sub")).Msg("ws group endpoint hit")
		hub.HandleGroup(ctx, c)
	})

	return r
}

type handlers struct {
	cfg    *config.Config
	orch   *orch.Orchestrator
	issuer *TokenIssuer
	speech *speech.Service
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.orch.Registry.Count(),
		"groups":      len(h.orch.Groups.List()),
	})
}

type negotiateRequest struct {
	Username string `json:"username"`
}

// negotiate accepts an optional {"username"} body.
func (h *handlers) negotiate(c *gin.Context) {
	var req negotiateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
	}
	name, err := domain.NormalizeUsername(req.Username)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_name"})
		return
	}
	token, err := h.issuer.Issue(c.GetString("client_token"), name)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("sign access token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token signing failed"})
		return
	}
	u := h.hubURL(c.Request)
	u.RawQuery = url.Values{"access_token": {token}}.Encode()
	c.JSON(http.StatusOK, core.GroupAccess{URL: u.String(), Hub: h.cfg.Hub.Name})
}

func (h *handlers) hubURL(r *http.Request) *url.URL {
	if h.cfg.Hub.PublicURL != "" {
		if u, err := url.Parse(h.cfg.Hub.PublicURL); err == nil {
			u.Path = strings.TrimRight(u.Path, "/") + GroupWSPath
			return u
		}
	}
	scheme := "ws"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "wss"
	}
	return &url.URL{Scheme: scheme, Host: r.Host, Path: GroupWSPath}
}

func (h *handlers) speechToken(c *gin.Context) {
	tok, err := h.speech.IssueToken(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("speech token")
		msg := "token request failed"
		if errors.Is(err, speech.ErrNotConfigured) {
			msg = "speech key/region missing"
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, tok)
}

func (h *handlers) tts(c *gin.Context) {
	var req speech.SynthesisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	audio, format, err := h.speech.Synthesize(c.Request.Context(), req)
	switch {
	case errors.Is(err, speech.ErrEmptyText):
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	case errors.Is(err, speech.ErrNotConfigured):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "speech key/region missing"})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Msg("tts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tts request failed"})
		return
	}
	c.Header("Content-Disposition", `inline; filename="tts.`+format.Ext+`"`)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, format.MIME, audio)
}

func (h *handlers) listGroups(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Groups.List())
}

func (h *handlers) groupMembers(c *gin.Context) {
	g, ok := h.orch.Groups.Get(domain.GroupName(c.Param("name")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"group":   g.Group().Name,
		"count":   g.MemberCount(),
		"members": g.MembersSnapshot(),
	})
}
