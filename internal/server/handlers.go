package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"igdmbot/internal/worker"
	"igdmbot/pkg/config"
	"igdmbot/pkg/keywords"
	"igdmbot/pkg/models"
)

// GET /api/config
func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Config.Snapshot())
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Version   string      `json:"version"`
	Uptime    string      `json:"uptime"`
	Mode      string      `json:"mode"`
	Auth      interface{} `json:"auth,omitempty"`
	Governor  interface{} `json:"governor,omitempty"`
	Webhook   interface{} `json:"webhook,omitempty"`
	Workers   interface{} `json:"workers,omitempty"`
	LastCycle interface{} `json:"last_cycle,omitempty"`
}

// GET /api/status
func (s *Server) getStatus(c *gin.Context) {
	snap := s.deps.Config.Snapshot()
	resp := StatusResponse{
		Version: s.deps.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Mode:    snap.ResolvedMode(),
	}
	if s.deps.Auth != nil {
		resp.Auth = s.deps.Auth.Status()
	}
	if s.deps.Governor != nil {
		resp.Governor = s.deps.Governor.Status()
	}
	if s.deps.Webhook != nil {
		resp.Webhook = s.deps.Webhook.Stats()
	}
	if s.deps.Pool != nil {
		resp.Workers = s.deps.Pool.Stats()
	}
	if s.deps.Monitor != nil {
		if r := s.deps.Monitor.LastReport(); r != nil {
			resp.LastCycle = r
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/stats
func (s *Server) getStats(c *gin.Context) {
	stats, err := s.deps.Store.Stats(c.Request.Context())
	if err != nil {
		s.internalError(c, "Failed to load stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GET /api/processed?limit=N
func (s *Server) getProcessed(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	recs, err := s.deps.Store.RecentProcessed(c.Request.Context(), limit)
	if err != nil {
		s.internalError(c, "Failed to list processed comments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": recs, "count": len(recs)})
}

// GET /api/processed/:id/messages
func (s *Server) getSentMessages(c *gin.Context) {
	msgs, err := s.deps.Store.SentMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, "Failed to list sent messages", err)
		return
	}
	if msgs == nil {
		msgs = []models.SentMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"items": msgs, "count": len(msgs)})
}

type keywordsRequest struct {
	General  *[]string `json:"general"`
	Consent  *[]string `json:"consent"`
	Interest *[]string `json:"interest"`
}

// POST /api/keywords
func (s *Server) updateKeywords(c *gin.Context) {
	var req keywordsRequest
	if !bindJSON(c, &req) {
		return
	}
	s.update(c, "keywords", func(cfg *config.Config) error {
		if req.General != nil {
			cfg.Keywords.General = keywords.Normalize(*req.General)
		}
		if req.Consent != nil {
			cfg.Keywords.Consent = keywords.Normalize(*req.Consent)
		}
		if req.Interest != nil {
			cfg.Keywords.Interest = keywords.Normalize(*req.Interest)
		}
		return nil
	}, func(cfg *config.Config) interface{} { return cfg.Keywords })
}

type strategyRequest struct {
	Strategy config.Strategy `json:"strategy"`
}

// POST /api/strategy
func (s *Server) updateStrategy(c *gin.Context) {
	var req strategyRequest
	if !bindJSON(c, &req) {
		return
	}
	if !req.Strategy.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("strategy must be %q or %q", config.StrategyConsentRequired, config.StrategyAnyKeyword)})
		return
	}
	s.update(c, "strategy", func(cfg *config.Config) error {
		cfg.Keywords.Strategy = req.Strategy
		return nil
	}, func(cfg *config.Config) interface{} { return gin.H{"strategy": cfg.Keywords.Strategy} })
}

type monitoringRequest struct {
	MonitorAllPosts      *bool     `json:"monitor_all_posts"`
	PostIDs              *[]string `json:"post_ids"`
	RequiredHashtags     *[]string `json:"required_hashtags"`
	RequiredCaptionWords *[]string `json:"required_caption_words"`
	MaxPostAgeDays       *int      `json:"max_post_age_days"`
	OnlyPostsWithLinks   *bool     `json:"only_posts_with_links"`
	MaxPostsToCheck      *int      `json:"max_posts_to_check"`
	CheckInterval        *string   `json:"check_interval"`
}

// POST /api/monitoring
func (s *Server) updateMonitoring(c *gin.Context) {
	var req monitoringRequest
	if !bindJSON(c, &req) {
		return
	}
	var interval time.Duration
	if req.CheckInterval != nil {
		d, err := time.ParseDuration(*req.CheckInterval)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "check_interval must be a duration such as 5m"})
			return
		}
		interval = d
	}

	s.update(c, "monitoring", func(cfg *config.Config) error {
		m := &cfg.Monitoring
		if req.MonitorAllPosts != nil {
			m.MonitorAllPosts = *req.MonitorAllPosts
		}
		if req.PostIDs != nil {
			m.PostIDs = cleanList(*req.PostIDs)
		}
		if req.RequiredHashtags != nil {
			m.RequiredHashtags = cleanList(*req.RequiredHashtags)
		}
		if req.RequiredCaptionWords != nil {
			m.RequiredCaptionWords = cleanList(*req.RequiredCaptionWords)
		}
		if req.MaxPostAgeDays != nil {
			m.MaxPostAgeDays = *req.MaxPostAgeDays
		}
		if req.OnlyPostsWithLinks != nil {
			m.OnlyPostsWithLinks = *req.OnlyPostsWithLinks
		}
		if req.MaxPostsToCheck != nil {
			m.MaxPostsToCheck = *req.MaxPostsToCheck
		}
		if req.CheckInterval != nil {
			m.CheckInterval = interval
		}
		return nil
	}, func(cfg *config.Config) interface{} { return cfg.Monitoring })
}

type messagesRequest struct {
	DirectMessage        *string `json:"direct_message"`
	DefaultLink          *string `json:"default_link"`
	EncouragementReply   *string `json:"encouragement_reply"`
	ConsentFallbackReply *string `json:"consent_fallback_reply"`
	EnableDirectDM       *bool   `json:"enable_direct_dm"`
}

// POST /api/messages
func (s *Server) updateMessages(c *gin.Context) {
	var req messagesRequest
	if !bindJSON(c, &req) {
		return
	}
	s.update(c, "messages", func(cfg *config.Config) error {
		m := &cfg.Messages
		if req.DirectMessage != nil {
			m.DirectMessage = *req.DirectMessage
		}
		if req.DefaultLink != nil {
			m.DefaultLink = *req.DefaultLink
		}
		if req.EncouragementReply != nil {
			m.EncouragementReply = *req.EncouragementReply
		}
		if req.ConsentFallbackReply != nil {
			m.ConsentFallbackReply = *req.ConsentFallbackReply
		}
		if req.EnableDirectDM != nil {
			m.EnableDirectDM = *req.EnableDirectDM
		}
		return nil
	}, func(cfg *config.Config) interface{} { return cfg.Messages })
}

// GET /api/webhook/stats
func (s *Server) webhookStats(c *gin.Context) {
	if s.deps.Webhook == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "webhook ingress is not enabled"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Webhook.Stats())
}

// POST /api/webhook/activate
func (s *Server) activateWebhook(c *gin.Context) {
	if s.deps.Webhook == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "webhook ingress is not enabled"})
		return
	}
	s.deps.Webhook.Activate()
	c.JSON(http.StatusOK, gin.H{"active": true})
}

// POST /api/webhook/deactivate
func (s *Server) deactivateWebhook(c *gin.Context) {
	if s.deps.Webhook == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "webhook ingress is not enabled"})
		return
	}
	s.deps.Webhook.Deactivate()
	c.JSON(http.StatusOK, gin.H{"active": false})
}

type testCommentRequest struct {
	Text     string `json:"text" binding:"required"`
	Username string `json:"username"`
	UserID   string `json:"user_id"`
	PostID   string `json:"post_id"`
}

// POST /api/webhook/test queues a synthetic comment through the worker pool.
func (s *Server) testWebhook(c *gin.Context) {
	if s.deps.Pool == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "webhook ingress is not enabled"})
		return
	}
	var req testCommentRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Username == "" {
		req.Username = "testuser"
	}
	if req.UserID == "" {
		req.UserID = "test_user"
	}
	if req.PostID == "" {
		req.PostID = "test_post"
	}

	now := time.Now()
	comment := models.Comment{
		ID:             "test_comment_" + strconv.FormatInt(now.UnixNano(), 10),
		PostID:         req.PostID,
		AuthorID:       req.UserID,
		AuthorUsername: req.Username,
		Text:           req.Text,
		Timestamp:      now,
	}
	if err := s.deps.Pool.TrySubmit(worker.Job{Comment: comment, Source: "admin_test", Received: now}); err != nil {
		status := http.StatusServiceUnavailable
		if !errors.Is(err, worker.ErrQueueFull) && !errors.Is(err, worker.ErrStopped) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true, "comment": comment})
}

// update runs fn through the config holder and answers with view(updated).
func (s *Server) update(c *gin.Context, section string, fn func(*config.Config) error, view func(*config.Config) interface{}) {
	updated, err := s.deps.Config.Update(fn)
	if err != nil {
		s.logger.WithError(err).WithField("section", section).Warn("Rejected configuration update")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.logger.WithField("section", section).Info("Configuration updated")
	c.JSON(http.StatusOK, view(updated))
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.WithError(err).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// cleanList trims entries and drops blanks.
func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
