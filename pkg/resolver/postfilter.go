package resolver

import (
	"slices"
	"strings"
	"time"

	"igdmbot/pkg/config"
	"igdmbot/pkg/models"
)

var linkIndicators = []string{"http", "www.", ".com", ".org", ".net", "link in bio", "linkinbio"}

func hasCaptionFilters(m config.MonitoringConfig) bool {
	return len(m.RequiredHashtags) > 0 || len(m.RequiredCaptionWords) > 0
}

// PostFilter selects which polled posts have their comments fetched.
type PostFilter struct {
	cfg config.MonitoringConfig
	now func() time.Time
}

// NewPostFilter builds a filter from the monitoring settings.
func NewPostFilter(cfg config.MonitoringConfig) *PostFilter {
	return &PostFilter{cfg: cfg, now: time.Now}
}

// Reason explains a post filter decision, mostly for debug logs.
type Reason string

const (
	ReasonMonitorAll    Reason = "monitor_all"
	ReasonPostID        Reason = "post_id"
	ReasonHashtag       Reason = "hashtag"
	ReasonCaptionWord   Reason = "caption_word"
	ReasonDefault       Reason = "no_filters"
	ReasonTooOld        Reason = "too_old"
	ReasonNoLink        Reason = "no_link"
	ReasonNoCriteriaMet Reason = "no_criteria_met"
)

// Allow reports whether post should be monitored. Explicit ids, hashtags
// and caption words each select a post on their own; the age and link checks
// only reject.
func (f *PostFilter) Allow(post models.Post) (bool, Reason) {
	if f.cfg.MonitorAllPosts {
		return true, ReasonMonitorAll
	}

	if slices.Contains(f.cfg.PostIDs, post.ID) || post.Code != "" && slices.Contains(f.cfg.PostIDs, post.Code) {
		return true, ReasonPostID
	}

	caption := strings.ToLower(post.Caption)
	for _, tag := range f.cfg.RequiredHashtags {
		if tag != "" && strings.Contains(caption, strings.ToLower(tag)) {
			return true, ReasonHashtag
		}
	}
	for _, word := range f.cfg.RequiredCaptionWords {
		if word != "" && strings.Contains(caption, strings.ToLower(word)) {
			return true, ReasonCaptionWord
		}
	}

	if f.cfg.MaxPostAgeDays > 0 && !post.TakenAt.IsZero() {
		cutoff := f.now().AddDate(0, 0, -f.cfg.MaxPostAgeDays)
		if post.TakenAt.Before(cutoff) {
			return false, ReasonTooOld
		}
	}

	if f.cfg.OnlyPostsWithLinks && !containsAny(caption, linkIndicators) {
		return false, ReasonNoLink
	}

	if len(f.cfg.PostIDs) > 0 || hasCaptionFilters(f.cfg) {
		return false, ReasonNoCriteriaMet
	}
	return true, ReasonDefault
}

// Select returns the allowed posts in their original order.
func (f *PostFilter) Select(posts []models.Post) []models.Post {
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if ok, _ := f.Allow(p); ok {
			out = append(out, p)
		}
	}
	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
