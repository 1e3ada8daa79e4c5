package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igdmbot/pkg/config"
	"igdmbot/pkg/models"
)

func snapshot(strategy config.Strategy) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Keywords.Strategy = strategy
	cfg.Monitoring.PostIDs = []string{"p1"}
	return cfg
}

func comment(text string) models.Comment {
	return models.Comment{ID: "c1", PostID: "p1", AuthorID: "u1", AuthorUsername: "alice", Text: text}
}

func TestResolveConsentRequired(t *testing.T) {
	snap := snapshot(config.StrategyConsentRequired)

	tests := []struct {
		name       string
		text       string
		wantKind   Kind
		wantAction models.Action
		wantKw     string
	}{
		{"interest only gets encouragement", "interested, tell me more", PostPublicReply, models.ActionEncouragedToDM, "interested"},
		{"consent phrase gets a DM", "dm me the link", SendDirectMessage, models.ActionDirectDMSentWithConsent, "dm me"},
		{"consent is case insensitive", "SEND LINK please", SendDirectMessage, models.ActionDirectDMSentWithConsent, "send link"},
		{"no keyword", "love this", NoAction, models.ActionNoKeywordMatch, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Resolve(comment(tt.text), snap)
			assert.Equal(t, tt.wantKind, d.Kind)
			assert.Equal(t, tt.wantAction, d.SuccessAction())
			assert.Equal(t, tt.wantKw, d.RecordedKeyword())
			assert.NotEqual(t, models.ActionDirectDMSentAnyKeyword, d.SuccessAction())
		})
	}
}

func TestResolveEncouragementCarriesInterest(t *testing.T) {
	d := Resolve(comment("details on price?"), snapshot(config.StrategyConsentRequired))
	require.Equal(t, PostPublicReply, d.Kind)
	assert.Equal(t, VariantEncouragement, d.Variant)
	assert.Equal(t, "details", d.Keyword)
	assert.Equal(t, "details", d.InterestKeyword)
}

func TestResolveAnyKeyword(t *testing.T) {
	snap := snapshot(config.StrategyAnyKeyword)

	for _, text := range []string{"info?", "send link", "INTERESTED", "dm me"} {
		d := Resolve(comment(text), snap)
		assert.Equal(t, SendDirectMessage, d.Kind, text)
		assert.Equal(t, models.ActionDirectDMSentAnyKeyword, d.SuccessAction(), text)
	}

	d := Resolve(comment("nice"), snap)
	assert.Equal(t, NoAction, d.Kind)
}

func TestResolveFallback(t *testing.T) {
	d := Resolve(comment("send link"), snapshot(config.StrategyAnyKeyword))
	f := d.Fallback()

	assert.Equal(t, PostPublicReply, f.Kind)
	assert.Equal(t, VariantConsentFallback, f.Variant)
	assert.Equal(t, models.ActionCommentReplyFallback, f.SuccessAction())
	assert.Equal(t, "send link", f.RecordedKeyword())
	assert.Equal(t, SendDirectMessage, d.Kind, "original decision is unchanged")
}

func TestResolveMonitoredPosts(t *testing.T) {
	snap := snapshot(config.StrategyAnyKeyword)

	other := comment("send link")
	other.PostID = "p2"
	d := Resolve(other, snap)
	assert.Equal(t, NoAction, d.Kind)
	assert.Equal(t, models.ActionPostNotMonitored, d.SuccessAction())

	snap.Monitoring.MonitorAllPosts = true
	assert.Equal(t, SendDirectMessage, Resolve(other, snap).Kind)

	snap.Monitoring.MonitorAllPosts = false
	snap.Monitoring.PostIDs = nil
	assert.Equal(t, SendDirectMessage, Resolve(other, snap).Kind, "empty id set monitors everything")
}

func TestWithMonitoredPosts(t *testing.T) {
	snap := snapshot(config.StrategyAnyKeyword)
	WithMonitoredPosts(snap, []models.Post{{ID: "p1"}, {ID: "p9"}})
	assert.Equal(t, []string{"p1", "p9"}, snap.Monitoring.PostIDs)
}

func TestMessageText(t *testing.T) {
	msgs := config.DefaultConfig().Messages
	msgs.DefaultLink = "https://shop.example/x"
	c := comment("send link")

	dm := MessageText(Decision{Kind: SendDirectMessage}, c, msgs)
	assert.Contains(t, dm, "https://shop.example/x")
	assert.NotContains(t, dm, "{link}")

	enc := MessageText(Decision{Kind: PostPublicReply, Variant: VariantEncouragement}, c, msgs)
	assert.Contains(t, enc, "@alice")

	fb := MessageText(Decision{Kind: PostPublicReply, Variant: VariantConsentFallback}, c, msgs)
	assert.Equal(t, RenderMessage(msgs.ConsentFallbackReply, msgs.DefaultLink, "alice"), fb)
}

func TestPostFilter(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-24 * time.Hour)
	stale := now.AddDate(0, 0, -30)

	tests := []struct {
		name   string
		cfg    config.MonitoringConfig
		post   models.Post
		want   bool
		reason Reason
	}{
		{"monitor all", config.MonitoringConfig{MonitorAllPosts: true}, models.Post{ID: "x", TakenAt: stale}, true, ReasonMonitorAll},
		{"no filters", config.MonitoringConfig{}, models.Post{ID: "x", TakenAt: fresh}, true, ReasonDefault},
		{"explicit id", config.MonitoringConfig{PostIDs: []string{"x"}}, models.Post{ID: "x"}, true, ReasonPostID},
		{"explicit short code", config.MonitoringConfig{PostIDs: []string{"Cabc"}}, models.Post{ID: "x", Code: "Cabc"}, true, ReasonPostID},
		{"id list miss", config.MonitoringConfig{PostIDs: []string{"y"}}, models.Post{ID: "x", TakenAt: fresh}, false, ReasonNoCriteriaMet},
		{"hashtag", config.MonitoringConfig{RequiredHashtags: []string{"#Sale"}}, models.Post{Caption: "big #sale today"}, true, ReasonHashtag},
		{"caption word", config.MonitoringConfig{RequiredCaptionWords: []string{"giveaway"}}, models.Post{Caption: "GIVEAWAY time"}, true, ReasonCaptionWord},
		{"too old", config.MonitoringConfig{MaxPostAgeDays: 7}, models.Post{TakenAt: stale}, false, ReasonTooOld},
		{"fresh enough", config.MonitoringConfig{MaxPostAgeDays: 7}, models.Post{TakenAt: fresh}, true, ReasonDefault},
		{"needs link", config.MonitoringConfig{OnlyPostsWithLinks: true}, models.Post{Caption: "just a photo", TakenAt: fresh}, false, ReasonNoLink},
		{"has link in bio", config.MonitoringConfig{OnlyPostsWithLinks: true}, models.Post{Caption: "Link in bio!", TakenAt: fresh}, true, ReasonDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewPostFilter(tt.cfg)
			f.now = func() time.Time { return now }
			ok, reason := f.Allow(tt.post)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestPostFilterSelect(t *testing.T) {
	f := NewPostFilter(config.MonitoringConfig{PostIDs: []string{"a", "c"}})
	got := f.Select([]models.Post{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}
