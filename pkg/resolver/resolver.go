// Package resolver decides what to do with a comment. It is a pure function
// of the comment and a configuration snapshot; executing the decision is left
// to the dispatcher.
package resolver

import (
	"slices"
	"strings"

	"igdmbot/pkg/config"
	"igdmbot/pkg/keywords"
	"igdmbot/pkg/models"
)

// Kind is the resolved action class.
type Kind int

const (
	NoAction Kind = iota
	SendDirectMessage
	PostPublicReply
)

func (k Kind) String() string {
	switch k {
	case SendDirectMessage:
		return "send_direct_message"
	case PostPublicReply:
		return "post_public_reply"
	default:
		return "no_action"
	}
}

// ReplyVariant selects the public reply text.
type ReplyVariant string

const (
	// VariantEncouragement invites the commenter to use a consent phrase.
	VariantEncouragement ReplyVariant = "encouragement"
	// VariantConsentFallback is posted when a direct message could not be sent.
	VariantConsentFallback ReplyVariant = "consent_fallback"
)

// Decision is the resolver output.
type Decision struct {
	Kind     Kind
	Variant  ReplyVariant
	Strategy config.Strategy

	// Keyword is the matched general keyword, empty for a no-match.
	Keyword         string
	ConsentKeyword  string
	InterestKeyword string

	// Reason is the action to record when Kind is NoAction.
	Reason models.Action
}

// RecordedKeyword is the keyword stored with the processed record: the
// consent phrase when one triggered the message, the general keyword otherwise.
func (d Decision) RecordedKeyword() string {
	if d.ConsentKeyword != "" {
		return d.ConsentKeyword
	}
	return d.Keyword
}

// SuccessAction is the action recorded when the decision executes cleanly.
func (d Decision) SuccessAction() models.Action {
	switch d.Kind {
	case SendDirectMessage:
		if d.Strategy == config.StrategyAnyKeyword {
			return models.ActionDirectDMSentAnyKeyword
		}
		return models.ActionDirectDMSentWithConsent
	case PostPublicReply:
		if d.Variant == VariantConsentFallback {
			return models.ActionCommentReplyFallback
		}
		return models.ActionEncouragedToDM
	default:
		return d.Reason
	}
}

// Resolve maps a comment to a decision under the snapshot's keyword sets,
// strategy and monitored-post selection.
func Resolve(c models.Comment, snap *config.Config) Decision {
	strategy := snap.Keywords.Strategy
	if !IsMonitoredPost(c.PostID, snap.Monitoring) {
		return Decision{Kind: NoAction, Strategy: strategy, Reason: models.ActionPostNotMonitored}
	}

	general, ok := keywords.Match(c.Text, snap.Keywords.General)
	if !ok {
		return Decision{Kind: NoAction, Strategy: strategy, Reason: models.ActionNoKeywordMatch}
	}

	d := Decision{Strategy: strategy, Keyword: general}
	d.InterestKeyword, _ = keywords.Match(c.Text, snap.Keywords.Interest)

	if strategy == config.StrategyAnyKeyword {
		d.Kind = SendDirectMessage
		return d
	}

	if consent, ok := keywords.Match(c.Text, snap.Keywords.Consent); ok {
		d.Kind = SendDirectMessage
		d.ConsentKeyword = consent
		return d
	}

	d.Kind = PostPublicReply
	d.Variant = VariantEncouragement
	return d
}

// Fallback returns the consent-fallback reply decision that follows a failed
// direct message.
func (d Decision) Fallback() Decision {
	f := d
	f.Kind = PostPublicReply
	f.Variant = VariantConsentFallback
	return f
}

// IsMonitoredPost reports whether comments on postID should be acted on.
// An empty id set means every post is monitored. Webhook events only carry
// the media id, so this is the id check; the caption based filters live in
// PostFilter, and a polling cycle adds the posts it selected to its snapshot
// with WithMonitoredPosts.
func IsMonitoredPost(postID string, m config.MonitoringConfig) bool {
	if m.MonitorAllPosts || len(m.PostIDs) == 0 {
		return true
	}
	return slices.Contains(m.PostIDs, postID)
}

// WithMonitoredPosts adds the ids of posts picked by a PostFilter to the
// snapshot's monitored set. snap is modified in place; callers pass their own
// per-cycle copy.
func WithMonitoredPosts(snap *config.Config, posts []models.Post) *config.Config {
	if snap.Monitoring.MonitorAllPosts {
		return snap
	}
	for _, p := range posts {
		if !slices.Contains(snap.Monitoring.PostIDs, p.ID) {
			snap.Monitoring.PostIDs = append(snap.Monitoring.PostIDs, p.ID)
		}
	}
	return snap
}

// RenderMessage substitutes {link} and {username} in a template.
func RenderMessage(template, link, username string) string {
	return strings.NewReplacer("{link}", link, "{username}", username).Replace(template)
}

// MessageText returns the rendered text for the decision.
func MessageText(d Decision, c models.Comment, msgs config.MessageConfig) string {
	template := msgs.DirectMessage
	if d.Kind == PostPublicReply {
		template = msgs.EncouragementReply
		if d.Variant == VariantConsentFallback {
			template = msgs.ConsentFallbackReply
		}
	}
	return RenderMessage(template, msgs.DefaultLink, c.AuthorUsername)
}
