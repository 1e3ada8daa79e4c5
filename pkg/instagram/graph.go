package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"igdmbot/pkg/config"
	"igdmbot/pkg/errors"
	"igdmbot/pkg/logger"
	"igdmbot/pkg/models"
	"igdmbot/pkg/session"
)

const (
	graphProfileFields = "id,username,account_type,media_count"
	graphMediaFields   = "id,caption,media_type,permalink,timestamp,comments_count"
	graphCommentFields = "id,text,username,timestamp,from{id,username}"
)

// graphSessionData is the payload stored in session.Session.Data for the
// Graph binding.
type graphSessionData struct {
	AccessToken string    `json:"access_token"`
	AccountID   string    `json:"account_id"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// GraphGateway talks to the official Graph API with a bearer token.
type GraphGateway struct {
	client  *Client
	version string
	logger  logger.Logger

	mu        sync.RWMutex
	token     string
	accountID string
	username  string
	expiresAt time.Time
}

// NewGraphGateway creates the token based binding.
func NewGraphGateway(cfg config.InstagramConfig, log logger.Logger) *GraphGateway {
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("gateway", "graph")

	base := cfg.GraphURL
	if base == "" {
		base = GraphBaseURL
	}
	client := NewClient(base, cfg.Timeout, log)
	client.decodeErr = graphError

	g := &GraphGateway{
		client:    client,
		version:   cfg.APIVersion,
		logger:    log,
		accountID: cfg.AccountID,
		username:  cfg.Username,
	}
	g.setToken(cfg.AccessToken)
	return g
}

// Client exposes the transport, for tests.
func (g *GraphGateway) Client() *Client { return g.client }

func (g *GraphGateway) setToken(token string) {
	g.mu.Lock()
	g.token = token
	g.mu.Unlock()
	if token != "" {
		g.client.SetHeader("Authorization", "Bearer "+token)
	}
}

func (g *GraphGateway) account() (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.accountID == "" || g.token == "" {
		return "", errors.New(errors.ErrorTypeInvalidCredentials, "access token and account id are required")
	}
	return g.accountID, nil
}

func (g *GraphGateway) profile(ctx context.Context, accountID string) (graphProfile, error) {
	var p graphProfile
	err := g.client.GetJSON(ctx, graphPath(g.version, accountID), url.Values{"fields": {graphProfileFields}}, &p)
	if err != nil {
		return p, err
	}
	if p.ID == "" {
		return p, errors.New(errors.ErrorTypeInvalidCredentials, "token did not resolve to an account")
	}
	return p, nil
}

func (g *GraphGateway) snapshot() (*session.Session, error) {
	g.mu.RLock()
	data := graphSessionData{AccessToken: g.token, AccountID: g.accountID, ExpiresAt: g.expiresAt}
	username := g.username
	g.mu.RUnlock()

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeUnknown, err, "encode graph session")
	}
	sess := session.New(session.KindGraph, username, raw)
	sess.AccountID = data.AccountID
	return sess, nil
}

// ValidateToken checks the token with a profile fetch of accountID.
func (g *GraphGateway) ValidateToken(ctx context.Context, accountID, accessToken string) (*session.Session, error) {
	g.logger.DebugWithFields("validating access token", map[string]interface{}{
		"account_id": accountID,
	})

	g.mu.Lock()
	g.accountID = accountID
	g.mu.Unlock()
	g.setToken(accessToken)

	p, err := g.profile(ctx, accountID)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.username = p.Username
	g.mu.Unlock()

	g.logger.InfoWithFields("access token valid", map[string]interface{}{
		"account_id":   p.ID,
		"username":     p.Username,
		"account_type": p.AccountType,
	})
	return g.snapshot()
}

// VerifySession restores a stored token and re-validates it.
func (g *GraphGateway) VerifySession(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.Kind != session.KindGraph {
		return errors.New(errors.ErrorTypeSessionCorrupt, "not a graph session")
	}
	var data graphSessionData
	if err := json.Unmarshal(sess.Data, &data); err != nil {
		return errors.Wrap(errors.ErrorTypeSessionCorrupt, err, "decode graph session")
	}
	if data.AccessToken == "" || data.AccountID == "" {
		return errors.New(errors.ErrorTypeSessionCorrupt, "graph session incomplete")
	}

	g.mu.Lock()
	g.accountID = data.AccountID
	g.expiresAt = data.ExpiresAt
	g.mu.Unlock()
	g.setToken(data.AccessToken)

	p, err := g.profile(ctx, data.AccountID)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.username = p.Username
	g.mu.Unlock()
	sess.Username = p.Username
	sess.AccountID = p.ID
	return nil
}

// RefreshToken exchanges the long-lived token for a fresh one and returns
// the updated session for persisting.
func (g *GraphGateway) RefreshToken(ctx context.Context) (*session.Session, error) {
	g.mu.RLock()
	token := g.token
	g.mu.RUnlock()
	if token == "" {
		return nil, errors.New(errors.ErrorTypeInvalidCredentials, "no access token to refresh")
	}

	var resp refreshResponse
	query := url.Values{
		"grant_type":   {"ig_refresh_token"},
		"access_token": {token},
	}
	if err := g.client.GetJSON(ctx, "/refresh_access_token", query, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.New(errors.ErrorTypeParsing, "refresh response without access_token")
	}

	g.mu.Lock()
	if resp.ExpiresIn > 0 {
		g.expiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	}
	g.mu.Unlock()
	g.setToken(resp.AccessToken)

	g.logger.InfoWithFields("access token refreshed", map[string]interface{}{
		"expires_in": resp.ExpiresIn,
	})
	return g.snapshot()
}

// FetchRecentPosts returns the newest media of the account.
func (g *GraphGateway) FetchRecentPosts(ctx context.Context, limit int) ([]models.Post, error) {
	id, err := g.account()
	if err != nil {
		return nil, err
	}

	var resp graphMediaResponse
	query := url.Values{
		"fields": {graphMediaFields},
		"limit":  {strconv.Itoa(clampLimit(limit))},
	}
	if err := g.client.GetJSON(ctx, graphPath(g.version, id, "media"), query, &resp); err != nil {
		return nil, err
	}

	posts := make([]models.Post, 0, len(resp.Data))
	for _, m := range resp.Data {
		posts = append(posts, m.toPost())
	}
	return posts, nil
}

// FetchComments returns the comments on a media object.
func (g *GraphGateway) FetchComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var resp graphCommentsResponse
	query := url.Values{"fields": {graphCommentFields}}
	if err := g.client.GetJSON(ctx, graphPath(g.version, postID, "comments"), query, &resp); err != nil {
		return nil, err
	}

	comments := make([]models.Comment, 0, len(resp.Data))
	for _, c := range resp.Data {
		comment := models.Comment{
			ID:             c.ID,
			PostID:         postID,
			AuthorUsername: c.Username,
			Text:           c.Text,
			Timestamp:      parseGraphTime(c.Timestamp),
		}
		if c.From != nil {
			comment.AuthorID = c.From.ID
			if comment.AuthorUsername == "" {
				comment.AuthorUsername = c.From.Username
			}
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// SendDirectMessage sends a message through the messaging endpoint.
func (g *GraphGateway) SendDirectMessage(ctx context.Context, recipientID, text string) error {
	id, err := g.account()
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"recipient": map[string]string{"id": recipientID},
		"message":   map[string]string{"text": text},
	}
	_, err = g.client.PostJSON(ctx, graphPath(g.version, id, "messages"), payload, nil)
	return err
}

// PostPublicReply replies to a comment. The Graph API addresses replies by
// comment id alone; postID is unused.
func (g *GraphGateway) PostPublicReply(ctx context.Context, postID, commentID, text string) error {
	if _, err := g.account(); err != nil {
		return err
	}
	_, err := g.client.PostForm(ctx, graphPath(g.version, commentID, "replies"), url.Values{"message": {text}}, nil)
	return err
}

// graphError maps Graph API error payloads to typed errors.
func graphError(status int, body []byte) error {
	var payload graphErrorResponse
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error.Message == "" {
		return statusError(status, body)
	}

	e := payload.Error
	msg := fmt.Sprintf("%s (code %d)", e.Message, e.Code)
	var errType errors.ErrorType
	switch e.Code {
	case 4, 17, 32, 613:
		errType = errors.ErrorTypeRateLimit
	case 190, 102:
		errType = errors.ErrorTypeInvalidCredentials
	case 10, 200, 551:
		// permission or recipient problems affect one message, not the account
		errType = errors.ErrorTypeUnknown
	default:
		switch {
		case status == http.StatusTooManyRequests:
			errType = errors.ErrorTypeRateLimit
		case status >= 500:
			errType = errors.ErrorTypeServerError
		default:
			errType = errors.Classify(errors.New(errors.ErrorTypeUnknown, e.Message))
		}
	}
	return errors.New(errType, msg).WithCode(status)
}
