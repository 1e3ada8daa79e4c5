package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"igdmbot/pkg/config"
	"igdmbot/pkg/errors"
	"igdmbot/pkg/logger"
	"igdmbot/pkg/models"
	"igdmbot/pkg/session"
)

// webSessionData is the payload stored in session.Session.Data for the web
// binding.
type webSessionData struct {
	SessionID string `json:"sessionid"`
	CSRFToken string `json:"csrftoken,omitempty"`
	UserID    string `json:"ds_user_id,omitempty"`
	MID       string `json:"mid,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// WebGateway talks to the private web endpoints using session cookies.
type WebGateway struct {
	client    *Client
	userAgent string
	logger    logger.Logger

	mu         sync.Mutex
	username   string
	userID     string
	twoFactors map[string]string // username -> pending two_factor_identifier
}

// NewWebGateway creates the cookie based binding.
func NewWebGateway(cfg config.InstagramConfig, log logger.Logger) *WebGateway {
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("gateway", "web")

	base := cfg.WebBaseURL
	if base == "" {
		base = WebBaseURL
	}
	client := NewClient(base, cfg.Timeout, log)
	client.SetHeaders(map[string]string{
		"User-Agent":       cfg.UserAgent,
		"X-IG-App-ID":      WebAppID,
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          base + "/",
		"Origin":           base,
	})

	return &WebGateway{
		client:     client,
		userAgent:  cfg.UserAgent,
		logger:     log,
		username:   cfg.Username,
		userID:     cfg.AccountID,
		twoFactors: make(map[string]string),
	}
}

// Client exposes the transport, for tests.
func (g *WebGateway) Client() *Client { return g.client }

func (g *WebGateway) syncCSRF() {
	if token := g.client.Cookie("csrftoken"); token != "" {
		g.client.SetHeader("X-CSRFToken", token)
	}
}

func (g *WebGateway) restore(sess *session.Session) error {
	if sess == nil || len(sess.Data) == 0 {
		return errors.New(errors.ErrorTypeSessionCorrupt, "empty web session")
	}
	if sess.Kind != "" && sess.Kind != session.KindWeb {
		return errors.Newf(errors.ErrorTypeSessionCorrupt, "session kind %q is not a web session", sess.Kind)
	}
	var data webSessionData
	if err := json.Unmarshal(sess.Data, &data); err != nil {
		return errors.Wrap(errors.ErrorTypeSessionCorrupt, err, "decode web session")
	}
	if data.SessionID == "" {
		return errors.New(errors.ErrorTypeSessionCorrupt, "web session has no sessionid")
	}

	g.client.ClearCookies()
	g.client.SetCookie("sessionid", data.SessionID)
	g.client.SetCookie("csrftoken", data.CSRFToken)
	g.client.SetCookie("ds_user_id", data.UserID)
	g.client.SetCookie("mid", data.MID)
	g.syncCSRF()
	return nil
}

func (g *WebGateway) snapshot(username string) (*session.Session, error) {
	g.mu.Lock()
	if username == "" {
		username = g.username
	}
	userID := g.userID
	g.mu.Unlock()

	data, err := json.Marshal(webSessionData{
		SessionID: g.client.Cookie("sessionid"),
		CSRFToken: g.client.Cookie("csrftoken"),
		UserID:    userID,
		MID:       g.client.Cookie("mid"),
		UserAgent: g.userAgent,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeUnknown, err, "encode web session")
	}
	sess := session.New(session.KindWeb, username, data)
	sess.AccountID = userID
	return sess, nil
}

// whoAmI performs the "current user" call and records the account identity.
func (g *WebGateway) whoAmI(ctx context.Context) (webUser, error) {
	var resp currentUserResponse
	if err := g.client.GetJSON(ctx, currentUserEndpoint, url.Values{"edit": {"true"}}, &resp); err != nil {
		return webUser{}, err
	}
	if err := checkStatusOK(resp.Status, ""); err != nil {
		return webUser{}, err
	}
	if resp.User.id() == "" {
		return webUser{}, errors.New(errors.ErrorTypeInvalidCredentials, "login_required")
	}

	g.mu.Lock()
	g.userID = resp.User.id()
	if resp.User.Username != "" {
		g.username = resp.User.Username
	}
	g.mu.Unlock()
	g.client.SetCookie("ds_user_id", resp.User.id())
	return resp.User, nil
}

// VerifySession restores sess and checks it with one "who am I" call.
func (g *WebGateway) VerifySession(ctx context.Context, sess *session.Session) error {
	if err := g.restore(sess); err != nil {
		return err
	}
	user, err := g.whoAmI(ctx)
	if err != nil {
		return err
	}
	sess.AccountID = user.id()
	if user.Username != "" {
		sess.Username = user.Username
	}
	return nil
}

// LoginWithSessionID adopts a browser session identifier.
func (g *WebGateway) LoginWithSessionID(ctx context.Context, username, sessionID string) (*session.Session, error) {
	g.logger.DebugWithFields("logging in with session id", map[string]interface{}{
		"username": username,
	})

	g.client.ClearCookies()
	g.client.SetCookie("sessionid", sessionID)
	if id := sessionUserID(sessionID); id != "" {
		g.client.SetCookie("ds_user_id", id)
	}

	user, err := g.whoAmI(ctx)
	if err != nil {
		return nil, err
	}
	if user.Username != "" {
		username = user.Username
	}
	return g.snapshot(username)
}

// PasswordLogin performs a web login. A second factor prompt is returned as
// ErrorTypeSecondFactorRequired and remembered for SubmitSecondFactor.
func (g *WebGateway) PasswordLogin(ctx context.Context, username, password string) (*session.Session, error) {
	g.logger.DebugWithFields("logging in with password", map[string]interface{}{
		"username": username,
	})

	g.client.ClearCookies()
	// the login page hands out the csrftoken cookie
	if err := g.client.GetJSON(ctx, loginPageEndpoint, nil, nil); err != nil {
		g.logger.WithError(err).Debug("login page request failed")
	}
	g.syncCSRF()

	form := url.Values{
		"username":             {username},
		"enc_password":         {encPassword(password, time.Now())},
		"queryParams":          {"{}"},
		"optIntoOneTap":        {"false"},
		"trustedDeviceRecords": {"{}"},
	}

	var resp loginResponse
	body, err := g.client.PostForm(ctx, loginEndpoint, form, &resp)
	if err != nil {
		// second factor and checkpoint responses arrive as 400
		if json.Unmarshal(body, &resp) == nil {
			if loginErr := g.loginError(username, resp); loginErr != nil {
				return nil, loginErr
			}
		}
		return nil, err
	}
	if loginErr := g.loginError(username, resp); loginErr != nil {
		return nil, loginErr
	}
	return g.completeLogin(ctx, username, resp)
}

// SubmitSecondFactor answers the pending second factor prompt with code.
func (g *WebGateway) SubmitSecondFactor(ctx context.Context, username, code string) (*session.Session, error) {
	g.mu.Lock()
	identifier := g.twoFactors[username]
	g.mu.Unlock()
	if identifier == "" {
		return nil, errors.New(errors.ErrorTypeSecondFactorRequired, "no pending two_factor_required challenge")
	}
	g.syncCSRF()

	form := url.Values{
		"username":         {username},
		"verificationCode": {code},
		"identifier":       {identifier},
		"queryParams":      {"{}"},
	}

	var resp loginResponse
	body, err := g.client.PostForm(ctx, twoFactorEndpoint, form, &resp)
	if err != nil {
		if json.Unmarshal(body, &resp) == nil && resp.Message != "" {
			return nil, errors.New(errors.ErrorTypeBackupCodeRejected, resp.Message)
		}
		return nil, err
	}
	if !resp.Authenticated {
		msg := resp.Message
		if msg == "" {
			msg = "invalid verification code"
		}
		return nil, errors.New(errors.ErrorTypeBackupCodeRejected, msg)
	}

	g.mu.Lock()
	delete(g.twoFactors, username)
	g.mu.Unlock()
	return g.completeLogin(ctx, username, resp)
}

func (g *WebGateway) loginError(username string, resp loginResponse) error {
	switch {
	case resp.TwoFactorRequired:
		if resp.TwoFactorInfo != nil {
			g.mu.Lock()
			g.twoFactors[username] = resp.TwoFactorInfo.Identifier
			g.mu.Unlock()
		}
		return errors.New(errors.ErrorTypeSecondFactorRequired, "two_factor_required")
	case resp.CheckpointURL != "" || resp.Message == "checkpoint_required" || resp.Message == "challenge_required":
		return errors.New(errors.ErrorTypeChallengeRequired, "challenge_required")
	case resp.Authenticated:
		return nil
	case resp.Status == "ok" && !resp.User:
		return errors.New(errors.ErrorTypeInvalidCredentials, "invalid_user")
	case resp.Status == "ok":
		return errors.New(errors.ErrorTypeInvalidCredentials, "bad_password")
	case resp.Message != "":
		return errors.New(errors.Classify(errors.New(errors.ErrorTypeUnknown, resp.Message)), resp.Message)
	}
	return nil
}

func (g *WebGateway) completeLogin(ctx context.Context, username string, resp loginResponse) (*session.Session, error) {
	if g.client.Cookie("sessionid") == "" {
		return nil, errors.New(errors.ErrorTypeUnknown, "login succeeded without a session cookie")
	}
	g.mu.Lock()
	if resp.UserID != "" {
		g.userID = string(resp.UserID)
	}
	g.username = username
	g.mu.Unlock()
	g.syncCSRF()

	if _, err := g.whoAmI(ctx); err != nil {
		return nil, err
	}
	return g.snapshot(username)
}

func (g *WebGateway) accountID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.userID == "" {
		return "", errors.New(errors.ErrorTypeInvalidCredentials, "login_required: account id unknown")
	}
	return g.userID, nil
}

// FetchRecentPosts returns the newest posts of the logged-in account.
func (g *WebGateway) FetchRecentPosts(ctx context.Context, limit int) ([]models.Post, error) {
	id, err := g.accountID()
	if err != nil {
		return nil, err
	}

	var resp userFeedResponse
	query := url.Values{"count": {strconv.Itoa(clampLimit(limit))}}
	if err := g.client.GetJSON(ctx, userFeedEndpoint(id), query, &resp); err != nil {
		return nil, err
	}
	if err := checkStatusOK(resp.Status, ""); err != nil {
		return nil, err
	}

	posts := make([]models.Post, 0, len(resp.Items))
	for _, item := range resp.Items {
		posts = append(posts, item.toPost())
	}
	if len(posts) > clampLimit(limit) {
		posts = posts[:clampLimit(limit)]
	}
	return posts, nil
}

// FetchComments returns the comments on a post.
func (g *WebGateway) FetchComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var resp commentsResponse
	query := url.Values{"can_support_threading": {"true"}}
	if err := g.client.GetJSON(ctx, mediaCommentsEndpoint(postID), query, &resp); err != nil {
		return nil, err
	}
	if err := checkStatusOK(resp.Status, ""); err != nil {
		return nil, err
	}

	comments := make([]models.Comment, 0, len(resp.Comments))
	for _, c := range resp.Comments {
		comments = append(comments, models.Comment{
			ID:             string(c.PK),
			PostID:         postID,
			AuthorID:       c.User.id(),
			AuthorUsername: c.User.Username,
			Text:           c.Text,
			Timestamp:      time.Unix(c.CreatedAt, 0).UTC(),
		})
	}
	return comments, nil
}

// SendDirectMessage sends a private text message to one user.
func (g *WebGateway) SendDirectMessage(ctx context.Context, recipientID, text string) error {
	recipients, err := recipientUsers(recipientID)
	if err != nil {
		return err
	}
	g.syncCSRF()
	form := url.Values{
		"recipient_users": {recipients},
		"text":            {text},
		"client_context":  {uuid.NewString()},
		"action":          {"send_item"},
	}

	var resp statusResponse
	if _, err := g.client.PostForm(ctx, broadcastEndpoint, form, &resp); err != nil {
		return err
	}
	return checkStatusOK(resp.Status, resp.Message)
}

// recipientUsers encodes the thread participant list, one thread holding
// one user.
func recipientUsers(id string) (string, error) {
	b, err := json.Marshal([][]string{{id}})
	if err != nil {
		return "", fmt.Errorf("failed to encode recipient: %w", err)
	}
	return string(b), nil
}

// PostPublicReply replies to a comment on a post.
func (g *WebGateway) PostPublicReply(ctx context.Context, postID, commentID, text string) error {
	g.syncCSRF()
	form := url.Values{
		"comment_text":          {text},
		"replied_to_comment_id": {commentID},
	}

	var resp statusResponse
	if _, err := g.client.PostForm(ctx, addCommentEndpoint(postID), form, &resp); err != nil {
		return err
	}
	return checkStatusOK(resp.Status, resp.Message)
}

// encPassword formats a password the way the browser login form submits it
// when client-side encryption is not used.
func encPassword(password string, now time.Time) string {
	return fmt.Sprintf("#PWD_INSTAGRAM_BROWSER:0:%d:%s", now.Unix(), password)
}
