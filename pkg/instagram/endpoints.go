package instagram

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// WebBaseURL is the base URL for the web binding
	WebBaseURL = "https://www.instagram.com"

	// GraphBaseURL is the base URL for the Graph binding
	GraphBaseURL = "https://graph.instagram.com"

	// WebAppID is the application id the web client identifies as
	WebAppID = "936619743392459"

	loginPageEndpoint   = "/api/v1/web/login_page/"
	loginEndpoint       = "/api/v1/web/accounts/login/ajax/"
	twoFactorEndpoint   = "/api/v1/web/accounts/login/ajax/two_factor/"
	currentUserEndpoint = "/api/v1/accounts/current_user/"
	broadcastEndpoint   = "/api/v1/direct_v2/threads/broadcast/text/"

	// DefaultPostLimit is the default number of posts fetched per cycle
	DefaultPostLimit = 5

	// MaxPostLimit is the largest page the feed endpoints accept
	MaxPostLimit = 50
)

func userFeedEndpoint(userID string) string {
	return fmt.Sprintf("/api/v1/feed/user/%s/", url.PathEscape(userID))
}

func mediaCommentsEndpoint(mediaID string) string {
	return fmt.Sprintf("/api/v1/media/%s/comments/", url.PathEscape(mediaID))
}

func addCommentEndpoint(mediaID string) string {
	return fmt.Sprintf("/api/v1/web/comments/%s/add/", url.PathEscape(mediaID))
}

func graphPath(version string, parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	if version != "" {
		escaped = append(escaped, version)
	}
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return "/" + strings.Join(escaped, "/")
}

// clampLimit keeps a page size within what the endpoints accept.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPostLimit
	}
	if limit > MaxPostLimit {
		return MaxPostLimit
	}
	return limit
}

// GetPostURL constructs the URL for a specific post
func GetPostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", WebBaseURL, shortcode)
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	// Instagram usernames can only contain letters, numbers, periods, and underscores
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername removes a leading @ and trailing slashes or spaces
func SanitizeUsername(username string) string {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	return strings.TrimRight(username, "/ ")
}

// sessionUserID extracts the numeric account id that prefixes a sessionid
// cookie ("<id>%3A<token>..." or "<id>:<token>...").
func sessionUserID(sessionID string) string {
	decoded, err := url.QueryUnescape(sessionID)
	if err != nil {
		decoded = sessionID
	}
	id, _, ok := strings.Cut(decoded, ":")
	if !ok {
		return ""
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return id
}
