package instagram

import (
	"encoding/json"
	"strings"
	"time"

	"igdmbot/pkg/models"
)

// flexID accepts ids encoded as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*f = flexID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// Web binding payloads

type webUser struct {
	PK       flexID `json:"pk"`
	ID       flexID `json:"id"`
	Username string `json:"username"`
}

func (u webUser) id() string {
	if u.PK != "" {
		return string(u.PK)
	}
	return string(u.ID)
}

type currentUserResponse struct {
	User   webUser `json:"user"`
	Status string  `json:"status"`
}

type loginResponse struct {
	Authenticated     bool   `json:"authenticated"`
	User              bool   `json:"user"`
	UserID            flexID `json:"userId"`
	Status            string `json:"status"`
	Message           string `json:"message"`
	CheckpointURL     string `json:"checkpoint_url"`
	TwoFactorRequired bool   `json:"two_factor_required"`
	TwoFactorInfo     *struct {
		Identifier string `json:"two_factor_identifier"`
		Username   string `json:"username"`
	} `json:"two_factor_info"`
	ErrorType string `json:"error_type"`
}

type webCaption struct {
	Text string `json:"text"`
}

type webMediaItem struct {
	PK           flexID      `json:"pk"`
	ID           string      `json:"id"`
	Code         string      `json:"code"`
	Caption      *webCaption `json:"caption"`
	TakenAt      int64       `json:"taken_at"`
	CommentCount int         `json:"comment_count"`
}

func (m webMediaItem) toPost() models.Post {
	p := models.Post{
		ID:           string(m.PK),
		Code:         m.Code,
		TakenAt:      time.Unix(m.TakenAt, 0).UTC(),
		CommentCount: m.CommentCount,
		Permalink:    GetPostURL(m.Code),
	}
	if p.ID == "" {
		p.ID, _, _ = strings.Cut(m.ID, "_")
	}
	if m.Caption != nil {
		p.Caption = m.Caption.Text
	}
	return p
}

type userFeedResponse struct {
	Items  []webMediaItem `json:"items"`
	Status string         `json:"status"`
}

type webComment struct {
	PK        flexID  `json:"pk"`
	Text      string  `json:"text"`
	CreatedAt int64   `json:"created_at"`
	User      webUser `json:"user"`
}

type commentsResponse struct {
	Comments []webComment `json:"comments"`
	Status   string       `json:"status"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Graph binding payloads

type graphProfile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	AccountType string `json:"account_type"`
	MediaCount  int    `json:"media_count"`
}

type graphMedia struct {
	ID            string `json:"id"`
	Caption       string `json:"caption"`
	MediaType     string `json:"media_type"`
	Permalink     string `json:"permalink"`
	Timestamp     string `json:"timestamp"`
	CommentsCount int    `json:"comments_count"`
}

// graphTimeLayout is the timestamp format the Graph API returns.
const graphTimeLayout = "2006-01-02T15:04:05-0700"

func parseGraphTime(s string) time.Time {
	if t, err := time.Parse(graphTimeLayout, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func (m graphMedia) toPost() models.Post {
	return models.Post{
		ID:           m.ID,
		Caption:      m.Caption,
		Permalink:    m.Permalink,
		TakenAt:      parseGraphTime(m.Timestamp),
		CommentCount: m.CommentsCount,
	}
}

type graphMediaResponse struct {
	Data []graphMedia `json:"data"`
}

type graphComment struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
	From      *struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
}

type graphCommentsResponse struct {
	Data []graphComment `json:"data"`
}

type graphErrorResponse struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
