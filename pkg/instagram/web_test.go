package instagram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igdmbot/pkg/config"
	"igdmbot/pkg/errors"
	"igdmbot/pkg/logger"
	"igdmbot/pkg/session"
)

type fakeWeb struct {
	mu         sync.Mutex
	sessionID  string
	twoFactor  bool
	backupCode string
	forms      map[string]map[string]string
}

func (f *fakeWeb) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	authed := func(r *http.Request) bool {
		ck, err := r.Cookie("sessionid")
		return err == nil && ck.Value == f.sessionID
	}
	record := func(r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		defer f.mu.Unlock()
		vals := map[string]string{}
		for k := range r.PostForm {
			vals[k] = r.PostForm.Get(k)
		}
		f.forms[r.URL.Path] = vals
	}

	mux.HandleFunc(loginPageEndpoint, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf1"})
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc(loginEndpoint, func(w http.ResponseWriter, r *http.Request) {
		record(r)
		assert.Equal(t, "csrf1", r.Header.Get("X-CSRFToken"))
		if !strings.HasSuffix(r.PostForm.Get("enc_password"), ":secret") {
			w.Write([]byte(`{"authenticated":false,"user":true,"status":"ok"}`))
			return
		}
		if f.twoFactor {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"two_factor_required":true,"two_factor_info":{"two_factor_identifier":"tf-1","username":"shop"},"status":"fail"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: f.sessionID})
		w.Write([]byte(`{"authenticated":true,"user":true,"userId":"42","status":"ok"}`))
	})
	mux.HandleFunc(twoFactorEndpoint, func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.PostForm.Get("identifier") != "tf-1" || r.PostForm.Get("verificationCode") != f.backupCode {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"Please check the security code and try again.","status":"fail"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: f.sessionID})
		w.Write([]byte(`{"authenticated":true,"userId":42,"status":"ok"}`))
	})
	mux.HandleFunc(currentUserEndpoint, func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message":"login_required","status":"fail"}`))
			return
		}
		w.Write([]byte(`{"user":{"pk":42,"username":"shop"},"status":"ok"}`))
	})
	mux.HandleFunc(userFeedEndpoint("42"), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("count"))
		w.Write([]byte(`{"items":[
			{"pk":1001,"id":"1001_42","code":"AAA","caption":{"text":"New drop #sale"},"taken_at":1714564800,"comment_count":3},
			{"pk":"1002","id":"1002_42","code":"BBB","caption":null,"taken_at":1714478400,"comment_count":0}
		],"status":"ok"}`))
	})
	mux.HandleFunc(mediaCommentsEndpoint("1001"), func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"comments":[{"pk":"c1","text":"DM me please","created_at":1714565000,"user":{"pk":7,"username":"alice"}}],"status":"ok"}`))
	})
	mux.HandleFunc(broadcastEndpoint, func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc(addCommentEndpoint("1001"), func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.Write([]byte(`{"status":"fail","message":"feedback_required"}`))
	})
	return mux
}

func (f *fakeWeb) form(path string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forms[path]
}

func newFakeWeb(t *testing.T, f *fakeWeb) (*WebGateway, *httptest.Server) {
	f.forms = map[string]map[string]string{}
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)

	cfg := config.InstagramConfig{WebBaseURL: server.URL, Timeout: time.Second, UserAgent: "test"}
	return NewWebGateway(cfg, logger.NewNopLogger()), server
}

func TestWebSessionIDLogin(t *testing.T) {
	f := &fakeWeb{sessionID: "42%3Aabc"}
	gw, _ := newFakeWeb(t, f)

	sess, err := gw.LoginWithSessionID(context.Background(), "", "42%3Aabc")
	require.NoError(t, err)
	assert.Equal(t, session.KindWeb, sess.Kind)
	assert.Equal(t, "shop", sess.Username)
	assert.Equal(t, "42", sess.AccountID)

	var data webSessionData
	require.NoError(t, json.Unmarshal(sess.Data, &data))
	assert.Equal(t, "42%3Aabc", data.SessionID)

	_, err = gw.LoginWithSessionID(context.Background(), "", "stale")
	assert.Equal(t, errors.ErrorTypeInvalidCredentials, errors.Classify(err))
}

func TestWebVerifySession(t *testing.T) {
	f := &fakeWeb{sessionID: "good"}
	gw, _ := newFakeWeb(t, f)

	data, _ := json.Marshal(webSessionData{SessionID: "good"})
	sess := session.New(session.KindWeb, "", data)
	require.NoError(t, gw.VerifySession(context.Background(), sess))
	assert.Equal(t, "42", sess.AccountID)

	data, _ = json.Marshal(webSessionData{SessionID: "expired"})
	assert.Error(t, gw.VerifySession(context.Background(), session.New(session.KindWeb, "", data)))

	err := gw.VerifySession(context.Background(), session.New(session.KindWeb, "", []byte(`nope`)))
	assert.Equal(t, errors.ErrorTypeSessionCorrupt, errors.TypeOf(err))
}

func TestWebPasswordLogin(t *testing.T) {
	f := &fakeWeb{sessionID: "sess"}
	gw, _ := newFakeWeb(t, f)

	sess, err := gw.PasswordLogin(context.Background(), "shop", "secret")
	require.NoError(t, err)
	assert.Equal(t, "42", sess.AccountID)
	assert.True(t, strings.HasPrefix(f.form(loginEndpoint)["enc_password"], "#PWD_INSTAGRAM_BROWSER:0:"))

	_, err = gw.PasswordLogin(context.Background(), "shop", "wrong")
	assert.Equal(t, errors.ErrorTypeInvalidCredentials, errors.Classify(err))
}

func TestWebSecondFactor(t *testing.T) {
	f := &fakeWeb{sessionID: "sess", twoFactor: true, backupCode: "12345678"}
	gw, _ := newFakeWeb(t, f)

	_, err := gw.PasswordLogin(context.Background(), "shop", "secret")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeSecondFactorRequired, errors.Classify(err))

	_, err = gw.SubmitSecondFactor(context.Background(), "shop", "00000000")
	assert.Equal(t, errors.ErrorTypeBackupCodeRejected, errors.Classify(err))

	sess, err := gw.SubmitSecondFactor(context.Background(), "shop", "12345678")
	require.NoError(t, err)
	assert.Equal(t, "shop", sess.Username)

	_, err = gw.SubmitSecondFactor(context.Background(), "other", "1")
	assert.Error(t, err)
}

func TestWebFeedCommentsAndMessages(t *testing.T) {
	f := &fakeWeb{sessionID: "sess"}
	gw, _ := newFakeWeb(t, f)
	ctx := context.Background()

	_, err := gw.FetchRecentPosts(ctx, 2)
	assert.Error(t, err, "account id unknown before login")

	_, err = gw.LoginWithSessionID(ctx, "shop", "sess")
	require.NoError(t, err)

	posts, err := gw.FetchRecentPosts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "1001", posts[0].ID)
	assert.Equal(t, "New drop #sale", posts[0].Caption)
	assert.Equal(t, time.Unix(1714564800, 0).UTC(), posts[0].TakenAt)
	assert.Equal(t, "1002", posts[1].ID)
	assert.Equal(t, "", posts[1].Caption)

	comments, err := gw.FetchComments(ctx, "1001")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "c1", comments[0].ID)
	assert.Equal(t, "7", comments[0].AuthorID)
	assert.Equal(t, "alice", comments[0].AuthorUsername)
	assert.Equal(t, "1001", comments[0].PostID)

	require.NoError(t, gw.SendDirectMessage(ctx, "7", "hello"))
	form := f.form(broadcastEndpoint)
	assert.Equal(t, `[["7"]]`, form["recipient_users"])
	assert.Equal(t, "hello", form["text"])
	assert.NotEmpty(t, form["client_context"])

	err = gw.PostPublicReply(ctx, "1001", "c1", "@alice thanks")
	assert.Equal(t, "c1", f.form(addCommentEndpoint("1001"))["replied_to_comment_id"])
	assert.Equal(t, errors.ErrorTypeRateLimit, errors.Classify(err))
}

func TestRecipientUsersEscapesID(t *testing.T) {
	got, err := recipientUsers("7")
	require.NoError(t, err)
	assert.Equal(t, `[["7"]]`, got)

	got, err = recipientUsers(`7"],["8`)
	require.NoError(t, err)
	var decoded [][]string
	require.NoError(t, json.Unmarshal([]byte(got), &decoded))
	assert.Equal(t, [][]string{{`7"],["8`}}, decoded)
}
