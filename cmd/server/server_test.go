package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"testing"
	"time"

	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/feed"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/prefs"
	"example.com/socialfeed/internal/social"
	"example.com/socialfeed/internal/store"
)

//
// --- Setup test server ---
//

func setupTestServer(t *testing.T) (*Server, *httptest.Server, *store.MockStore) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	mockStore := store.NewMock()
	s := &Server{
		store:       mockStore,
		kafkaWriter: &appkafka.MockKafka{Store: mockStore},
		social:      social.New(mockStore),
		prefs:       prefs.Load(filepath.Join(t.TempDir(), "prefs.json")),
		followBias:  0.6,
		adInterval:  5,
		feedLimit:   50,
		sessionTTL:  time.Hour,
	}

	return s, httptest.NewServer(s.routes()), mockStore
}

//
// --- Helpers ---
//

// sendJSON issues a request with an optional Bearer token and checks status.
func sendJSON(t *testing.T, method, url string, body any, token string, expectedStatus int) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != expectedStatus {
		b, _ := io.ReadAll(resp.Body)
		defer resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", expectedStatus, resp.StatusCode, string(b))
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return v
}

// signupHelper creates an account through the API and returns id and token.
func signupHelper(t *testing.T, ts *httptest.Server, username string) (string, string) {
	t.Helper()

	body := map[string]string{"username": username, "pass": "secret", "pass2": "secret"}
	resp := sendJSON(t, http.MethodPost, ts.URL+"/signup", body, "", http.StatusCreated)
	auth := decodeBody[authResponse](t, resp)

	if auth.AccountID == "" || auth.Token == "" {
		t.Fatalf("signup returned empty credentials: %+v", auth)
	}
	return auth.AccountID, auth.Token
}

func getFeedHelper(t *testing.T, ts *httptest.Server, token, query string) []feed.Item {
	t.Helper()

	resp := sendJSON(t, http.MethodGet, ts.URL+"/feed"+query, nil, token, http.StatusOK)
	body := decodeBody[map[string][]feed.Item](t, resp)
	return body["feed"]
}

//
// --- Account tests ---
//

func TestSignupAndLogin(t *testing.T) {
	_, ts, _ := setupTestServer(t)
	defer ts.Close()

	id, _ := signupHelper(t, ts, "almaz")
	if id == "" {
		t.Fatalf("expected non-empty account ID")
	}

	resp := sendJSON(t, http.MethodPost, ts.URL+"/login",
		map[string]string{"username": "almaz", "pass": "secret"}, "", http.StatusOK)
	auth := decodeBody[authResponse](t, resp)
	if auth.AccountID != id {
		t.Fatalf("login returned wrong account: %s vs %s", auth.AccountID, id)
	}

	sendJSON(t, http.MethodPost, ts.URL+"/login",
		map[string]string{"username": "almaz", "pass": "wrong"}, "", http.StatusUnauthorized)
	sendJSON(t, http.MethodPost, ts.URL+"/login",
		map[string]string{"username": "nobody", "pass": "secret"}, "", http.StatusUnauthorized)
}

func TestSignup_DuplicateUsername(t *testing.T) {
	_, ts, _ := setupTestServer(t)
	defer ts.Close()

	signupHelper(t, ts, "almaz")
	body := map[string]string{"username": "almaz", "pass": "other", "pass2": "other"}
	sendJSON(t, http.MethodPost, ts.URL+"/signup", body, "", http.StatusBadRequest)
}

func TestSignup_Validation(t *testing.T) {
	_, ts, _ := setupTestServer(t)
	defer ts.Close()

	// missing fields
	sendJSON(t, http.MethodPost, ts.URL+"/signup",
		map[string]string{"username": "x"}, "", http.StatusBadRequest)
	// mismatched passwords
	sendJSON(t, http.MethodPost, ts.URL+"/signup",
		map[string]string{"username": "x", "pass": "a", "pass2": "b"}, "", http.StatusBadRequest)
}

func TestLogoutRevokesSession(t *testing.T) {
	_, ts, _ := setupTestServer(t)
	defer ts.Close()

	_, token := signupHelper(t, ts, "almaz")

	resp := sendJSON(t, http.MethodGet, ts.URL+"/me", nil, token, http.StatusOK)
	resp.Body.Close()

	resp = sendJSON(t, http.MethodGet, ts.URL+"/logout", nil, token, http.StatusOK)
	resp.Body.Close()

	sendJSON(t, http.MethodGet, ts.URL+"/me", nil, token, http.StatusUnauthorized)
}

func TestChangePassword(t *testing.T) {
	_, ts, _ := setupTestServer(t)
	defer ts.Close()

	_, token := signupHelper(t, ts, "almaz")

	// wrong current password
	sendJSON(t, http.MethodPost, ts.URL+"/settings/password",
		map[string]string{"old_pass": "nope", "new_pass": "next", "new_pass2": "next"},
		token, http.StatusBadRequest)

	// correct change
	resp := sendJSON(t, http.MethodPost, ts.URL+"/settings/password",
		map[string]string{"old_pass": "secret", "new_pass": "next", "new_pass2": "next"},
		token, http.StatusOK)
	resp.Body.Close()

	// old password no longer works, new one does
	sendJSON(t, http.MethodPost, ts.URL+"/login",
		map[string]string{"username": "almaz", "pass": "secret"}, "", http.StatusUnauthorized)
	sendJSON(t, http.MethodPost, ts.URL+"/login",
		map[string]string{"username": "almaz", "pass": "next"}, "", http.StatusOK).Body.Close()
}

//
// --- Social graph tests ---
//

func TestFollowReturnsRefreshedSummary(t *testing.T) {
	_, ts, _ := setupTestServer(t)
	defer ts.Close()

	_, almazToken := signupHelper(t, ts, "almaz")
	nurID, _ := signupHelper(t, ts, "nur")

	resp := sendJSON(t, http.MethodPost, ts.URL+"/follow",
		map[string]string{"target_id": nurID}, almazToken, http.StatusOK)

	type result struct {
		Success bool                 `json:"success"`
		Me      models.ViewerSummary `json:"me"`
	}
	res := decodeBody[result](t, resp)
	if !res.Success || !slices.Contains(res.Me.Following, nurID) {
		t.Fatalf("follow did not return refreshed summary: %+v", res)
	}

	// /me agrees with the inline summary
	meResp := sendJSON(t, http.MethodGet, ts.URL+"/me", nil, almazToken, http.StatusOK)
	me := decodeBody[models.ViewerSummary](t, meResp)
	if !slices.Contains(me.Following, nurID) {
		t.Fatalf("/me missing followed account: %+v", me)
	}
}

func TestSelfFollowAndBlockRejected(t *testing.T) {
	_, ts, _ := setupTestServer(t)
	defer ts.Close()

	almazID, token := signupHelper(t, ts, "almaz")

	sendJSON(t, http.MethodPost, ts.URL+"/follow",
		map[string]string{"target_id": almazID}, token, http.StatusBadRequest)
	sendJSON(t, http.MethodPost, ts.URL+"/block",
		map[string]string{"target_id": almazID}, token, http.StatusBadRequest)
}

func TestBlockCascadesUnfollow(t *testing.T) {
	_, ts, _ := setupTestServer(t)
	defer ts.Close()

	_, almazToken := signupHelper(t, ts, "almaz")
	nurID, _ := signupHelper(t, ts, "nur")

	sendJSON(t, http.MethodPost, ts.URL+"/follow",
		map[string]string{"target_id": nurID}, almazToken, http.StatusOK).Body.Close()

	resp := sendJSON(t, http.MethodPost, ts.URL+"/block",
		map[string]string{"target_id": nurID}, almazToken, http.StatusOK)

	type result struct {
		Me models.ViewerSummary `json:"me"`
	}
	res := decodeBody[result](t, resp)
	if !slices.Contains(res.Me.Blocking, nurID) {
		t.Fatalf("block not recorded: %+v", res.Me)
	}
	if slices.Contains(res.Me.Following, nurID) {
		t.Fatalf("cascade unfollow missing: %+v", res.Me)
	}
}

//
// --- Post & feed tests ---
//

func TestCreatePostEscapesContent(t *testing.T) {
	_, ts, _ := setupTestServer(t)
	defer ts.Close()

	_, token := signupHelper(t, ts, "almaz")

	resp := sendJSON(t, http.MethodPost, ts.URL+"/home",
		map[string]string{"content": "  <b>hello</b>  "}, token, http.StatusCreated)
	post := decodeBody[models.Post](t, resp)

	if post.Content != "&lt;b&gt;hello&lt;/b&gt;" {
		t.Fatalf("content not escaped/trimmed: %q", post.Content)
	}
	if post.CreatorUsername != "almaz" {
		t.Fatalf("creator not joined onto post: %+v", post)
	}

	listResp := sendJSON(t, http.MethodGet, ts.URL+"/getPosts", nil, token, http.StatusOK)
	list := decodeBody[map[string][]models.Post](t, listResp)
	if len(list["posts"]) != 1 || list["posts"][0].ID != post.ID {
		t.Fatalf("post missing from /getPosts: %+v", list)
	}
}

func TestCreatePost_EmptyContent(t *testing.T) {
	_, ts, _ := setupTestServer(t)
	defer ts.Close()

	_, token := signupHelper(t, ts, "almaz")
	sendJSON(t, http.MethodPost, ts.URL+"/home",
		map[string]string{"content": "   "}, token, http.StatusBadRequest)
}

func TestCreatePost_KafkaWriteError(t *testing.T) {
	s, ts, _ := setupTestServer(t)
	defer ts.Close()

	_, token := signupHelper(t, ts, "almaz")
	s.kafkaWriter = &appkafka.MockKafkaFail{}

	sendJSON(t, http.MethodPost, ts.URL+"/home",
		map[string]string{"content": "hello"}, token, http.StatusInternalServerError)
}

func TestFeedPlaceholdersAndPremium(t *testing.T) {
	s, ts, mockStore := setupTestServer(t)
	defer ts.Close()

	_, token := signupHelper(t, ts, "viewer")
	authorID, _ := signupHelper(t, ts, "author")

	for i := 0; i < 12; i++ {
		mockStore.AddPost(models.Post{
			ID:              fmt.Sprintf("p%d", i),
			CreatorID:       authorID,
			CreatorUsername: "author",
			Content:         fmt.Sprintf("post %d", i),
			Created:         time.Now(),
		})
	}

	items := getFeedHelper(t, ts, token, "")
	if len(items) != 14 {
		t.Fatalf("expected 12 posts + 2 ads, got %d entries", len(items))
	}

	resp := sendJSON(t, http.MethodPost, ts.URL+"/settings/premium",
		map[string]bool{"enabled": true}, token, http.StatusOK)
	resp.Body.Close()

	if !s.prefs.Premium() {
		t.Fatalf("premium toggle not applied")
	}

	items = getFeedHelper(t, ts, token, "")
	if len(items) != 12 {
		t.Fatalf("expected 12 entries with premium on, got %d", len(items))
	}
}

func TestFeedBlockedSubstitution(t *testing.T) {
	_, ts, mockStore := setupTestServer(t)
	defer ts.Close()

	_, viewerToken := signupHelper(t, ts, "viewer")
	blockedID, _ := signupHelper(t, ts, "troll")

	mockStore.AddPost(models.Post{
		ID:              "p1",
		CreatorID:       blockedID,
		CreatorUsername: "troll",
		Content:         "hello",
		Created:         time.Now(),
	})

	sendJSON(t, http.MethodPost, ts.URL+"/block",
		map[string]string{"target_id": blockedID}, viewerToken, http.StatusOK).Body.Close()

	items := getFeedHelper(t, ts, viewerToken, "")
	if len(items) != 1 {
		t.Fatalf("blocked post should stay in the feed, got %d entries", len(items))
	}
	if items[0].Content != feed.BlockedContent || !items[0].Blocked {
		t.Fatalf("blocked post not substituted: %+v", items[0])
	}
}

// The following feed is served from the fan-out-materialized rows of the
// viewer, not from a scan of all posts.
func TestFollowingFeedReadsMaterializedRows(t *testing.T) {
	_, ts, mockStore := setupTestServer(t)
	defer ts.Close()

	viewerID, viewerToken := signupHelper(t, ts, "viewer")
	followedID, followedToken := signupHelper(t, ts, "friend")
	_, otherToken := signupHelper(t, ts, "stranger")

	sendJSON(t, http.MethodPost, ts.URL+"/follow",
		map[string]string{"target_id": followedID}, viewerToken, http.StatusOK).Body.Close()

	// Fan-out delivers the friend's post to the viewer's rows; the
	// stranger's post is never delivered there.
	sendJSON(t, http.MethodPost, ts.URL+"/home",
		map[string]string{"content": "hi"}, followedToken, http.StatusCreated).Body.Close()
	sendJSON(t, http.MethodPost, ts.URL+"/home",
		map[string]string{"content": "yo"}, otherToken, http.StatusCreated).Body.Close()

	if len(mockStore.Feed[viewerID]) != 1 {
		t.Fatalf("expected 1 materialized row for viewer, got %d", len(mockStore.Feed[viewerID]))
	}

	items := getFeedHelper(t, ts, viewerToken, "?mode=following")
	if len(items) != 1 || items[0].CreatorID != followedID {
		t.Fatalf("following feed contains non-followed authors: %+v", items)
	}

	// A post that never went through fan-out stays out of the following
	// feed even when its creator is followed.
	mockStore.AddPost(models.Post{ID: "px", CreatorID: followedID, CreatorUsername: "friend", Content: "late"})
	items = getFeedHelper(t, ts, viewerToken, "?mode=following")
	if len(items) != 1 {
		t.Fatalf("following feed should read materialized rows only, got %d entries", len(items))
	}
}

func TestUnauthorizedAccess(t *testing.T) {
	_, ts, _ := setupTestServer(t)
	defer ts.Close()

	sendJSON(t, http.MethodGet, ts.URL+"/me", nil, "", http.StatusUnauthorized)
	sendJSON(t, http.MethodGet, ts.URL+"/feed", nil, "", http.StatusUnauthorized)
	sendJSON(t, http.MethodPost, ts.URL+"/home",
		map[string]string{"content": "x"}, "", http.StatusUnauthorized)
}

// invalid JSON for signup
func TestSignup_InvalidJSON(t *testing.T) {
	_, ts, _ := setupTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/signup", "application/json",
		bytes.NewBufferString(`{"username":123}`))
	if err != nil {
		t.Fatalf("http.Post failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// Store failure surfaces as a 500 on signup.
func TestSignup_StoreFailure(t *testing.T) {
	s, ts, _ := setupTestServer(t)
	defer ts.Close()

	s.store = &store.MockStoreFail{}
	sendJSON(t, http.MethodPost, ts.URL+"/signup",
		map[string]string{"username": "x", "pass": "a", "pass2": "a"}, "", http.StatusInternalServerError)
}

// Fresh accounts expose empty arrays for following/blocking, never null.
func TestMe_EmptySetsAreArrays(t *testing.T) {
	_, ts, _ := setupTestServer(t)
	defer ts.Close()

	body := map[string]string{"username": "almaz", "pass": "secret", "pass2": "secret"}
	resp := sendJSON(t, http.MethodPost, ts.URL+"/signup", body, "", http.StatusCreated)
	signup := decodeBody[map[string]any](t, resp)

	me, ok := signup["me"].(map[string]any)
	if !ok {
		t.Fatalf("signup response missing me: %+v", signup)
	}
	if _, ok := me["following"].([]any); !ok {
		t.Fatalf("signup me.following is not an array: %v", me["following"])
	}

	token, _ := signup["token"].(string)
	meResp := sendJSON(t, http.MethodGet, ts.URL+"/me", nil, token, http.StatusOK)
	raw := decodeBody[map[string]any](t, meResp)
	if _, ok := raw["following"].([]any); !ok {
		t.Fatalf("/me following is not an array: %v", raw["following"])
	}
	if _, ok := raw["blocking"].([]any); !ok {
		t.Fatalf("/me blocking is not an array: %v", raw["blocking"])
	}
}

// Toggling the premium preference through the API reaches subscribers.
func TestPremiumToggleBroadcast(t *testing.T) {
	s, ts, _ := setupTestServer(t)
	defer ts.Close()

	_, token := signupHelper(t, ts, "almaz")
	changes := s.prefs.Subscribe()

	sendJSON(t, http.MethodPost, ts.URL+"/settings/premium",
		map[string]bool{"enabled": true}, token, http.StatusOK).Body.Close()

	select {
	case v := <-changes:
		if !v {
			t.Fatalf("expected premium=true on change channel, got %v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("premium toggle was not broadcast to subscribers")
	}
}
