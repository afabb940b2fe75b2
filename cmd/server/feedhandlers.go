package server

import (
	"encoding/json"
	"errors"
	"html"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/feed"
	"example.com/socialfeed/internal/middleware"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/store"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// createPostHandler stores a new post and publishes a post_created event
// for follower fan-out.
// Expects JSON body: {"content": "..."}
func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	type req struct {
		Content string `json:"content"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/home", "Invalid request body", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()

	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// HTML-escape and trim at write time; stored content is display-safe.
	content := strings.TrimSpace(html.EscapeString(body.Content))
	if content == "" {
		writeError(w, http.StatusBadRequest, "All fields are required!")
		return
	}
	if len(content) > 1000 {
		writeError(w, http.StatusBadRequest, "post content must be 1-1000 characters")
		return
	}

	// The creator must exist at write time; this also picks up the
	// username denormalized onto the post row.
	creator, err := s.store.GetAccountByID(accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "An error occurred making post!")
			return
		}
		logg.Error("http/home", "Failed to load creator", err)
		writeError(w, http.StatusInternalServerError, "An error occurred making post!")
		return
	}

	post := models.Post{
		ID:              uuid.NewString(),
		CreatorID:       creator.ID,
		CreatorUsername: creator.Username,
		Content:         content,
		Created:         time.Now(),
	}

	data, err := json.Marshal(post)
	if err != nil {
		logg.Error("http/home", "Failed to marshal post", err)
		writeError(w, http.StatusInternalServerError, "An error occurred making post!")
		return
	}

	msg := kafka.Message{
		Key:   []byte(appkafka.PostCreatedKey),
		Value: data,
	}

	if err := s.kafkaWriter.WriteMessages(msg); err != nil {
		logg.Error("http/home", "Failed to write Kafka message", err)
		writeError(w, http.StatusInternalServerError, "An error occurred making post!")
		return
	}

	if err := s.store.AddPost(post); err != nil {
		logg.Error("http/home", "Failed to save post", err)
		writeError(w, http.StatusInternalServerError, "An error occurred making post!")
		return
	}

	logg.Info("http/home", "Post created successfully by account_id="+accountID)
	writeJSON(w, http.StatusCreated, post)
}

// getPostsHandler returns all posts with creator info, in store order.
func (s *Server) getPostsHandler(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.GetAllPosts(s.feedLimit)
	if err != nil {
		logg.Error("http/getPosts", "Failed to retrieve posts", err)
		writeError(w, http.StatusInternalServerError, "Error retrieving posts!")
		return
	}

	if posts == nil {
		posts = []models.Post{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

// feedHandler composes and renders the viewer's feed.
// Query parameters: ?mode=home|following&limit=50
func (s *Server) feedHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := s.feedLimit
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}

	acc, err := s.store.GetAccountByID(accountID)
	if err != nil {
		logg.Error("http/feed", "Failed to load viewer for account_id="+accountID, err)
		writeError(w, http.StatusInternalServerError, "Error retrieving feed!")
		return
	}
	viewer := acc.Summary()

	// The following feed reads the worker-materialized rows for the
	// viewer; the home feed draws from the shared post set.
	var posts []models.Post
	bias := s.followBias
	if r.URL.Query().Get("mode") == "following" {
		rows, err := s.store.GetFeed(accountID, limit)
		if err != nil {
			logg.Error("http/feed", "Failed to read materialized feed for account_id="+accountID, err)
			writeError(w, http.StatusInternalServerError, "Error retrieving feed!")
			return
		}
		// Fan-out also delivers the viewer's own posts; keep only
		// followed creators here.
		posts = feed.OnlyFollowed(rows, &viewer)
		bias = 1.0
	} else {
		posts, err = s.store.GetAllPosts(limit)
		if err != nil {
			logg.Error("http/feed", "Failed to retrieve posts", err)
			writeError(w, http.StatusInternalServerError, "Error retrieving feed!")
			return
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	composed := feed.Compose(posts, &viewer, bias, rng)

	items := feed.ApplyBlocking(feed.Items(composed), &viewer)
	items = feed.WithPlaceholders(items, s.adInterval, s.prefs.Premium())

	logg.Info("http/feed", "Feed composed for account_id="+accountID+" with "+strconv.Itoa(len(items))+" entries")
	writeJSON(w, http.StatusOK, map[string]any{"feed": items})
}

// --- Premium preference handlers ---

func (s *Server) getPremiumHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"premium": s.prefs.Premium()})
}

// setPremiumHandler toggles the process-local premium preference; the
// change is broadcast to every subscribed feed view.
func (s *Server) setPremiumHandler(w http.ResponseWriter, r *http.Request) {
	type req struct {
		Enabled bool `json:"enabled"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/premium", "Invalid request body", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()

	if err := s.prefs.SetPremium(body.Enabled); err != nil {
		logg.Error("http/premium", "Failed to persist preference", err)
		writeError(w, http.StatusInternalServerError, "An error occurred!")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"premium": body.Enabled})
}
