package store

import (
	"time"

	"example.com/socialfeed/internal/models"
)

// --- Post operations ---

// AddPost inserts a post with the creator's username denormalized onto the
// row, standing in for a relational join at read time.
func (s *Store) AddPost(post models.Post) error {
	if err := s.Session.Query(`
		INSERT INTO posts (post_id, creator_id, creator_username, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		post.ID, post.CreatorID, post.CreatorUsername, post.Content, post.Created,
	).Exec(); err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}

	logg.Info("store", "Post added to posts table (post content anonymized)")
	return nil
}

// GetAllPosts returns up to limit posts with their creator info attached.
func (s *Store) GetAllPosts(limit int) ([]models.Post, error) {
	iter := s.Session.Query(`
		SELECT post_id, creator_id, creator_username, content, created_at
		FROM posts LIMIT ?`,
		limit,
	).Iter()

	var res []models.Post
	var pid, cid, cname, content string
	var created time.Time

	for iter.Scan(&pid, &cid, &cname, &content, &created) {
		res = append(res, models.Post{
			ID:              pid,
			CreatorID:       cid,
			CreatorUsername: cname,
			Content:         content,
			Created:         created,
		})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to retrieve posts", err)
		return nil, err
	}

	return res, nil
}

// AddToFeed writes a materialized feed row for one follower.
func (s *Store) AddToFeed(userID string, post models.Post) error {
	if err := s.Session.Query(`
		INSERT INTO feed_by_user (user_id, post_id, creator_id, creator_username, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, post.ID, post.CreatorID, post.CreatorUsername, post.Content, post.Created,
	).Exec(); err != nil {
		logg.Error("store", "Failed to add post to feed", err)
		return err
	}

	logg.Info("store", "Post added to user's feed (ids and content anonymized)")
	return nil
}

// GetFeed returns the newest materialized feed rows for a user.
func (s *Store) GetFeed(userID string, limit int) ([]models.Post, error) {
	iter := s.Session.Query(`
		SELECT post_id, creator_id, creator_username, content, created_at
		FROM feed_by_user WHERE user_id = ? LIMIT ?`,
		userID, limit,
	).Iter()

	var res []models.Post
	var pid, cid, cname, content string
	var created time.Time

	for iter.Scan(&pid, &cid, &cname, &content, &created) {
		res = append(res, models.Post{
			ID:              pid,
			CreatorID:       cid,
			CreatorUsername: cname,
			Content:         content,
			Created:         created,
		})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to retrieve user feed", err)
		return nil, err
	}

	return res, nil
}
