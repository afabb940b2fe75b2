package feed

import (
	"fmt"
	"math/rand"
	"testing"

	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/store"
)

//
// --- Helpers ---
//

func makePost(id, creatorID string) models.Post {
	return models.Post{
		ID:        id,
		CreatorID: creatorID,
		Content:   "post " + id,
	}
}

func makeViewer(following ...string) *models.ViewerSummary {
	if following == nil {
		following = []string{}
	}
	return &models.ViewerSummary{
		ID:        "viewer",
		Username:  "viewer",
		Following: following,
	}
}

// countByID indexes a composed feed for permutation checks.
func countByID(posts []models.Post) map[string]int {
	counts := make(map[string]int)
	for _, p := range posts {
		counts[p.ID]++
	}
	return counts
}

//
// --- Tests ---
//

// With bias 1.0 every draw comes from the followed pool until it is empty.
func TestCompose_FullBiasDrainsFollowedFirst(t *testing.T) {
	viewer := makeViewer("u1", "u2")
	posts := []models.Post{
		makePost("a", "u1"),
		makePost("b", "u3"),
		makePost("c", "u2"),
		makePost("d", "u4"),
		makePost("e", "u1"),
	}

	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		out := Compose(posts, viewer, 1.0, rng)

		if len(out) != len(posts) {
			t.Fatalf("seed %d: expected %d posts, got %d", seed, len(posts), len(out))
		}
		for i, p := range out[:3] {
			if p.CreatorID != "u1" && p.CreatorID != "u2" {
				t.Fatalf("seed %d: position %d drawn from non-followed creator %s", seed, i, p.CreatorID)
			}
		}
	}
}

// With bias 0.0 no followed post appears before the other pool is empty.
func TestCompose_ZeroBiasDrainsOtherFirst(t *testing.T) {
	viewer := makeViewer("u1")
	posts := []models.Post{
		makePost("a", "u1"),
		makePost("b", "u2"),
		makePost("c", "u3"),
		makePost("d", "u1"),
	}

	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		out := Compose(posts, viewer, 0.0, rng)

		for i, p := range out[:2] {
			if p.CreatorID == "u1" {
				t.Fatalf("seed %d: followed post at position %d before other pool drained", seed, i)
			}
		}
		for i, p := range out[2:] {
			if p.CreatorID != "u1" {
				t.Fatalf("seed %d: non-followed post at tail position %d", seed, i+2)
			}
		}
	}
}

// Composition must be a permutation: same length, nothing duplicated or lost.
func TestCompose_IsPermutation(t *testing.T) {
	viewer := makeViewer("u1", "u3")
	var posts []models.Post
	for i := 0; i < 30; i++ {
		posts = append(posts, makePost(fmt.Sprintf("p%d", i), fmt.Sprintf("u%d", i%5)))
	}

	for seed := int64(0); seed < 10; seed++ {
		rng := rand.New(rand.NewSource(seed))
		out := Compose(posts, viewer, 0.6, rng)

		if len(out) != len(posts) {
			t.Fatalf("seed %d: expected %d posts, got %d", seed, len(posts), len(out))
		}

		want := countByID(posts)
		got := countByID(out)
		for id, n := range want {
			if got[id] != n {
				t.Fatalf("seed %d: post %s appears %d times, want %d", seed, id, got[id], n)
			}
		}
	}
}

// An unknown viewer skips ranking entirely.
func TestCompose_NoViewerKeepsStoreOrder(t *testing.T) {
	posts := []models.Post{
		makePost("a", "u1"),
		makePost("b", "u2"),
		makePost("c", "u3"),
	}
	rng := rand.New(rand.NewSource(1))

	out := Compose(posts, nil, 0.6, rng)
	for i, p := range out {
		if p.ID != posts[i].ID {
			t.Fatalf("nil viewer: order changed at %d: got %s want %s", i, p.ID, posts[i].ID)
		}
	}

	noFollowing := &models.ViewerSummary{ID: "v", Username: "v"}
	out = Compose(posts, noFollowing, 0.6, rng)
	for i, p := range out {
		if p.ID != posts[i].ID {
			t.Fatalf("nil following: order changed at %d: got %s want %s", i, p.ID, posts[i].ID)
		}
	}
}

// Posts without a creator reference are dropped before ranking.
func TestCompose_DropsCreatorlessPosts(t *testing.T) {
	viewer := makeViewer("u1")
	posts := []models.Post{
		makePost("a", "u1"),
		makePost("broken", ""),
		makePost("b", "u2"),
	}

	rng := rand.New(rand.NewSource(3))
	out := Compose(posts, viewer, 0.6, rng)

	if len(out) != 2 {
		t.Fatalf("expected 2 posts after dropping creator-less entry, got %d", len(out))
	}
	for _, p := range out {
		if p.ID == "broken" {
			t.Fatalf("creator-less post survived composition")
		}
	}
}

func TestOnlyFollowed(t *testing.T) {
	viewer := makeViewer("u1", "u2")
	posts := []models.Post{
		makePost("a", "u1"),
		makePost("b", "u3"),
		makePost("c", "u2"),
	}

	out := OnlyFollowed(posts, viewer)
	if len(out) != 2 {
		t.Fatalf("expected 2 followed posts, got %d", len(out))
	}
	if out[0].ID != "a" || out[1].ID != "c" {
		t.Fatalf("unexpected filter result: %+v", out)
	}

	if got := OnlyFollowed(posts, nil); got != nil {
		t.Fatalf("expected nil for nil viewer, got %+v", got)
	}
}

// Scenario: A follows B only; one post each from A, B, C, D.
func TestCompose_FollowScenario(t *testing.T) {
	viewer := makeViewer("B")
	posts := []models.Post{
		makePost("pa", "A"),
		makePost("pb", "B"),
		makePost("pc", "C"),
		makePost("pd", "D"),
	}

	// The following feed is the followed-only subset shuffled with bias 1.0:
	// exactly B's post here.
	followingFeed := OnlyFollowed(posts, viewer)
	rng := rand.New(rand.NewSource(7))
	out := Compose(followingFeed, viewer, 1.0, rng)
	if len(out) != 1 || out[0].ID != "pb" {
		t.Fatalf("expected exactly B's post, got %+v", out)
	}

	// With bias 0.0, B's post never leads while other posts remain.
	for seed := int64(0); seed < 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		out := Compose(posts, viewer, 0.0, rng)
		if out[0].ID == "pb" {
			t.Fatalf("seed %d: followed post placed first under zero bias", seed)
		}
	}
}

// A freshly created account follows nobody; its summary still carries an
// empty following set, so its home feed is ranked rather than passed
// through in store order.
func TestCompose_RanksForZeroFollowViewer(t *testing.T) {
	mockStore := store.NewMock()
	id, err := mockStore.CreateAccount("fresh", "hash")
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	acc, err := mockStore.GetAccountByID(id)
	if err != nil {
		t.Fatalf("GetAccountByID failed: %v", err)
	}

	viewer := acc.Summary()
	if viewer.Following == nil || viewer.Blocking == nil {
		t.Fatalf("loaded account summary must carry empty sets, got %+v", viewer)
	}

	posts := make([]models.Post, 20)
	for i := range posts {
		posts[i] = makePost(fmt.Sprintf("p%d", i), fmt.Sprintf("u%d", i))
	}

	deviated := false
	for seed := int64(0); seed < 50 && !deviated; seed++ {
		out := Compose(posts, &viewer, HomeBias, rand.New(rand.NewSource(seed)))
		if len(out) != len(posts) {
			t.Fatalf("seed %d: expected %d posts, got %d", seed, len(posts), len(out))
		}
		for i := range out {
			if out[i].ID != posts[i].ID {
				deviated = true
				break
			}
		}
	}
	if !deviated {
		t.Fatal("zero-follow viewer feed was never ranked across 50 seeds")
	}
}
