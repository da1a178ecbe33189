package matching

import (
	"testing"

	"github.com/friendforge/internal/model"
)

func user(id, name string, skills ...string) model.User {
	u := model.User{ID: id, Name: name}
	for _, s := range skills {
		u.Skills = append(u.Skills, model.Skill{Name: s, Level: "intermediate"})
	}
	return u
}

func TestRank_OrdersByOverlapDescending(t *testing.T) {
	users := []model.User{
		user("u1", "Ada", "Go", "SQL"),
		user("u2", "Grace", "Go", "SQL", "Docker"),
		user("u3", "Linus", "Go"),
	}

	ranked := Rank([]string{"Go", "SQL", "Docker"}, users)
	if len(ranked) != 3 {
		t.Fatalf("got %d candidates, want 3", len(ranked))
	}
	wantOrder := []string{"u2", "u1", "u3"}
	for i, id := range wantOrder {
		if ranked[i].User.ID != id {
			t.Errorf("ranked[%d] = %s, want %s", i, ranked[i].User.ID, id)
		}
	}
	if ranked[0].MatchPercent != 100 {
		t.Errorf("full overlap percent = %d, want 100", ranked[0].MatchPercent)
	}
	if ranked[2].MatchPercent != 33 {
		t.Errorf("one-of-three percent = %d, want 33", ranked[2].MatchPercent)
	}
}

func TestRank_DropsUsersWithoutOverlap(t *testing.T) {
	users := []model.User{
		user("u1", "Ada", "Rust"),
		user("u2", "Grace", "Go"),
	}
	ranked := Rank([]string{"Go"}, users)
	if len(ranked) != 1 || ranked[0].User.ID != "u2" {
		t.Fatalf("unexpected ranking: %+v", ranked)
	}
}

func TestRank_IsCaseInsensitiveAndDeduplicates(t *testing.T) {
	u := user("u1", "Ada", "go", "GO", "PostgreSQL")
	ranked := Rank([]string{"Go", "postgresql"}, []model.User{u})
	if len(ranked) != 1 {
		t.Fatalf("got %d candidates, want 1", len(ranked))
	}
	if ranked[0].Score != 2 {
		t.Errorf("score = %d, want 2 (duplicate skill must count once)", ranked[0].Score)
	}
	shared := ranked[0].SharedSkills
	if len(shared) != 2 || shared[0] != "Go" || shared[1] != "postgresql" {
		t.Errorf("shared skills = %v", shared)
	}
}

func TestRank_TiesBrokenByName(t *testing.T) {
	users := []model.User{
		user("u2", "Grace", "Go"),
		user("u1", "Ada", "Go"),
	}
	ranked := Rank([]string{"Go"}, users)
	if ranked[0].User.Name != "Ada" {
		t.Errorf("tie not broken by name: first is %s", ranked[0].User.Name)
	}
}

func TestRank_EmptyWantedReturnsNothing(t *testing.T) {
	users := []model.User{user("u1", "Ada", "Go")}
	if got := Rank(nil, users); got != nil {
		t.Errorf("Rank(nil) = %v, want nil", got)
	}
	if got := Rank([]string{"  ", ""}, users); got != nil {
		t.Errorf("Rank(blank) = %v, want nil", got)
	}
}
