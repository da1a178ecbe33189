// Package matching ranks collaborator candidates by skill overlap with a
// requested skill set.
package matching

import (
	"sort"
	"strings"

	"github.com/friendforge/internal/model"
)

// Candidate is one ranked collaborator suggestion.
type Candidate struct {
	User         model.UserPublic `json:"user"`
	Score        int              `json:"score"`
	MatchPercent int              `json:"match_percent"`
	SharedSkills []string         `json:"shared_skills"`
}

// Rank scores every user by how many of the wanted skills they carry.
// Matching is case-insensitive on the skill name. Users with no overlap are
// dropped. Result is ordered by score descending, ties by name.
func Rank(wanted []string, users []model.User) []Candidate {
	wantedSet := make(map[string]string, len(wanted))
	for _, w := range wanted {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		wantedSet[strings.ToLower(w)] = w
	}
	if len(wantedSet) == 0 {
		return nil
	}

	ranked := make([]Candidate, 0, len(users))
	for _, u := range users {
		shared := sharedSkills(wantedSet, u.Skills)
		if len(shared) == 0 {
			continue
		}
		ranked = append(ranked, Candidate{
			User:         u.ToPublic(),
			Score:        len(shared),
			MatchPercent: len(shared) * 100 / len(wantedSet),
			SharedSkills: shared,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].User.Name < ranked[j].User.Name
	})
	return ranked
}

func sharedSkills(wantedSet map[string]string, skills []model.Skill) []string {
	seen := make(map[string]bool, len(skills))
	var shared []string
	for _, s := range skills {
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if key == "" || seen[key] {
			continue
		}
		if _, ok := wantedSet[key]; ok {
			seen[key] = true
			shared = append(shared, wantedSet[key])
		}
	}
	sort.Strings(shared)
	return shared
}
