package model

import "time"

type Skill struct {
	Name  string `json:"name"`
	Level string `json:"level"`
}

type User struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	University string     `json:"university"`
	Extra      string     `json:"extra"`
	AvatarURL  string     `json:"avatar_url"`
	CVURL      string     `json:"cv_url"`
	Skills     []Skill    `json:"skills"`
	CreatedAt  time.Time  `json:"created_at"`
	DisabledAt *time.Time `json:"-"` // не null = пользователь отключён, не может войти
}

// UserPublic is the profile shape returned to other users. Friends holds
// user ids and is assembled from the friendships table, not stored on the row.
type UserPublic struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	University string   `json:"university"`
	Extra      string   `json:"extra"`
	AvatarURL  string   `json:"avatar_url"`
	CVURL      string   `json:"cv_url"`
	Skills     []Skill  `json:"skills"`
	Friends    []string `json:"friends"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:         u.ID,
		Name:       u.Name,
		University: u.University,
		Extra:      u.Extra,
		AvatarURL:  u.AvatarURL,
		CVURL:      u.CVURL,
		Skills:     u.Skills,
	}
}
