package types

import (
	"fmt"
	"time"
)

type Profile struct {
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	Bio            string `json:"bio"`
	AvatarURL      string `json:"avatar_url"`
	FollowerCount  int    `json:"follower_count"`
	FollowingCount int    `json:"following_count"`
}

type Post struct {
	Shortcode    string    `json:"shortcode"`
	Caption      string    `json:"caption"`
	TakenAt      time.Time `json:"taken_at"`
	IsVideo      bool      `json:"is_video"`
	ViewCount    int       `json:"view_count,omitempty"` // videos only
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
}

// ActionResult is one dispatched action against one target, success or not.
// It is recorded through a sink unchanged, exactly as the backend returned it.
type ActionResult struct {
	Target    string        `json:"target"`
	Mode      string        `json:"mode"` // "profile" or "post"
	Backend   string        `json:"backend"`
	Proxy     string        `json:"proxy,omitempty"`
	Profile   *Profile      `json:"profile,omitempty"`
	Posts     []Post        `json:"posts,omitempty"`
	ScrapedAt time.Time     `json:"scraped_at"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

func (r *ActionResult) OK() bool {
	return r.Error == ""
}

type RunSummary struct {
	Attempted  int            `json:"attempted"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	PerBackend map[string]int `json:"per_backend"`
}

func (s RunSummary) String() string {
	return fmt.Sprintf("attempted: %d, succeeded: %d, failed: %d",
		s.Attempted, s.Succeeded, s.Failed)
}
