package models

import "time"

// ProfileRow is a scraped account profile as stored in Postgres.
type ProfileRow struct {
	ID             int       `json:"id" db:"id"`
	Username       string    `json:"username" db:"username"`
	FullName       string    `json:"full_name" db:"full_name"`
	Bio            string    `json:"bio" db:"bio"`
	AvatarURL      string    `json:"avatar_url" db:"avatar_url"`
	FollowerCount  int       `json:"follower_count" db:"follower_count"`
	FollowingCount int       `json:"following_count" db:"following_count"`
	ScrapedAt      time.Time `json:"scraped_at" db:"scraped_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// PostRow is a scraped post as stored in Postgres.
type PostRow struct {
	ID           int       `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Shortcode    string    `json:"shortcode" db:"shortcode"`
	Caption      string    `json:"caption" db:"caption"`
	TakenAt      time.Time `json:"taken_at" db:"taken_at"`
	IsVideo      bool      `json:"is_video" db:"is_video"`
	ViewCount    int       `json:"view_count" db:"view_count"`
	LikeCount    int       `json:"like_count" db:"like_count"`
	CommentCount int       `json:"comment_count" db:"comment_count"`
	ScrapedAt    time.Time `json:"scraped_at" db:"scraped_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// ActionRow is one dispatched action, successful or not.
type ActionRow struct {
	ID         int       `json:"id" db:"id"`
	Target     string    `json:"target" db:"target"`
	Mode       string    `json:"mode" db:"mode"`
	Backend    string    `json:"backend" db:"backend"`
	Proxy      string    `json:"proxy" db:"proxy"`
	Error      string    `json:"error,omitempty" db:"error"`
	DurationMS int64     `json:"duration_ms" db:"duration_ms"`
	ScrapedAt  time.Time `json:"scraped_at" db:"scraped_at"`
}
