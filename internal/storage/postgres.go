package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"instagram-dispatcher/internal/config"
	"instagram-dispatcher/internal/storage/models"
	"instagram-dispatcher/pkg/types"
)

type DB struct {
	conn   *sql.DB
	logger *logrus.Logger
}

func NewConnection(cfg *config.DatabaseConfig, logger *logrus.Logger) (*DB, error) {
	// Override config with environment variables if they exist
	host := getEnvOrDefault("DB_HOST", cfg.Host)
	port := getEnvOrDefault("DB_PORT", fmt.Sprintf("%d", cfg.Port))
	user := getEnvOrDefault("DB_USER", cfg.User)
	password := getEnvOrDefault("DB_PASSWORD", cfg.Password)
	dbname := getEnvOrDefault("DB_NAME", cfg.Name)
	sslmode := getEnvOrDefault("DB_SSL_MODE", cfg.SSLMode)

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	logger.Infof("Connecting to database: host=%s port=%s dbname=%s user=%s", host, port, dbname, user)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn:   conn,
		logger: logger,
	}

	logger.Info("Database connection established")
	return db, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (db *DB) RunMigrations() error {
	db.logger.Info("Running database migrations...")

	migrationFiles, err := filepath.Glob("internal/storage/migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to find migration files: %w", err)
	}

	sort.Strings(migrationFiles)

	for _, file := range migrationFiles {
		db.logger.Infof("Running migration: %s", file)

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := db.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", file, err)
		}
	}

	db.logger.Info("Migrations completed successfully")
	return nil
}

// Record stores one action result: the action row always, plus the profile
// and post rows when the action succeeded.
func (db *DB) Record(ctx context.Context, result *types.ActionResult) error {
	_, err := db.conn.ExecContext(ctx, `
        INSERT INTO actions (target, mode, backend, proxy, error, duration_ms, scraped_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.Target, result.Mode, result.Backend, result.Proxy,
		result.Error, result.Duration.Milliseconds(), result.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save action: %w", err)
	}

	if result.Profile != nil {
		if err := db.saveProfile(ctx, result.Profile, result.ScrapedAt); err != nil {
			return err
		}
	}

	username := result.Target
	if result.Profile != nil {
		username = result.Profile.Username
	}
	for i := range result.Posts {
		if err := db.savePost(ctx, username, &result.Posts[i], result.ScrapedAt); err != nil {
			return err
		}
	}

	return nil
}

func (db *DB) saveProfile(ctx context.Context, profile *types.Profile, scrapedAt time.Time) error {
	query := `
        INSERT INTO profiles (
            username, full_name, bio, avatar_url, follower_count, following_count, scraped_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7
        ) ON CONFLICT (username) DO UPDATE SET
            full_name = EXCLUDED.full_name,
            bio = EXCLUDED.bio,
            avatar_url = EXCLUDED.avatar_url,
            follower_count = EXCLUDED.follower_count,
            following_count = EXCLUDED.following_count,
            scraped_at = EXCLUDED.scraped_at,
            updated_at = NOW()
    `

	_, err := db.conn.ExecContext(ctx, query,
		profile.Username, profile.FullName, profile.Bio, profile.AvatarURL,
		profile.FollowerCount, profile.FollowingCount, scrapedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile %s: %w", profile.Username, err)
	}
	return nil
}

func (db *DB) savePost(ctx context.Context, username string, post *types.Post, scrapedAt time.Time) error {
	query := `
        INSERT INTO posts (
            username, shortcode, caption, taken_at, is_video,
            view_count, like_count, comment_count, scraped_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9
        ) ON CONFLICT (shortcode) DO UPDATE SET
            caption = EXCLUDED.caption,
            view_count = EXCLUDED.view_count,
            like_count = EXCLUDED.like_count,
            comment_count = EXCLUDED.comment_count,
            scraped_at = EXCLUDED.scraped_at,
            updated_at = NOW()
    `

	_, err := db.conn.ExecContext(ctx, query,
		username, post.Shortcode, post.Caption, post.TakenAt, post.IsVideo,
		post.ViewCount, post.LikeCount, post.CommentCount, scrapedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save post %s: %w", post.Shortcode, err)
	}
	return nil
}

// GetProfiles retrieves the most recently scraped profiles.
func (db *DB) GetProfiles(limit int) ([]*models.ProfileRow, error) {
	query := `
        SELECT id, username, full_name, bio, avatar_url, follower_count,
               following_count, scraped_at, created_at, updated_at
        FROM profiles
        ORDER BY scraped_at DESC
        LIMIT $1`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.ProfileRow
	for rows.Next() {
		profile := &models.ProfileRow{}
		err := rows.Scan(
			&profile.ID, &profile.Username, &profile.FullName, &profile.Bio,
			&profile.AvatarURL, &profile.FollowerCount, &profile.FollowingCount,
			&profile.ScrapedAt, &profile.CreatedAt, &profile.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}

	return profiles, nil
}

// GetPostsByUsername retrieves a profile's stored posts, newest first.
func (db *DB) GetPostsByUsername(username string, limit int) ([]*models.PostRow, error) {
	query := `
        SELECT id, username, shortcode, caption, taken_at, is_video,
               view_count, like_count, comment_count, scraped_at, created_at, updated_at
        FROM posts
        WHERE username = $1
        ORDER BY taken_at DESC
        LIMIT $2`

	rows, err := db.conn.Query(query, username, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.PostRow
	for rows.Next() {
		post := &models.PostRow{}
		err := rows.Scan(
			&post.ID, &post.Username, &post.Shortcode, &post.Caption,
			&post.TakenAt, &post.IsVideo, &post.ViewCount, &post.LikeCount,
			&post.CommentCount, &post.ScrapedAt, &post.CreatedAt, &post.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, post)
	}

	return posts, nil
}

// GetActionsForExport retrieves recent actions for CSV export.
func (db *DB) GetActionsForExport(limit int) ([]*models.ActionRow, error) {
	query := `
        SELECT id, target, mode, backend, proxy, error, duration_ms, scraped_at
        FROM actions
        ORDER BY scraped_at DESC
        LIMIT $1`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions for export: %w", err)
	}
	defer rows.Close()

	var actions []*models.ActionRow
	for rows.Next() {
		action := &models.ActionRow{}
		err := rows.Scan(
			&action.ID, &action.Target, &action.Mode, &action.Backend,
			&action.Proxy, &action.Error, &action.DurationMS, &action.ScrapedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, action)
	}

	return actions, nil
}

// GetStats returns comprehensive dispatch statistics.
func (db *DB) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalActions int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM actions").Scan(&totalActions)
	if err != nil {
		return nil, fmt.Errorf("failed to get total actions: %w", err)
	}
	stats["total_actions"] = totalActions

	var failedActions int
	err = db.conn.QueryRow("SELECT COUNT(*) FROM actions WHERE error <> ''").Scan(&failedActions)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed actions: %w", err)
	}
	stats["failed_actions"] = failedActions

	var totalProfiles int
	err = db.conn.QueryRow("SELECT COUNT(*) FROM profiles").Scan(&totalProfiles)
	if err != nil {
		return nil, fmt.Errorf("failed to get total profiles: %w", err)
	}
	stats["total_profiles"] = totalProfiles

	var totalPosts int
	err = db.conn.QueryRow("SELECT COUNT(*) FROM posts").Scan(&totalPosts)
	if err != nil {
		return nil, fmt.Errorf("failed to get total posts: %w", err)
	}
	stats["total_posts"] = totalPosts

	var avgDuration sql.NullFloat64
	err = db.conn.QueryRow("SELECT AVG(duration_ms) FROM actions").Scan(&avgDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to get average duration: %w", err)
	}
	if avgDuration.Valid {
		stats["average_duration_ms"] = avgDuration.Float64
	} else {
		stats["average_duration_ms"] = 0
	}

	var lastAction sql.NullString
	err = db.conn.QueryRow("SELECT MAX(scraped_at)::text FROM actions").Scan(&lastAction)
	if err != nil {
		return nil, fmt.Errorf("failed to get last action time: %w", err)
	}
	if lastAction.Valid {
		stats["last_action_at"] = lastAction.String
	} else {
		stats["last_action_at"] = "Never"
	}

	// Actions by backend
	rows, err := db.conn.Query(`
        SELECT backend, COUNT(*) FROM actions
        GROUP BY backend
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to get actions by backend: %w", err)
	}
	defer rows.Close()

	actionsByBackend := make(map[string]int)
	for rows.Next() {
		var backend string
		var count int
		if err := rows.Scan(&backend, &count); err != nil {
			continue
		}
		actionsByBackend[backend] = count
	}
	stats["actions_by_backend"] = actionsByBackend

	return stats, nil
}

// Ping checks if the database connection is alive
func (db *DB) Ping() error {
	return db.conn.Ping()
}

func (db *DB) Close() error {
	return db.conn.Close()
}
