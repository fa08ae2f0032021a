package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
)

const feedbackColumns = `id, message_id, guild_id, channel_id, channel_name, author_id, author_name,
	content, apps_mentioned, sentiment, feedback_type, summary, actionable,
	message_timestamp, created_at`

// feedbackRepo implements the feedback repository
type feedbackRepo struct {
	db *sql.DB
}

// NewFeedbackRepo creates a new feedback repository
func NewFeedbackRepo(db *sql.DB) repo.FeedbackRepo {
	return &feedbackRepo{db: db}
}

// Upsert inserts a record, replacing the row with the same message ID in place
func (r *feedbackRepo) Upsert(ctx context.Context, rec *domain.FeedbackRecord) (int64, error) {
	if len(rec.AppsMentioned) == 0 {
		return 0, fmt.Errorf("record %s has no apps mentioned", rec.MessageID)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO feedback (message_id, guild_id, channel_id, channel_name, author_id, author_name,
			content, apps_mentioned, sentiment, feedback_type, summary, actionable, message_timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			guild_id = excluded.guild_id,
			channel_id = excluded.channel_id,
			channel_name = excluded.channel_name,
			author_id = excluded.author_id,
			author_name = excluded.author_name,
			content = excluded.content,
			apps_mentioned = excluded.apps_mentioned,
			sentiment = excluded.sentiment,
			feedback_type = excluded.feedback_type,
			summary = excluded.summary,
			actionable = excluded.actionable,
			message_timestamp = excluded.message_timestamp,
			created_at = excluded.created_at
		RETURNING id
	`, rec.MessageID, rec.GuildID, rec.ChannelID, rec.ChannelName, rec.AuthorID, rec.AuthorName,
		rec.Content, strings.Join(rec.AppsMentioned, ","), string(rec.Sentiment), string(rec.FeedbackType),
		rec.Summary, boolToInt(rec.Actionable), rec.MessageTimestamp.UnixMilli(), createdAt.UnixMilli(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert feedback: %w", err)
	}

	rec.ID = id
	rec.CreatedAt = createdAt
	return id, nil
}

// ListSince lists records at or after since, oldest first
func (r *feedbackRepo) ListSince(ctx context.Context, since time.Time, app string) ([]*domain.FeedbackRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+feedbackColumns+`
		FROM feedback
		WHERE message_timestamp >= ?
		  AND (? = '' OR (',' || apps_mentioned || ',') LIKE '%,' || ? || ',%')
		ORDER BY message_timestamp ASC
	`, since.UnixMilli(), app, app)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	return scanFeedbackRecords(rows)
}

// Stats aggregates records at or after since
func (r *feedbackRepo) Stats(ctx context.Context, since time.Time) (*domain.FeedbackStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sentiment, feedback_type, actionable, apps_mentioned
		FROM feedback
		WHERE message_timestamp >= ?
	`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback stats: %w", err)
	}
	defer rows.Close()

	stats := domain.NewFeedbackStats(since)
	for rows.Next() {
		var sentiment, feedbackType, apps string
		var actionable int
		if err := rows.Scan(&sentiment, &feedbackType, &actionable, &apps); err != nil {
			return nil, fmt.Errorf("failed to scan feedback stats: %w", err)
		}
		stats.Total++
		if actionable != 0 {
			stats.Actionable++
		}
		stats.BySentiment[domain.Sentiment(sentiment)]++
		stats.ByType[domain.FeedbackType(feedbackType)]++
		for _, app := range splitApps(apps) {
			stats.ByApp[app]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback stats: %w", err)
	}
	return stats, nil
}

// ListActionable lists actionable records, newest first
func (r *feedbackRepo) ListActionable(ctx context.Context, since time.Time, limit int) ([]*domain.FeedbackRecord, error) {
	return r.listWhere(ctx, `actionable = 1`, since, limit)
}

// ListNegative lists negative and mixed records, newest first
func (r *feedbackRepo) ListNegative(ctx context.Context, since time.Time, limit int) ([]*domain.FeedbackRecord, error) {
	return r.listWhere(ctx, `sentiment IN ('negative', 'mixed')`, since, limit)
}

// ListByType lists records of one category, newest first
func (r *feedbackRepo) ListByType(ctx context.Context, since time.Time, t domain.FeedbackType, limit int) ([]*domain.FeedbackRecord, error) {
	return r.listWhere(ctx, `feedback_type = ?`, since, limit, string(t))
}

// listWhere runs a newest-first query with an extra fixed condition
func (r *feedbackRepo) listWhere(ctx context.Context, cond string, since time.Time, limit int, args ...interface{}) ([]*domain.FeedbackRecord, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedback
		WHERE ` + cond + ` AND message_timestamp >= ?
		ORDER BY message_timestamp DESC
		LIMIT ?`
	args = append(args, since.UnixMilli(), limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	return scanFeedbackRecords(rows)
}

// scanFeedbackRecords scans feedback rows
func scanFeedbackRecords(rows *sql.Rows) ([]*domain.FeedbackRecord, error) {
	var records []*domain.FeedbackRecord
	for rows.Next() {
		var rec domain.FeedbackRecord
		var guildID, channelID, channelName, authorID, authorName, summary sql.NullString
		var apps, sentiment, feedbackType string
		var actionable int
		var msgTS, createdAt int64

		err := rows.Scan(&rec.ID, &rec.MessageID, &guildID, &channelID, &channelName, &authorID, &authorName,
			&rec.Content, &apps, &sentiment, &feedbackType, &summary, &actionable, &msgTS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}

		rec.GuildID = guildID.String
		rec.ChannelID = channelID.String
		rec.ChannelName = channelName.String
		rec.AuthorID = authorID.String
		rec.AuthorName = authorName.String
		rec.Summary = summary.String
		rec.AppsMentioned = splitApps(apps)
		rec.Sentiment = domain.Sentiment(sentiment)
		rec.FeedbackType = domain.FeedbackType(feedbackType)
		rec.Actionable = actionable != 0
		rec.MessageTimestamp = time.UnixMilli(msgTS)
		rec.CreatedAt = time.UnixMilli(createdAt)

		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback: %w", err)
	}
	return records, nil
}

func splitApps(s string) []string {
	var apps []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			apps = append(apps, a)
		}
	}
	return apps
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
