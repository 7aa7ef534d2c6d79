package history

import (
	"database/sql"
	"time"
)

// UpsertConversation inserts or updates a conversation record.
func (db *DB) UpsertConversation(c *ConversationRow) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, partner_id, name, unread_count, saved_count, deleted, last_message_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			partner_id = excluded.partner_id,
			name = excluded.name,
			unread_count = excluded.unread_count,
			saved_count = excluded.saved_count,
			deleted = excluded.deleted,
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		c.ID, c.PartnerID, c.Name, c.UnreadCount, c.SavedCount, c.Deleted, c.LastMessageAt, now)
	return err
}

// ListConversations returns conversations sorted by last message desc.
func (db *DB) ListConversations(limit int) ([]ConversationRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, partner_id, name, unread_count, saved_count, deleted, last_message_at
		FROM conversations
		WHERE deleted = 0
		ORDER BY last_message_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []ConversationRow
	for rows.Next() {
		var c ConversationRow
		if err := rows.Scan(&c.ID, &c.PartnerID, &c.Name, &c.UnreadCount, &c.SavedCount, &c.Deleted, &c.LastMessageAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single conversation by id, or nil.
func (db *DB) GetConversation(id string) (*ConversationRow, error) {
	var c ConversationRow
	err := db.QueryRow(`
		SELECT id, partner_id, name, unread_count, saved_count, deleted, last_message_at
		FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.PartnerID, &c.Name, &c.UnreadCount, &c.SavedCount, &c.Deleted, &c.LastMessageAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
