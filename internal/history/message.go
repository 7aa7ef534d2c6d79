package history

import "time"

// UpsertMessage inserts or updates a message (idempotent on conversation_id + msg_id).
func (db *DB) UpsertMessage(m *MessageRow) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (conversation_id, msg_id, sender_id, receiver_id, content, timestamp, is_read, recall_type, reply_to_id, attachments, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			content = excluded.content,
			timestamp = excluded.timestamp,
			is_read = excluded.is_read,
			recall_type = excluded.recall_type,
			attachments = excluded.attachments,
			status = excluded.status`,
		m.ConversationID, m.MsgID, m.SenderID, m.ReceiverID, m.Content, m.Timestamp,
		m.IsRead, m.RecallType, m.ReplyToID, m.Attachments, m.Status, now)
	return err
}

// UpsertBatch persists a fetched page in one transaction.
func (db *DB) UpsertBatch(rows []*MessageRow) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, m := range rows {
		if _, err := tx.Exec(`
			INSERT INTO messages (conversation_id, msg_id, sender_id, receiver_id, content, timestamp, is_read, recall_type, reply_to_id, attachments, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
				content = excluded.content,
				timestamp = excluded.timestamp,
				is_read = excluded.is_read,
				recall_type = excluded.recall_type,
				attachments = excluded.attachments,
				status = excluded.status`,
			m.ConversationID, m.MsgID, m.SenderID, m.ReceiverID, m.Content, m.Timestamp,
			m.IsRead, m.RecallType, m.ReplyToID, m.Attachments, m.Status, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteMessage removes a message permanently (hard recall).
func (db *DB) DeleteMessage(conversationID, msgID string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE conversation_id = ? AND msg_id = ?`, conversationID, msgID)
	return err
}

// ListMessages returns messages for a conversation using keyset pagination
// by timestamp, newest first.
func (db *DB) ListMessages(conversationID string, beforeTs int64, limit int) ([]MessageRow, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, conversation_id, msg_id, sender_id, receiver_id, content, timestamp, is_read, recall_type, reply_to_id, attachments, status
		FROM messages
		WHERE conversation_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, conversationID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []MessageRow
	for rows.Next() {
		var m MessageRow
		if err := rows.Scan(&m.RowID, &m.ConversationID, &m.MsgID, &m.SenderID, &m.ReceiverID,
			&m.Content, &m.Timestamp, &m.IsRead, &m.RecallType, &m.ReplyToID, &m.Attachments, &m.Status); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkConversationRead flags every message in a conversation as read.
func (db *DB) MarkConversationRead(conversationID string) error {
	_, err := db.Exec(`UPDATE messages SET is_read = 1 WHERE conversation_id = ?`, conversationID)
	return err
}
