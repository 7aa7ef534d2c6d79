package history

import "time"

// SaveMessage records a saved flag for a user (idempotent).
func (db *DB) SaveMessage(userID, msgID, conversationID string) error {
	_, err := db.Exec(`
		INSERT INTO saved_messages (user_id, msg_id, conversation_id, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, msg_id) DO NOTHING`,
		userID, msgID, conversationID, time.Now().UnixMilli())
	return err
}

// UnsaveMessage removes a saved flag.
func (db *DB) UnsaveMessage(userID, msgID string) error {
	_, err := db.Exec(`DELETE FROM saved_messages WHERE user_id = ? AND msg_id = ?`, userID, msgID)
	return err
}

// SavedIDs returns the set of message ids the user has saved.
func (db *DB) SavedIDs(userID string) (map[string]string, error) {
	rows, err := db.Query(`SELECT msg_id, conversation_id FROM saved_messages WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var msgID, convID string
		if err := rows.Scan(&msgID, &convID); err != nil {
			return nil, err
		}
		out[msgID] = convID
	}
	return out, rows.Err()
}

// SavedCount returns how many messages the user has saved in a conversation.
func (db *DB) SavedCount(userID, conversationID string) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM saved_messages
		WHERE user_id = ? AND conversation_id = ?`, userID, conversationID).Scan(&n)
	return n, err
}
