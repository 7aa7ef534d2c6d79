package history

// SearchMessages performs a full-text search on message content. Used as
// the offline fallback when the full conversation cannot be fetched.
func (db *DB) SearchMessages(query string, conversationID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.id, m.conversation_id, m.msg_id, m.sender_id, m.receiver_id, m.content,
		       m.timestamp, m.is_read, m.recall_type, m.reply_to_id, m.attachments, m.status,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if conversationID != "" {
		q += " AND m.conversation_id = ?"
		args = append(args, conversationID)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Message.RowID, &r.Message.ConversationID, &r.Message.MsgID,
			&r.Message.SenderID, &r.Message.ReceiverID, &r.Message.Content,
			&r.Message.Timestamp, &r.Message.IsRead, &r.Message.RecallType,
			&r.Message.ReplyToID, &r.Message.Attachments, &r.Message.Status,
			&r.Snippet,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
