package store

import "time"

// TouchRecentRoom records a successful join of roomID.
func (db *DB) TouchRecentRoom(roomID string, at time.Time) error {
	_, err := db.Exec(`
		INSERT INTO recent_rooms (room_id, last_joined_at, join_count)
		VALUES (?, ?, 1)
		ON CONFLICT(room_id) DO UPDATE SET
			last_joined_at = excluded.last_joined_at,
			join_count = recent_rooms.join_count + 1`,
		roomID, at.UnixMilli())
	return err
}

// ListRecentRooms returns rooms ordered by most recent join.
func (db *DB) ListRecentRooms(limit int) ([]RecentRoom, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT room_id, last_joined_at, join_count
		FROM recent_rooms
		ORDER BY last_joined_at DESC, room_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var rooms []RecentRoom
	for rows.Next() {
		var r RecentRoom
		if err := rows.Scan(&r.RoomID, &r.LastJoinedAt, &r.JoinCount); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// ForgetRecentRooms clears the local recent-room history.
func (db *DB) ForgetRecentRooms() error {
	_, err := db.Exec(`DELETE FROM recent_rooms`)
	return err
}
