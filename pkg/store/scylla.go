package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gocql/gocql"

	"github.com/etalonmax94/CareConnect-sub003/pkg/model"
)

// Scylla implements Store on a ScyllaDB/Cassandra keyspace.
type Scylla struct {
	session *gocql.Session
}

// Connect opens a session against the chat keyspace.
func Connect(hosts []string, keyspace string) (*Scylla, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}
	log.Println("Connected to ScyllaDB cluster")
	return &Scylla{session: session}, nil
}

// EnsureKeyspace creates the keyspace, connecting via the system keyspace.
func EnsureKeyspace(hosts []string, keyspace string) error {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = "system"
	cluster.Timeout = 5 * time.Second
	session, err := cluster.CreateSession()
	if err != nil {
		return err
	}
	defer session.Close()

	cql := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = `+
		`{ 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`, keyspace)
	return session.Query(cql).Exec()
}

// ApplySchema creates all tables. Idempotent.
func (s *Scylla) ApplySchema() error {
	for _, cql := range Schema {
		if err := s.session.Query(cql).Exec(); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// DropTables removes every table the schema owns, for reset tooling.
func (s *Scylla) DropTables() error {
	for _, table := range TableNames {
		if err := s.session.Query("DROP TABLE IF EXISTS " + table).Exec(); err != nil {
			return fmt.Errorf("dropping table %s: %w", table, err)
		}
	}
	return nil
}

func (s *Scylla) Close() {
	s.session.Close()
}

func (s *Scylla) CreateRoom(ctx context.Context, room model.Room, participants []model.Participant) error {
	q := `INSERT INTO rooms (room_id, room_type, name, description, client_id, archived, created_at, last_message_at, last_message_preview)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if err := s.session.Query(q, room.ID, string(room.Type), room.Name, room.Description,
		room.ClientID, room.Archived, room.CreatedAt, room.LastMessageAt, room.LastMessagePreview).
		WithContext(ctx).Exec(); err != nil {
		return err
	}
	for _, p := range participants {
		if err := s.AddParticipant(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scylla) Room(ctx context.Context, roomID string) (model.Room, error) {
	var r model.Room
	var roomType string
	q := `SELECT room_id, room_type, name, description, client_id, archived, created_at, last_message_at, last_message_preview
		FROM rooms WHERE room_id = ?`
	err := s.session.Query(q, roomID).WithContext(ctx).Scan(
		&r.ID, &roomType, &r.Name, &r.Description, &r.ClientID,
		&r.Archived, &r.CreatedAt, &r.LastMessageAt, &r.LastMessagePreview)
	if err == gocql.ErrNotFound {
		return model.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return model.Room{}, err
	}
	r.Type = model.RoomType(roomType)
	return r, nil
}

func (s *Scylla) UpdateRoomMeta(ctx context.Context, roomID, name, description string) error {
	q := `UPDATE rooms SET name = ?, description = ? WHERE room_id = ?`
	return s.session.Query(q, name, description, roomID).WithContext(ctx).Exec()
}

func (s *Scylla) ArchiveRoom(ctx context.Context, roomID string) error {
	q := `UPDATE rooms SET archived = true WHERE room_id = ?`
	return s.session.Query(q, roomID).WithContext(ctx).Exec()
}

func (s *Scylla) SetLastMessage(ctx context.Context, roomID string, at time.Time, preview string) error {
	q := `UPDATE rooms SET last_message_at = ?, last_message_preview = ? WHERE room_id = ?`
	return s.session.Query(q, at, preview, roomID).WithContext(ctx).Exec()
}

func (s *Scylla) Participants(ctx context.Context, roomID string) ([]model.Participant, error) {
	q := `SELECT room_id, user_id, role, staff_name, joined_at FROM room_participants WHERE room_id = ?`
	iter := s.session.Query(q, roomID).WithContext(ctx).Iter()

	var out []model.Participant
	var p model.Participant
	var role string
	for iter.Scan(&p.RoomID, &p.UserID, &role, &p.StaffName, &p.JoinedAt) {
		p.Role = model.Role(role)
		out = append(out, p)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scylla) Participant(ctx context.Context, roomID, userID string) (model.Participant, error) {
	var p model.Participant
	var role string
	q := `SELECT room_id, user_id, role, staff_name, joined_at FROM room_participants WHERE room_id = ? AND user_id = ?`
	err := s.session.Query(q, roomID, userID).WithContext(ctx).Scan(
		&p.RoomID, &p.UserID, &role, &p.StaffName, &p.JoinedAt)
	if err == gocql.ErrNotFound {
		return model.Participant{}, ErrNotParticipant
	}
	if err != nil {
		return model.Participant{}, err
	}
	p.Role = model.Role(role)
	return p, nil
}

func (s *Scylla) AddParticipant(ctx context.Context, p model.Participant) error {
	q := `INSERT INTO room_participants (room_id, user_id, role, staff_name, joined_at) VALUES (?, ?, ?, ?, ?)`
	if err := s.session.Query(q, p.RoomID, p.UserID, string(p.Role), p.StaffName, p.JoinedAt).
		WithContext(ctx).Exec(); err != nil {
		return err
	}
	q = `INSERT INTO user_rooms (user_id, room_id) VALUES (?, ?)`
	return s.session.Query(q, p.UserID, p.RoomID).WithContext(ctx).Exec()
}

func (s *Scylla) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	q := `DELETE FROM room_participants WHERE room_id = ? AND user_id = ?`
	if err := s.session.Query(q, roomID, userID).WithContext(ctx).Exec(); err != nil {
		return err
	}
	q = `DELETE FROM user_rooms WHERE user_id = ? AND room_id = ?`
	return s.session.Query(q, userID, roomID).WithContext(ctx).Exec()
}

func (s *Scylla) SetRole(ctx context.Context, roomID, userID string, role model.Role) error {
	q := `UPDATE room_participants SET role = ? WHERE room_id = ? AND user_id = ?`
	return s.session.Query(q, string(role), roomID, userID).WithContext(ctx).Exec()
}

func (s *Scylla) RoomsForUser(ctx context.Context, userID string) ([]model.Room, error) {
	iter := s.session.Query(`SELECT room_id FROM user_rooms WHERE user_id = ?`, userID).
		WithContext(ctx).Iter()

	var roomIDs []string
	var id string
	for iter.Scan(&id) {
		roomIDs = append(roomIDs, id)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	rooms := make([]model.Room, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		room, err := s.Room(ctx, roomID)
		if err == ErrRoomNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *Scylla) InsertMessage(ctx context.Context, m model.Message) error {
	q := `INSERT INTO messages (room_id, id, sender_id, sender_name, content, created_at, is_edited)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	return s.session.Query(q, m.RoomID, m.ID, m.SenderID, m.SenderName, m.Content, m.CreatedAt, m.IsEdited).
		WithContext(ctx).Exec()
}

func (s *Scylla) UpdateMessage(ctx context.Context, roomID string, id int64, content string) error {
	q := `UPDATE messages SET content = ?, is_edited = true WHERE room_id = ? AND id = ?`
	return s.session.Query(q, content, roomID, id).WithContext(ctx).Exec()
}

func (s *Scylla) Message(ctx context.Context, roomID string, id int64) (model.Message, error) {
	var m model.Message
	q := `SELECT room_id, id, sender_id, sender_name, content, created_at, is_edited
		FROM messages WHERE room_id = ? AND id = ?`
	err := s.session.Query(q, roomID, id).WithContext(ctx).Scan(
		&m.RoomID, &m.ID, &m.SenderID, &m.SenderName, &m.Content, &m.CreatedAt, &m.IsEdited)
	if err == gocql.ErrNotFound {
		return model.Message{}, ErrMessageNotFound
	}
	return m, err
}

func (s *Scylla) Messages(ctx context.Context, roomID string, beforeID int64, limit int) ([]model.Message, error) {
	var iter *gocql.Iter
	if beforeID > 0 {
		q := `SELECT room_id, id, sender_id, sender_name, content, created_at, is_edited
			FROM messages WHERE room_id = ? AND id < ? LIMIT ?`
		iter = s.session.Query(q, roomID, beforeID, limit).WithContext(ctx).Iter()
	} else {
		q := `SELECT room_id, id, sender_id, sender_name, content, created_at, is_edited
			FROM messages WHERE room_id = ? LIMIT ?`
		iter = s.session.Query(q, roomID, limit).WithContext(ctx).Iter()
	}

	var out []model.Message
	var m model.Message
	for iter.Scan(&m.RoomID, &m.ID, &m.SenderID, &m.SenderName, &m.Content, &m.CreatedAt, &m.IsEdited) {
		out = append(out, m)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scylla) LatestMessageID(ctx context.Context, roomID string) (int64, error) {
	var id int64
	err := s.session.Query(`SELECT id FROM messages WHERE room_id = ? LIMIT 1`, roomID).
		WithContext(ctx).Scan(&id)
	if err == gocql.ErrNotFound {
		return 0, nil
	}
	return id, err
}

func (s *Scylla) ReadMarker(ctx context.Context, roomID, userID string) (model.ReadMarker, bool, error) {
	var m model.ReadMarker
	q := `SELECT room_id, user_id, last_read_id, last_read_at FROM read_markers WHERE room_id = ? AND user_id = ?`
	err := s.session.Query(q, roomID, userID).WithContext(ctx).Scan(
		&m.RoomID, &m.UserID, &m.LastReadID, &m.LastReadAt)
	if err == gocql.ErrNotFound {
		return model.ReadMarker{}, false, nil
	}
	if err != nil {
		return model.ReadMarker{}, false, err
	}
	return m, true, nil
}

func (s *Scylla) SetReadMarker(ctx context.Context, m model.ReadMarker) error {
	q := `INSERT INTO read_markers (room_id, user_id, last_read_id, last_read_at) VALUES (?, ?, ?, ?)`
	return s.session.Query(q, m.RoomID, m.UserID, m.LastReadID, m.LastReadAt).WithContext(ctx).Exec()
}

func (s *Scylla) BumpUnread(ctx context.Context, userID, roomID string, delta int64) error {
	q := `UPDATE unread_counters SET unread = unread + ? WHERE user_id = ? AND room_id = ?`
	return s.session.Query(q, delta, userID, roomID).WithContext(ctx).Exec()
}

// ResetUnread deletes the counter row; with Scylla counters, deletion is the
// way to zero.
func (s *Scylla) ResetUnread(ctx context.Context, userID, roomID string) error {
	q := `DELETE FROM unread_counters WHERE user_id = ? AND room_id = ?`
	return s.session.Query(q, userID, roomID).WithContext(ctx).Exec()
}

func (s *Scylla) Unread(ctx context.Context, userID, roomID string) (int64, error) {
	var n int64
	q := `SELECT unread FROM unread_counters WHERE user_id = ? AND room_id = ?`
	err := s.session.Query(q, userID, roomID).WithContext(ctx).Scan(&n)
	if err == gocql.ErrNotFound {
		return 0, nil
	}
	return n, err
}

func (s *Scylla) Staff(ctx context.Context, userID string) (model.Staff, error) {
	var st model.Staff
	q := `SELECT user_id, name, org_role, app_admin FROM staff WHERE user_id = ?`
	err := s.session.Query(q, userID).WithContext(ctx).Scan(&st.UserID, &st.Name, &st.OrgRole, &st.AppAdmin)
	if err == gocql.ErrNotFound {
		return model.Staff{}, ErrStaffNotFound
	}
	return st, err
}

func (s *Scylla) StaffByRoles(ctx context.Context, orgRoles []string) ([]model.Staff, error) {
	var out []model.Staff
	for _, role := range orgRoles {
		iter := s.session.Query(`SELECT user_id, name, app_admin FROM staff_by_role WHERE org_role = ?`, role).
			WithContext(ctx).Iter()
		var st model.Staff
		st.OrgRole = role
		for iter.Scan(&st.UserID, &st.Name, &st.AppAdmin) {
			out = append(out, st)
		}
		if err := iter.Close(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Scylla) UpsertStaff(ctx context.Context, st model.Staff) error {
	q := `INSERT INTO staff (user_id, name, org_role, app_admin) VALUES (?, ?, ?, ?)`
	if err := s.session.Query(q, st.UserID, st.Name, st.OrgRole, st.AppAdmin).WithContext(ctx).Exec(); err != nil {
		return err
	}
	q = `INSERT INTO staff_by_role (org_role, user_id, name, app_admin) VALUES (?, ?, ?, ?)`
	return s.session.Query(q, st.OrgRole, st.UserID, st.Name, st.AppAdmin).WithContext(ctx).Exec()
}
