package announce

import (
	"database/sql"
	"fmt"

	"github.com/benbjohnson/clock"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

// SQLiteBook is an address book persisted in SQLite, so announcements seen
// before a restart can bootstrap joins without waiting for the DHT
type SQLiteBook struct {
	db    *sql.DB
	clock clock.Clock
}

// NewSQLiteBook opens (or creates) the address book at dbPath
func NewSQLiteBook(dbPath string, clk clock.Clock) (*SQLiteBook, error) {
	if clk == nil {
		clk = clock.New()
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %v", err)
	}

	b := &SQLiteBook{db: db, clock: clk}
	if err := b.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBook) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS announcements (
		chat_key TEXT NOT NULL,
		public_key TEXT NOT NULL,
		addr TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		signature BLOB NOT NULL,
		PRIMARY KEY (chat_key, public_key)
	);

	CREATE INDEX IF NOT EXISTS idx_announcements_chat ON announcements(chat_key, timestamp DESC);
	`

	if _, err := b.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %v", err)
	}
	return nil
}

// Publish stores a verified announcement unless a newer one is already stored
func (b *SQLiteBook) Publish(a *Announcement) error {
	if err := a.Verify(b.clock.Now()); err != nil {
		return err
	}

	query := `
		INSERT INTO announcements (chat_key, public_key, addr, timestamp, signature)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_key, public_key) DO UPDATE SET
			addr = excluded.addr,
			timestamp = excluded.timestamp,
			signature = excluded.signature
		WHERE excluded.timestamp > announcements.timestamp
	`

	_, err := b.db.Exec(query, a.ChatKey.String(), a.PublicKey.String(), a.Addr, a.Timestamp, a.Signature)
	if err != nil {
		return fmt.Errorf("failed to store announcement: %v", err)
	}
	return nil
}

// Lookup returns the freshest members announced for a chat, newest first.
// Rows are verified again on the way out.
func (b *SQLiteBook) Lookup(chatKey crypto.ExtPublicKey) []Entry {
	anns, err := b.announcements(chatKey)
	if err != nil {
		return nil
	}
	return entriesOf(anns)
}

func (b *SQLiteBook) announcements(chatKey crypto.ExtPublicKey) ([]*Announcement, error) {
	now := b.clock.Now()
	cutoff := now.Add(-TTL).Unix()

	query := `
		SELECT public_key, addr, timestamp, signature
		FROM announcements
		WHERE chat_key = ? AND timestamp >= ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := b.db.Query(query, chatKey.String(), cutoff, MaxEntriesPerChat)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anns []*Announcement
	for rows.Next() {
		a := &Announcement{ChatKey: chatKey}
		var pk string
		if err := rows.Scan(&pk, &a.Addr, &a.Timestamp, &a.Signature); err != nil {
			return nil, err
		}
		if err := a.PublicKey.UnmarshalText([]byte(pk)); err != nil {
			continue
		}
		if err := a.Verify(now); err != nil {
			continue
		}
		anns = append(anns, a)
	}
	return anns, rows.Err()
}

// Prune deletes announcements older than TTL and returns how many were removed
func (b *SQLiteBook) Prune() (int64, error) {
	cutoff := b.clock.Now().Add(-TTL).Unix()
	res, err := b.db.Exec("DELETE FROM announcements WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Forget drops every announcement of a chat
func (b *SQLiteBook) Forget(chatKey crypto.ExtPublicKey) {
	b.db.Exec("DELETE FROM announcements WHERE chat_key = ?", chatKey.String())
}

// Close closes the database connection
func (b *SQLiteBook) Close() error {
	return b.db.Close()
}
