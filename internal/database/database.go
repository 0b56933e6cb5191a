package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nasheedpro/pkg/models"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

var (
	// ErrDuplicateIdentity is returned when a username or email collides
	// with an existing account. The unique constraints on the users table
	// are the source of truth; no look-then-insert check is performed.
	ErrDuplicateIdentity = errors.New("username or email already exists")

	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
)

// Database wraps a *sql.DB providing higher-level helper methods for
// interacting with the application's persistent store. It is safe for
// concurrent use because the underlying *sql.DB is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	// Prepared statements for better performance
	insertSongStmt   *sql.Stmt
	getSongByIDStmt  *sql.Stmt
	songExistsStmt   *sql.Stmt
	removeSongStmt   *sql.Stmt
	deleteFavStmt    *sql.Stmt
	insertFavStmt    *sql.Stmt
	getUserByIDStmt  *sql.Stmt
	findIdentityStmt *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at the provided path and
// ensures all required tables and indices exist. It also applies lightweight
// performance-oriented pragmas (WAL, cache sizing). Caller should Close() it
// when finished.
func NewDatabase(dbPath string) (*Database, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - adjusted for SQLite
	conn.SetMaxOpenConns(5) // SQLite works better with fewer connections
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	// Enable WAL mode for better concurrency
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;", // Enable foreign key constraints
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// createTables creates tables and indices if they do not already exist.
// This is idempotent and safe to call multiple times.
func (db *Database) createTables() error {
	usersTable := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		phone TEXT,
		password_hash TEXT NOT NULL,
		is_premium BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	songsTable := `
	CREATE TABLE IF NOT EXISTS songs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		artist TEXT,
		cover TEXT,
		file_path TEXT NOT NULL UNIQUE,
		duration INTEGER DEFAULT 0,
		file_size INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	// The composite primary key doubles as the toggle-race guard: two
	// concurrent inserts for the same pair cannot both succeed.
	favoritesTable := `
	CREATE TABLE IF NOT EXISTS favorites (
		user_id INTEGER NOT NULL,
		song_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE,
		PRIMARY KEY (user_id, song_id)
	);`

	playlistsTable := `
	CREATE TABLE IF NOT EXISTS playlists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_songs_artist ON songs(artist);",
		"CREATE INDEX IF NOT EXISTS idx_songs_file_path ON songs(file_path);",
		"CREATE INDEX IF NOT EXISTS idx_favorites_song ON favorites(song_id);",
		"CREATE INDEX IF NOT EXISTS idx_playlists_user ON playlists(user_id, created_at);",
	}

	tables := []string{usersTable, songsTable, favoritesTable, playlistsTable}
	for _, table := range tables {
		if _, err := db.conn.Exec(table); err != nil {
			return err
		}
	}

	for _, index := range indices {
		if _, err := db.conn.Exec(index); err != nil {
			return err
		}
	}

	return nil
}

// prepareStatements prepares commonly used SQL statements for better performance
func (db *Database) prepareStatements() error {
	var err error

	db.insertSongStmt, err = db.conn.Prepare(`
		INSERT INTO songs (title, artist, cover, file_path, duration, file_size)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert song statement: %w", err)
	}

	db.getSongByIDStmt, err = db.conn.Prepare(`
		SELECT id, title, COALESCE(artist, ''), COALESCE(cover, ''), file_path, duration, file_size
		FROM songs WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get song by ID statement: %w", err)
	}

	db.songExistsStmt, err = db.conn.Prepare(`
		SELECT COUNT(*) FROM songs WHERE file_path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare song exists statement: %w", err)
	}

	db.removeSongStmt, err = db.conn.Prepare(`
		DELETE FROM songs WHERE file_path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare remove song statement: %w", err)
	}

	db.deleteFavStmt, err = db.conn.Prepare(`
		DELETE FROM favorites WHERE user_id = ? AND song_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete favorite statement: %w", err)
	}

	db.insertFavStmt, err = db.conn.Prepare(`
		INSERT OR IGNORE INTO favorites (user_id, song_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert favorite statement: %w", err)
	}

	db.getUserByIDStmt, err = db.conn.Prepare(`
		SELECT id, username, email, COALESCE(phone, ''), password_hash, is_premium, created_at
		FROM users WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get user by ID statement: %w", err)
	}

	db.findIdentityStmt, err = db.conn.Prepare(`
		SELECT id, username, email, COALESCE(phone, ''), password_hash, is_premium, created_at
		FROM users WHERE username = ? OR email = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare find identity statement: %w", err)
	}

	return nil
}

// CreateUser inserts a new user row and returns its ID. A unique constraint
// violation on username or email maps to ErrDuplicateIdentity.
func (db *Database) CreateUser(username, email, phone, passwordHash string) (int, error) {
	var phoneVal interface{}
	if phone != "" {
		phoneVal = phone
	}

	result, err := db.conn.Exec(`
		INSERT INTO users (username, email, phone, password_hash)
		VALUES (?, ?, ?, ?)`, username, email, phoneVal, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateIdentity
		}
		db.logger.WithError(err).WithField("username", username).Error("Failed to insert user")
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(id), nil
}

// GetUserByIdentifier looks a user up by username or email.
func (db *Database) GetUserByIdentifier(identifier string) (*models.User, error) {
	return db.scanUser(db.findIdentityStmt.QueryRow(identifier, identifier))
}

// GetUserByID returns a user by its primary key.
func (db *Database) GetUserByID(id int) (*models.User, error) {
	return db.scanUser(db.getUserByIDStmt.QueryRow(id))
}

func (db *Database) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Phone,
		&user.PasswordHash, &user.IsPremium, &user.Created)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// SetPremium marks the user as premium. Setting an already-premium user is a
// no-op that still succeeds.
func (db *Database) SetPremium(userID int) error {
	result, err := db.conn.Exec("UPDATE users SET is_premium = TRUE WHERE id = ?", userID)
	if err != nil {
		db.logger.WithError(err).WithField("user_id", userID).Error("Failed to set premium flag")
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// UPDATE matches but reports 0 changed rows only when the user does
		// not exist; an already-premium row still matches.
		if _, err := db.GetUserByID(userID); err != nil {
			return err
		}
	}
	return nil
}

// InsertSong inserts a new song or updates an existing song (matched by
// file_path) returning the song's database ID.
func (db *Database) InsertSong(song models.Song) (int, error) {
	var existingID int
	err := db.conn.QueryRow("SELECT id FROM songs WHERE file_path = ?", song.FilePath).Scan(&existingID)
	if err == nil {
		_, err = db.conn.Exec(`
			UPDATE songs SET title = ?, artist = ?, cover = ?, duration = ?, file_size = ?
			WHERE id = ?`,
			song.Title, nullable(song.Artist), nullable(song.Cover), song.Duration, song.FileSize, existingID)
		if err != nil {
			db.logger.WithError(err).WithField("song_id", existingID).Error("Failed to update existing song")
		}
		return existingID, err
	}

	result, err := db.insertSongStmt.Exec(
		song.Title, nullable(song.Artist), nullable(song.Cover), song.FilePath, song.Duration, song.FileSize)
	if err != nil {
		db.logger.WithError(err).WithField("file_path", song.FilePath).Error("Failed to insert new song")
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		db.logger.WithError(err).Error("Failed to get last insert ID")
		return 0, err
	}

	return int(id), nil
}

// GetAllSongs returns the whole catalog ordered by artist then title.
func (db *Database) GetAllSongs() ([]models.Song, error) {
	rows, err := db.conn.Query(`
		SELECT id, title, COALESCE(artist, ''), COALESCE(cover, ''), file_path, duration, file_size
		FROM songs
		ORDER BY artist, title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var songs []models.Song
	for rows.Next() {
		var song models.Song
		if err := rows.Scan(&song.ID, &song.Title, &song.Artist, &song.Cover,
			&song.FilePath, &song.Duration, &song.FileSize); err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// GetSongsWithFavorites returns the whole catalog annotated with the given
// user's favorite state, in a single LEFT JOIN query.
func (db *Database) GetSongsWithFavorites(userID int) ([]models.AnnotatedSong, error) {
	rows, err := db.conn.Query(`
		SELECT s.id, s.title, COALESCE(s.artist, ''), COALESCE(s.cover, ''), s.file_path, s.duration, s.file_size,
			   f.song_id IS NOT NULL AS is_favorite
		FROM songs s
		LEFT JOIN favorites f ON f.song_id = s.id AND f.user_id = ?
		ORDER BY s.artist, s.title`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var songs []models.AnnotatedSong
	for rows.Next() {
		var song models.AnnotatedSong
		if err := rows.Scan(&song.ID, &song.Title, &song.Artist, &song.Cover,
			&song.FilePath, &song.Duration, &song.FileSize, &song.IsFavorite); err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// GetSongByID returns a single song by its ID.
func (db *Database) GetSongByID(id int) (*models.Song, error) {
	var song models.Song
	err := db.getSongByIDStmt.QueryRow(id).Scan(&song.ID, &song.Title, &song.Artist,
		&song.Cover, &song.FilePath, &song.Duration, &song.FileSize)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		db.logger.WithError(err).WithField("song_id", id).Error("Failed to get song by ID")
		return nil, err
	}
	return &song, nil
}

// SongExists returns true if a song exists with the given file path.
func (db *Database) SongExists(filePath string) (bool, error) {
	var count int
	err := db.songExistsStmt.QueryRow(filePath).Scan(&count)
	if err != nil {
		db.logger.WithError(err).WithField("file_path", filePath).Error("Failed to check if song exists")
		return false, err
	}
	return count > 0, nil
}

// RemoveSongByPath deletes a song row identified by its file path.
func (db *Database) RemoveSongByPath(filePath string) error {
	_, err := db.removeSongStmt.Exec(filePath)
	if err != nil {
		db.logger.WithError(err).WithField("file_path", filePath).Error("Failed to remove song by path")
	}
	return err
}

// ToggleFavorite flips the favorite association for (userID, songID) and
// returns the resulting state. The delete runs first; when it removes
// nothing, INSERT OR IGNORE creates the row. Losing the insert race to a
// concurrent toggle still converges on is_favorite = true.
func (db *Database) ToggleFavorite(userID, songID int) (bool, error) {
	if _, err := db.GetSongByID(songID); err != nil {
		return false, err
	}

	result, err := db.deleteFavStmt.Exec(userID, songID)
	if err != nil {
		db.logger.WithError(err).WithField("song_id", songID).Error("Failed to delete favorite")
		return false, err
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if deleted > 0 {
		return false, nil
	}

	if _, err := db.insertFavStmt.Exec(userID, songID); err != nil {
		db.logger.WithError(err).WithField("song_id", songID).Error("Failed to insert favorite")
		return false, err
	}
	return true, nil
}

// CountFavorites returns the number of favorite rows for a (user, song) pair.
func (db *Database) CountFavorites(userID, songID int) (int, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM favorites WHERE user_id = ? AND song_id = ?",
		userID, songID).Scan(&count)
	return count, err
}

// CreatePlaylist inserts a new playlist for the user and returns its ID.
func (db *Database) CreatePlaylist(userID int, name string) (int, error) {
	result, err := db.conn.Exec(`
		INSERT INTO playlists (user_id, name)
		VALUES (?, ?)`, userID, name)
	if err != nil {
		db.logger.WithError(err).WithField("user_id", userID).Error("Failed to create playlist")
		return 0, err
	}

	id, err := result.LastInsertId()
	return int(id), err
}

// GetPlaylistsByUser returns the user's playlists ordered newest-first.
func (db *Database) GetPlaylistsByUser(userID int) ([]models.Playlist, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, name, created_at
		FROM playlists
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var playlists []models.Playlist
	for rows.Next() {
		var playlist models.Playlist
		if err := rows.Scan(&playlist.ID, &playlist.UserID, &playlist.Name, &playlist.CreatedAt); err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}
	return playlists, rows.Err()
}

// Ping verifies the store is reachable.
func (db *Database) Ping() error {
	return db.conn.Ping()
}

// Close closes the underlying database connection and prepared statements.
func (db *Database) Close() error {
	statements := []*sql.Stmt{
		db.insertSongStmt,
		db.getSongByIDStmt,
		db.songExistsStmt,
		db.removeSongStmt,
		db.deleteFavStmt,
		db.insertFavStmt,
		db.getUserByIDStmt,
		db.findIdentityStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				db.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// nullable converts empty strings to NULL for optional text columns.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
