package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// SQLite allows a single writer; one pooled connection also keeps the
	// foreign_keys pragma in effect for every statement.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS profiles (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id INTEGER UNIQUE NOT NULL,
        api_key TEXT UNIQUE NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS chats (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        unique_identifier TEXT NOT NULL,
        user_id INTEGER NOT NULL,
        name TEXT NOT NULL,
        raw_content TEXT,
        json_data TEXT,
        markdown TEXT NOT NULL DEFAULT '',
        checksum TEXT NOT NULL DEFAULT '',
        images_downloaded BOOLEAN NOT NULL DEFAULT FALSE,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (unique_identifier, user_id),
        FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS code_fragments (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        chat_id INTEGER NOT NULL,
        filename TEXT,
        language TEXT,
        source_code TEXT NOT NULL,
        checksum TEXT NOT NULL,
        selected BOOLEAN NOT NULL DEFAULT FALSE,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (chat_id) REFERENCES chats (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS chat_images (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        chat_id INTEGER NOT NULL,
        source_url TEXT NOT NULL,
        title TEXT,
        description TEXT,
        local_path TEXT NOT NULL,
        checksum TEXT NOT NULL,
        blacklisted BOOLEAN NOT NULL DEFAULT FALSE,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (chat_id) REFERENCES chats (id) ON DELETE CASCADE
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts the user and its profile with a fresh API key.
func (s *SQLiteStore) CreateUser(username, passwordHash string) (*User, error) {
	res, err := s.db.Exec("INSERT INTO users (username, password_hash) VALUES (?, ?)", username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()

	_, err = s.db.Exec("INSERT INTO profiles (user_id, api_key) VALUES (?, ?)", id, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to insert profile: %w", err)
	}
	return s.getUserByID(id)
}

func (s *SQLiteStore) getUserByID(id int64) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, password_hash, created_at FROM users WHERE id = ?", id).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Profile methods

func (s *SQLiteStore) GetProfileByAPIKey(apiKey string) (*Profile, error) {
	var profile Profile
	err := s.db.QueryRow("SELECT id, user_id, api_key FROM profiles WHERE api_key = ?", apiKey).Scan(&profile.ID, &profile.UserID, &profile.APIKey)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return &profile, nil
}

func (s *SQLiteStore) GetProfileByUserID(userID int64) (*Profile, error) {
	var profile Profile
	err := s.db.QueryRow("SELECT id, user_id, api_key FROM profiles WHERE user_id = ?", userID).Scan(&profile.ID, &profile.UserID, &profile.APIKey)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return &profile, nil
}

// RegenerateAPIKey replaces the user's API key and returns the new value.
func (s *SQLiteStore) RegenerateAPIKey(userID int64) (string, error) {
	newKey := uuid.NewString()
	res, err := s.db.Exec("UPDATE profiles SET api_key = ? WHERE user_id = ?", newKey, userID)
	if err != nil {
		return "", fmt.Errorf("failed to update api key: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return "", fmt.Errorf("profile not found, api key not regenerated")
	}
	return newKey, nil
}

// Chat methods

func (s *SQLiteStore) CreateChat(chat *Chat) error {
	stmt, err := s.db.Prepare("INSERT INTO chats (unique_identifier, user_id, name, raw_content, json_data, markdown, checksum, images_downloaded, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chat insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(chat.UniqueIdentifier, chat.UserID, chat.Name, chat.RawContent, chat.JSONData, chat.Markdown, chat.Checksum, chat.ImagesDownloaded, now, now)
	if err != nil {
		return fmt.Errorf("failed to execute chat insert: %w", err)
	}
	chat.ID, _ = res.LastInsertId()
	chat.CreatedAt = now
	chat.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetChatByIdentifier(identifier string, userID int64) (*Chat, error) {
	row := s.db.QueryRow("SELECT id, unique_identifier, user_id, name, raw_content, json_data, markdown, checksum, images_downloaded, created_at, updated_at FROM chats WHERE unique_identifier = ? AND user_id = ?", identifier, userID)
	return scanChat(row)
}

func (s *SQLiteStore) GetChatByID(chatID int64, userID int64) (*Chat, error) {
	row := s.db.QueryRow("SELECT id, unique_identifier, user_id, name, raw_content, json_data, markdown, checksum, images_downloaded, created_at, updated_at FROM chats WHERE id = ? AND user_id = ?", chatID, userID)
	return scanChat(row)
}

func scanChat(row *sql.Row) (*Chat, error) {
	var chat Chat
	var rawContent, jsonData sql.NullString
	err := row.Scan(&chat.ID, &chat.UniqueIdentifier, &chat.UserID, &chat.Name, &rawContent, &jsonData, &chat.Markdown, &chat.Checksum, &chat.ImagesDownloaded, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if rawContent.Valid {
		chat.RawContent = &rawContent.String
	}
	if jsonData.Valid {
		chat.JSONData = &jsonData.String
	}
	return &chat, nil
}

func (s *SQLiteStore) GetChatsByUserID(userID int64) ([]Chat, error) {
	rows, err := s.db.Query("SELECT id, unique_identifier, user_id, name, raw_content, json_data, markdown, checksum, images_downloaded, created_at, updated_at FROM chats WHERE user_id = ? ORDER BY updated_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var chat Chat
		var rawContent, jsonData sql.NullString
		if err := rows.Scan(&chat.ID, &chat.UniqueIdentifier, &chat.UserID, &chat.Name, &rawContent, &jsonData, &chat.Markdown, &chat.Checksum, &chat.ImagesDownloaded, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		if rawContent.Valid {
			chat.RawContent = &rawContent.String
		}
		if jsonData.Valid {
			chat.JSONData = &jsonData.String
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

// UpdateChatContent writes back every payload-bearing field of the chat.
func (s *SQLiteStore) UpdateChatContent(chat *Chat) error {
	stmt, err := s.db.Prepare("UPDATE chats SET name = ?, raw_content = ?, json_data = ?, markdown = ?, checksum = ?, images_downloaded = ?, updated_at = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare chat update: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(chat.Name, chat.RawContent, chat.JSONData, chat.Markdown, chat.Checksum, chat.ImagesDownloaded, now, chat.ID)
	if err != nil {
		return fmt.Errorf("failed to execute chat update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("chat not found, content not updated")
	}
	chat.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) UpdateChatName(chatID int64, userID int64, name string) error {
	res, err := s.db.Exec("UPDATE chats SET name = ?, updated_at = ? WHERE id = ? AND user_id = ?", name, time.Now(), chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to execute chat name update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("chat not found or not owned by user, name not updated")
	}
	return nil
}

// DeleteChat removes the chat; fragments and images go with it via cascade.
func (s *SQLiteStore) DeleteChat(chatID int64, userID int64) error {
	res, err := s.db.Exec("DELETE FROM chats WHERE id = ? AND user_id = ?", chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("chat not found or not owned by user, not deleted")
	}
	return nil
}

// Code fragment methods

func (s *SQLiteStore) CreateCodeFragment(fragment *CodeFragment) error {
	stmt, err := s.db.Prepare("INSERT INTO code_fragments (chat_id, filename, language, source_code, checksum, selected, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare fragment insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(fragment.ChatID, fragment.Filename, fragment.Language, fragment.SourceCode, fragment.Checksum, fragment.Selected, now)
	if err != nil {
		return fmt.Errorf("failed to execute fragment insert: %w", err)
	}
	fragment.ID, _ = res.LastInsertId()
	fragment.CreatedAt = now
	return nil
}

func (s *SQLiteStore) GetFragmentsByChatID(chatID int64) ([]CodeFragment, error) {
	rows, err := s.db.Query("SELECT id, chat_id, filename, language, source_code, checksum, selected, created_at FROM code_fragments WHERE chat_id = ? ORDER BY created_at ASC, id ASC", chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fragments: %w", err)
	}
	defer rows.Close()
	return scanFragments(rows)
}

// GetFragmentsByChatAndFilename matches NULL filenames when filename is nil;
// "IS" compares NULL as equal where "=" would not.
func (s *SQLiteStore) GetFragmentsByChatAndFilename(chatID int64, filename *string) ([]CodeFragment, error) {
	rows, err := s.db.Query("SELECT id, chat_id, filename, language, source_code, checksum, selected, created_at FROM code_fragments WHERE chat_id = ? AND filename IS ?", chatID, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to query fragments by filename: %w", err)
	}
	defer rows.Close()
	return scanFragments(rows)
}

func scanFragments(rows *sql.Rows) ([]CodeFragment, error) {
	var fragments []CodeFragment
	for rows.Next() {
		var fragment CodeFragment
		var filename, language sql.NullString
		if err := rows.Scan(&fragment.ID, &fragment.ChatID, &filename, &language, &fragment.SourceCode, &fragment.Checksum, &fragment.Selected, &fragment.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fragment row: %w", err)
		}
		if filename.Valid {
			fragment.Filename = &filename.String
		}
		if language.Valid {
			fragment.Language = &language.String
		}
		fragments = append(fragments, fragment)
	}
	return fragments, nil
}

// GetFragmentByID returns the fragment only if its chat belongs to the user.
func (s *SQLiteStore) GetFragmentByID(fragmentID int64, userID int64) (*CodeFragment, error) {
	var fragment CodeFragment
	var filename, language sql.NullString
	err := s.db.QueryRow(`
        SELECT f.id, f.chat_id, f.filename, f.language, f.source_code, f.checksum, f.selected, f.created_at
        FROM code_fragments f JOIN chats c ON c.id = f.chat_id
        WHERE f.id = ? AND c.user_id = ?`, fragmentID, userID).Scan(&fragment.ID, &fragment.ChatID, &filename, &language, &fragment.SourceCode, &fragment.Checksum, &fragment.Selected, &fragment.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get fragment: %w", err)
	}
	if filename.Valid {
		fragment.Filename = &filename.String
	}
	if language.Valid {
		fragment.Language = &language.String
	}
	return &fragment, nil
}

func (s *SQLiteStore) UpdateFragmentSelected(fragmentID int64, userID int64, selected bool) error {
	res, err := s.db.Exec(`
        UPDATE code_fragments SET selected = ?
        WHERE id = ? AND chat_id IN (SELECT id FROM chats WHERE user_id = ?)`, selected, fragmentID, userID)
	if err != nil {
		return fmt.Errorf("failed to update fragment: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("fragment not found or not owned by user, not updated")
	}
	return nil
}

func (s *SQLiteStore) DeleteFragment(fragmentID int64, userID int64) error {
	res, err := s.db.Exec(`
        DELETE FROM code_fragments
        WHERE id = ? AND chat_id IN (SELECT id FROM chats WHERE user_id = ?)`, fragmentID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete fragment: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("fragment not found or not owned by user, not deleted")
	}
	return nil
}

// Chat image methods

func (s *SQLiteStore) CreateChatImage(image *ChatImage) error {
	stmt, err := s.db.Prepare("INSERT INTO chat_images (chat_id, source_url, title, description, local_path, checksum, blacklisted, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare image insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(image.ChatID, image.SourceURL, image.Title, image.Description, image.LocalPath, image.Checksum, image.Blacklisted, now)
	if err != nil {
		return fmt.Errorf("failed to execute image insert: %w", err)
	}
	image.ID, _ = res.LastInsertId()
	image.CreatedAt = now
	return nil
}

func (s *SQLiteStore) ImageExistsForURL(chatID int64, sourceURL string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(1) FROM chat_images WHERE chat_id = ? AND source_url = ?", chatID, sourceURL).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check image url: %w", err)
	}
	return count > 0, nil
}

// URLBlacklisted reports whether any record suppresses this URL, for any chat.
func (s *SQLiteStore) URLBlacklisted(sourceURL string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(1) FROM chat_images WHERE source_url = ? AND blacklisted = TRUE", sourceURL).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) ImageExistsWithChecksum(chatID int64, checksum string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(1) FROM chat_images WHERE chat_id = ? AND checksum = ?", chatID, checksum).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check image checksum: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) GetImagesByChatID(chatID int64) ([]ChatImage, error) {
	rows, err := s.db.Query("SELECT id, chat_id, source_url, title, description, local_path, checksum, blacklisted, created_at FROM chat_images WHERE chat_id = ? ORDER BY id ASC", chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []ChatImage
	for rows.Next() {
		var image ChatImage
		var title, description sql.NullString
		if err := rows.Scan(&image.ID, &image.ChatID, &image.SourceURL, &title, &description, &image.LocalPath, &image.Checksum, &image.Blacklisted, &image.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan image row: %w", err)
		}
		if title.Valid {
			image.Title = &title.String
		}
		if description.Valid {
			image.Description = &description.String
		}
		images = append(images, image)
	}
	return images, nil
}

// SetImageBlacklisted flags the image's source URL; retrieval consults the
// flag across all chats sharing the URL.
func (s *SQLiteStore) SetImageBlacklisted(imageID int64, userID int64, blacklisted bool) error {
	res, err := s.db.Exec(`
        UPDATE chat_images SET blacklisted = ?
        WHERE id = ? AND chat_id IN (SELECT id FROM chats WHERE user_id = ?)`, blacklisted, imageID, userID)
	if err != nil {
		return fmt.Errorf("failed to update image blacklist flag: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("image not found or not owned by user, not updated")
	}
	return nil
}
