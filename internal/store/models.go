package store

import "time"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at"`
}

// Profile carries the API key a browser extension submits chats with.
type Profile struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	APIKey string `json:"api_key"`
}

type Chat struct {
	ID               int64     `json:"id"`
	UniqueIdentifier string    `json:"unique_identifier"` // Supplied by the submitting client, unique per user
	UserID           int64     `json:"user_id"`
	Name             string    `json:"name"`
	RawContent       *string   `json:"raw_content,omitempty"` // Legacy plain-text payload
	JSONData         *string   `json:"json_data,omitempty"`   // Canonical JSON encoding of the structured payload
	Markdown         string    `json:"markdown"`
	Checksum         string    `json:"checksum"`
	ImagesDownloaded bool      `json:"images_downloaded"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type CodeFragment struct {
	ID         int64     `json:"id"`
	ChatID     int64     `json:"chat_id"`
	Filename   *string   `json:"filename"` // Nullable: anonymous fragments have no filename
	Language   *string   `json:"language"`
	SourceCode string    `json:"source_code"`
	Checksum   string    `json:"checksum"`
	Selected   bool      `json:"selected"`
	CreatedAt  time.Time `json:"created_at"`
}

type ChatImage struct {
	ID          int64     `json:"id"`
	ChatID      int64     `json:"chat_id"`
	SourceURL   string    `json:"source_url"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	LocalPath   string    `json:"local_path"` // Relative to the media root
	Checksum    string    `json:"checksum"`
	Blacklisted bool      `json:"blacklisted"`
	CreatedAt   time.Time `json:"created_at"`
}
