package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedChat(t *testing.T, s *SQLiteStore, userID int64, identifier string) *Chat {
	t.Helper()
	chat := &Chat{UniqueIdentifier: identifier, UserID: userID, Name: "Seed Chat"}
	require.NoError(t, s.CreateChat(chat))
	return chat
}

func TestCreateUserCreatesProfile(t *testing.T) {
	s := newTestStore(t)

	user, err := s.CreateUser("alice", "hash")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	profile, err := s.GetProfileByUserID(user.ID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.NotEmpty(t, profile.APIKey)

	// The key resolves back to the same user.
	byKey, err := s.GetProfileByAPIKey(profile.APIKey)
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, user.ID, byKey.UserID)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateUser("bob", "hash")
	require.NoError(t, err)

	_, err = s.CreateUser("bob", "otherhash")
	assert.Error(t, err)
}

func TestGetUserByUsernameNotFound(t *testing.T) {
	s := newTestStore(t)

	user, err := s.GetUserByUsername("nobody")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestRegenerateAPIKey(t *testing.T) {
	s := newTestStore(t)
	user, err := s.CreateUser("carol", "hash")
	require.NoError(t, err)
	profile, err := s.GetProfileByUserID(user.ID)
	require.NoError(t, err)

	newKey, err := s.RegenerateAPIKey(user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, profile.APIKey, newKey)

	// The old key no longer authenticates.
	stale, err := s.GetProfileByAPIKey(profile.APIKey)
	require.NoError(t, err)
	assert.Nil(t, stale)

	fresh, err := s.GetProfileByAPIKey(newKey)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, user.ID, fresh.UserID)

	_, err = s.RegenerateAPIKey(user.ID + 999)
	assert.Error(t, err)
}

func TestChatUniquePerUser(t *testing.T) {
	s := newTestStore(t)
	alice, err := s.CreateUser("alice", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser("bob", "hash")
	require.NoError(t, err)

	seedChat(t, s, alice.ID, "shared-id")

	// The same identifier under another user is a different chat.
	require.NoError(t, s.CreateChat(&Chat{UniqueIdentifier: "shared-id", UserID: bob.ID, Name: "Bob's"}))

	// But a second chat with the same identifier for the same user is rejected.
	err = s.CreateChat(&Chat{UniqueIdentifier: "shared-id", UserID: alice.ID, Name: "Again"})
	assert.Error(t, err)
}

func TestGetChatEnforcesOwnership(t *testing.T) {
	s := newTestStore(t)
	alice, err := s.CreateUser("alice", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser("bob", "hash")
	require.NoError(t, err)

	chat := seedChat(t, s, alice.ID, "alice-chat")

	got, err := s.GetChatByID(chat.ID, bob.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.GetChatByIdentifier("alice-chat", bob.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, s.UpdateChatName(chat.ID, bob.ID, "hijacked"))
	assert.Error(t, s.DeleteChat(chat.ID, bob.ID))
}

func TestUpdateChatContentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	user, err := s.CreateUser("dave", "hash")
	require.NoError(t, err)
	chat := seedChat(t, s, user.ID, "chat-1")

	jsonData := `[{"type":"text","content":"hi"}]`
	chat.Name = "Renamed"
	chat.JSONData = &jsonData
	chat.RawContent = nil
	chat.Markdown = "# hi"
	chat.Checksum = "abc123"
	chat.ImagesDownloaded = true
	require.NoError(t, s.UpdateChatContent(chat))

	got, err := s.GetChatByID(chat.ID, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Renamed", got.Name)
	require.NotNil(t, got.JSONData)
	assert.Equal(t, jsonData, *got.JSONData)
	assert.Nil(t, got.RawContent)
	assert.Equal(t, "# hi", got.Markdown)
	assert.Equal(t, "abc123", got.Checksum)
	assert.True(t, got.ImagesDownloaded)
}

func TestDeleteChatCascades(t *testing.T) {
	s := newTestStore(t)
	user, err := s.CreateUser("erin", "hash")
	require.NoError(t, err)
	chat := seedChat(t, s, user.ID, "chat-1")

	filename := "main.go"
	require.NoError(t, s.CreateCodeFragment(&CodeFragment{
		ChatID:     chat.ID,
		Filename:   &filename,
		SourceCode: "package main",
		Checksum:   "c1",
	}))
	require.NoError(t, s.CreateChatImage(&ChatImage{
		ChatID:    chat.ID,
		SourceURL: "https://example.com/a.png",
		LocalPath: "chat_images/a.png",
		Checksum:  "i1",
	}))

	require.NoError(t, s.DeleteChat(chat.ID, user.ID))

	fragments, err := s.GetFragmentsByChatID(chat.ID)
	require.NoError(t, err)
	assert.Empty(t, fragments)

	images, err := s.GetImagesByChatID(chat.ID)
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestGetFragmentsByChatAndFilename(t *testing.T) {
	s := newTestStore(t)
	user, err := s.CreateUser("frank", "hash")
	require.NoError(t, err)
	chat := seedChat(t, s, user.ID, "chat-1")

	named := "a.py"
	require.NoError(t, s.CreateCodeFragment(&CodeFragment{ChatID: chat.ID, Filename: &named, SourceCode: "x = 1", Checksum: "c1"}))
	require.NoError(t, s.CreateCodeFragment(&CodeFragment{ChatID: chat.ID, SourceCode: "y = 2", Checksum: "c2"}))
	require.NoError(t, s.CreateCodeFragment(&CodeFragment{ChatID: chat.ID, SourceCode: "z = 3", Checksum: "c3"}))

	byName, err := s.GetFragmentsByChatAndFilename(chat.ID, &named)
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "x = 1", byName[0].SourceCode)

	// nil matches the NULL-filename rows, not everything.
	anonymous, err := s.GetFragmentsByChatAndFilename(chat.ID, nil)
	require.NoError(t, err)
	require.Len(t, anonymous, 2)
	for _, fragment := range anonymous {
		assert.Nil(t, fragment.Filename)
	}
}

func TestFragmentOwnership(t *testing.T) {
	s := newTestStore(t)
	alice, err := s.CreateUser("alice", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser("bob", "hash")
	require.NoError(t, err)
	chat := seedChat(t, s, alice.ID, "chat-1")

	fragment := &CodeFragment{ChatID: chat.ID, SourceCode: "secret()", Checksum: "c1"}
	require.NoError(t, s.CreateCodeFragment(fragment))

	got, err := s.GetFragmentByID(fragment.ID, bob.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, s.UpdateFragmentSelected(fragment.ID, bob.ID, true))
	assert.Error(t, s.DeleteFragment(fragment.ID, bob.ID))

	require.NoError(t, s.UpdateFragmentSelected(fragment.ID, alice.ID, true))
	got, err = s.GetFragmentByID(fragment.ID, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Selected)

	require.NoError(t, s.DeleteFragment(fragment.ID, alice.ID))
}

func TestURLBlacklistedSpansChats(t *testing.T) {
	s := newTestStore(t)
	alice, err := s.CreateUser("alice", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser("bob", "hash")
	require.NoError(t, err)
	aliceChat := seedChat(t, s, alice.ID, "chat-a")
	seedChat(t, s, bob.ID, "chat-b")

	url := "https://example.com/banned.png"
	image := &ChatImage{ChatID: aliceChat.ID, SourceURL: url, LocalPath: "chat_images/x.png", Checksum: "c1"}
	require.NoError(t, s.CreateChatImage(image))

	blacklisted, err := s.URLBlacklisted(url)
	require.NoError(t, err)
	assert.False(t, blacklisted)

	require.NoError(t, s.SetImageBlacklisted(image.ID, alice.ID, true))

	// One user's flag suppresses the URL globally.
	blacklisted, err = s.URLBlacklisted(url)
	require.NoError(t, err)
	assert.True(t, blacklisted)

	// Only the owner may flip the flag.
	assert.Error(t, s.SetImageBlacklisted(image.ID, bob.ID, false))
}
