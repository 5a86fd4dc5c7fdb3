package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatsnip/chatsnip/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dbStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })
	return dbStore
}

func newTestUser(t *testing.T, dbStore *store.SQLiteStore) (*store.User, *store.Profile) {
	t.Helper()
	user, err := dbStore.CreateUser("testuser", "irrelevant-hash")
	require.NoError(t, err)
	profile, err := dbStore.GetProfileByUserID(user.ID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	return user, profile
}

func newTestChat(t *testing.T, dbStore *store.SQLiteStore, userID int64, identifier string) *store.Chat {
	t.Helper()
	chat := &store.Chat{UniqueIdentifier: identifier, UserID: userID, Name: "Test Chat"}
	require.NoError(t, dbStore.CreateChat(chat))
	return chat
}

func newTestLogger() *zap.Logger {
	return zap.NewNop()
}
