package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatsnip/chatsnip/internal/store"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n"), []byte("fake png payload")...)
	gifBytes  = append([]byte("GIF89a"), []byte("fake gif payload")...)
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("fake jpeg payload")...)
)

func TestDetectImageType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", jpegBytes, ".jpg"},
		{"png", pngBytes, ".png"},
		{"gif87a", []byte("GIF87a......"), ".gif"},
		{"gif89a", gifBytes, ".gif"},
		{"webp", []byte("RIFF\x00\x01\x02\x03WEBPVP8 "), ".webp"},
		{"avif", []byte("\x00\x00\x00\x20ftypavif\x00\x00\x00\x00"), ".avif"},
		{"unknown", []byte("plain text, not an image"), ""},
		{"empty", nil, ""},
		{"truncated riff", []byte("RIFF"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectImageType(tt.data))
		})
	}
}

func newImageFixture(t *testing.T) (*ImageService, *store.SQLiteStore, *store.Chat, string) {
	t.Helper()
	dbStore := newTestStore(t)
	user, _ := newTestUser(t, dbStore)
	chat := newTestChat(t, dbStore, user.ID, "chat-1")
	mediaDir := t.TempDir()
	service := NewImageService(dbStore, nil, mediaDir, newTestLogger())
	return service, dbStore, chat, mediaDir
}

func TestRetrieveStoresNewImage(t *testing.T) {
	service, dbStore, chat, mediaDir := newImageFixture(t)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngBytes)
	}))
	defer origin.Close()

	result, err := service.Retrieve(context.Background(), chat, origin.URL+"/pic", nil, nil)
	require.NoError(t, err)
	require.Equal(t, ImageFetched, result.Status)
	require.NotNil(t, result.Image)

	assert.Equal(t, ".png", filepath.Ext(result.Image.LocalPath))
	assert.Equal(t, BinaryChecksum(pngBytes), result.Image.Checksum)

	data, err := os.ReadFile(filepath.Join(mediaDir, result.Image.LocalPath))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)

	images, err := dbStore.GetImagesByChatID(chat.ID)
	require.NoError(t, err)
	assert.Len(t, images, 1)
}

func TestRetrieveSameURLTwice(t *testing.T) {
	service, dbStore, chat, _ := newImageFixture(t)

	var requests atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write(gifBytes)
	}))
	defer origin.Close()

	url := origin.URL + "/pic.gif"
	first, err := service.Retrieve(context.Background(), chat, url, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ImageFetched, first.Status)

	second, err := service.Retrieve(context.Background(), chat, url, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ImageAlreadyPresent, second.Status)
	assert.Equal(t, int32(1), requests.Load(), "second retrieval must not hit the network")

	images, err := dbStore.GetImagesByChatID(chat.ID)
	require.NoError(t, err)
	assert.Len(t, images, 1)
}

func TestRetrieveSameBytesDifferentURL(t *testing.T) {
	service, dbStore, chat, _ := newImageFixture(t)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jpegBytes)
	}))
	defer origin.Close()

	first, err := service.Retrieve(context.Background(), chat, origin.URL+"/a.jpg", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ImageFetched, first.Status)

	// Same image reposted under a different link is not stored again.
	second, err := service.Retrieve(context.Background(), chat, origin.URL+"/b.jpg", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ImageAlreadyPresent, second.Status)

	images, err := dbStore.GetImagesByChatID(chat.ID)
	require.NoError(t, err)
	assert.Len(t, images, 1)
}

func TestRetrieveBlacklistedURL(t *testing.T) {
	service, dbStore, chat, _ := newImageFixture(t)

	var requests atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write(pngBytes)
	}))
	defer origin.Close()

	url := origin.URL + "/banned.png"

	// Blacklist the URL via a record under a different chat; suppression is
	// per-URL, not per-chat.
	user2, err := dbStore.CreateUser("otheruser", "irrelevant-hash")
	require.NoError(t, err)
	otherChat := newTestChat(t, dbStore, user2.ID, "chat-2")
	require.NoError(t, dbStore.CreateChatImage(&store.ChatImage{
		ChatID:      otherChat.ID,
		SourceURL:   url,
		LocalPath:   "chat_images/banned.png",
		Checksum:    BinaryChecksum(pngBytes),
		Blacklisted: true,
	}))

	result, err := service.Retrieve(context.Background(), chat, url, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ImageBlacklisted, result.Status)
	assert.Equal(t, int32(0), requests.Load(), "blacklisted URL must not be fetched")
}

func TestRetrieveFetchFailure(t *testing.T) {
	service, dbStore, chat, _ := newImageFixture(t)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer origin.Close()

	result, err := service.Retrieve(context.Background(), chat, origin.URL+"/gone.png", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ImageFetchFailed, result.Status)
	assert.Equal(t, http.StatusNotFound, result.HTTPStatus)

	images, err := dbStore.GetImagesByChatID(chat.ID)
	require.NoError(t, err)
	assert.Empty(t, images)
}
