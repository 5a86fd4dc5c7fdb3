package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/chatsnip/chatsnip/internal/store"
	"github.com/chatsnip/chatsnip/internal/utils"
)

// RetrieveStatus classifies the outcome of one image retrieval.
type RetrieveStatus int

const (
	ImageAlreadyPresent RetrieveStatus = iota
	ImageBlacklisted
	ImageFetched
	ImageFetchFailed
)

type RetrieveResult struct {
	Status     RetrieveStatus
	Image      *store.ChatImage // Set when Status is ImageFetched
	HTTPStatus int              // Set when Status is ImageFetchFailed
}

type ImageService struct {
	dbStore  *store.SQLiteStore
	client   *http.Client
	mediaDir string
	logger   *zap.Logger
}

func NewImageService(dbStore *store.SQLiteStore, client *http.Client, mediaDir string, logger *zap.Logger) *ImageService {
	if client == nil {
		client = http.DefaultClient
	}
	return &ImageService{
		dbStore:  dbStore,
		client:   client,
		mediaDir: mediaDir,
		logger:   logger,
	}
}

// Retrieve fetches, fingerprints, deduplicates and stores one remote image.
// A (chat, URL) pair is fetched at most once; a blacklisted URL is never
// fetched for any chat; the same binary reached via a different URL is not
// stored twice. Fetch failures are reported, not retried.
func (s *ImageService) Retrieve(ctx context.Context, chat *store.Chat, sourceURL string, title, description *string) (*RetrieveResult, error) {
	exists, err := s.dbStore.ImageExistsForURL(chat.ID, sourceURL)
	if err != nil {
		return nil, err
	}
	if exists {
		return &RetrieveResult{Status: ImageAlreadyPresent}, nil
	}

	blacklisted, err := s.dbStore.URLBlacklisted(sourceURL)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return &RetrieveResult{Status: ImageBlacklisted}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &RetrieveResult{Status: ImageFetchFailed, HTTPStatus: resp.StatusCode}, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}

	checksum := BinaryChecksum(data)
	exists, err = s.dbStore.ImageExistsWithChecksum(chat.ID, checksum)
	if err != nil {
		return nil, err
	}
	if exists {
		// Same image reposted under a different link.
		return &RetrieveResult{Status: ImageAlreadyPresent}, nil
	}

	localPath := filepath.Join("chat_images", utils.UniqueFilename(DetectImageType(data)))
	fullPath := filepath.Join(s.mediaDir, localPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write image file: %w", err)
	}

	image := &store.ChatImage{
		ChatID:      chat.ID,
		SourceURL:   sourceURL,
		Title:       title,
		Description: description,
		LocalPath:   localPath,
		Checksum:    checksum,
	}
	if err := s.dbStore.CreateChatImage(image); err != nil {
		return nil, err
	}
	s.logger.Debug("stored chat image", zap.String("url", sourceURL), zap.String("path", localPath))
	return &RetrieveResult{Status: ImageFetched, Image: image}, nil
}

// MediaURL returns the public path a stored binary is served under.
func MediaURL(image *store.ChatImage) string {
	return "/media/" + filepath.ToSlash(image.LocalPath)
}

// DetectImageType sniffs the file extension from the binary's leading bytes
// rather than trusting any URL-supplied extension. Unrecognized formats get
// no extension, not an error.
func DetectImageType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8}):
		return ".jpg"
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return ".png"
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return ".gif"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return ".webp"
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")) && bytes.Equal(data[8:12], []byte("avif")):
		return ".avif"
	}
	return ""
}
