package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chatsnip/chatsnip/internal/store"
	"github.com/chatsnip/chatsnip/internal/utils"
)

var (
	ErrAPIKeyMissing    = errors.New("API key missing")
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrChatNotFound     = errors.New("chat not found")
	ErrDuplicateContent = errors.New("duplicate content")
)

// IngestRequest is one submission from a capture client.
type IngestRequest struct {
	APIKey   string  `json:"apiKey"`
	ChatID   string  `json:"chatId"`
	ChatName string  `json:"chatName,omitempty"`
	Content  Payload `json:"content"`
	Markdown string  `json:"markdown,omitempty"`
}

// IngestResult summarizes which categories a submission changed.
type IngestResult struct {
	Duplicate     bool
	Saved         []string // "chat", "images", "code", in processing order
	ImageWarnings bool     // At least one image fetch did not succeed
}

func (r *IngestResult) Status() string {
	if r.Duplicate {
		return "Duplicate content."
	}
	status := fmt.Sprintf("Process done. Saved %s.", strings.Join(r.Saved, " & "))
	if r.ImageWarnings {
		status += " Some images could not be downloaded."
	}
	return status
}

func (r *IngestResult) addSaved(category string) {
	for _, saved := range r.Saved {
		if saved == category {
			return
		}
	}
	r.Saved = append(r.Saved, category)
}

// IngestService drives a submission through parsing, image retrieval and
// deduplicated persistence. Everything runs synchronously within the calling
// request; there are no background workers and no retries.
type IngestService struct {
	dbStore *store.SQLiteStore
	images  *ImageService
	logger  *zap.Logger
}

func NewIngestService(dbStore *store.SQLiteStore, images *ImageService, logger *zap.Logger) *IngestService {
	return &IngestService{
		dbStore: dbStore,
		images:  images,
		logger:  logger,
	}
}

// Ingest processes one submission: authenticate the API key, resolve or
// create the chat, short-circuit unchanged resubmissions, retrieve and
// rewrite images, then extract and persist new code fragments. Image
// processing completes before fragment processing, so persisted code never
// references a stale image URL.
func (s *IngestService) Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error) {
	if req.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}
	profile, err := s.dbStore.GetProfileByAPIKey(req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	if profile == nil {
		return nil, ErrInvalidAPIKey
	}

	canonical, err := req.Content.Canonical()
	if err != nil {
		return nil, err
	}
	// The fingerprint covers the payload as submitted; image reference
	// rewriting later does not touch it, so a byte-identical resubmission
	// still matches.
	newChecksum := Checksum(canonical)

	result := &IngestResult{}

	chat, err := s.dbStore.GetChatByIdentifier(req.ChatID, profile.UserID)
	if err != nil {
		return nil, err
	}
	if chat != nil && chat.ImagesDownloaded && IsDuplicateChatContent(chat, canonical) {
		s.logger.Debug("duplicate chat content", zap.String("chat", req.ChatID))
		result.Duplicate = true
		return result, nil
	}

	var imageElements, codeElements []Element
	for _, element := range req.Content.Elements {
		switch {
		case element.IsImage():
			imageElements = append(imageElements, element)
		case element.IsCode():
			codeElements = append(codeElements, element)
		}
	}

	chatName := req.ChatName
	if chatName == "" {
		chatName = utils.PrettyDate(time.Now())
	}

	created := chat == nil
	contentChanged := created || chat.Checksum != newChecksum
	if created {
		chat = &store.Chat{UniqueIdentifier: req.ChatID, UserID: profile.UserID}
	}

	// The new payload overwrites the stored one unconditionally, even when
	// only part of it changed.
	chat.Name = chatName
	chat.Markdown = req.Markdown
	chat.Checksum = newChecksum
	chat.ImagesDownloaded = len(imageElements) == 0
	if req.Content.Structured {
		data := canonical
		chat.JSONData = &data
		chat.RawContent = nil
	} else {
		raw := req.Content.Raw
		chat.RawContent = &raw
		chat.JSONData = nil
	}

	if created {
		if err := s.dbStore.CreateChat(chat); err != nil {
			return nil, err
		}
	} else {
		if err := s.dbStore.UpdateChatContent(chat); err != nil {
			return nil, err
		}
	}
	if contentChanged {
		result.addSaved("chat")
	}

	if len(imageElements) > 0 {
		if err := s.processImages(ctx, chat, imageElements, result); err != nil {
			return nil, err
		}
	}

	if req.Content.Structured {
		for _, element := range codeElements {
			fragment, err := s.SaveCodeFragment(chat, optional(element.Filename), element.Content, optional(element.Language))
			if err != nil {
				return nil, err
			}
			if fragment != nil {
				result.addSaved("code")
			}
		}
	} else {
		// The heuristics overlap, so collapse in-batch repeats before the
		// per-chat store check sees them.
		var seen []ParsedFragment
		for _, parsed := range ParseSourceFragments(req.Content.Raw) {
			if strings.TrimSpace(parsed.Code) == "" {
				continue
			}
			if HasDuplicateChecksum(seen, parsed) {
				continue
			}
			seen = append(seen, parsed)
			fragment, err := s.SaveCodeFragment(chat, parsed.Filename, parsed.Code, nil)
			if err != nil {
				return nil, err
			}
			if fragment != nil {
				result.addSaved("code")
			}
		}
	}

	return result, nil
}

// processImages retrieves each referenced image and rewrites every occurrence
// of a relocated source reference in the stored narrative and payload.
func (s *IngestService) processImages(ctx context.Context, chat *store.Chat, elements []Element, result *IngestResult) error {
	replacements := make(map[string]string)
	for _, element := range elements {
		retrieved, err := s.images.Retrieve(ctx, chat, element.Src, nil, optional(element.Content))
		if err != nil {
			return err
		}
		switch retrieved.Status {
		case ImageFetched:
			replacements[element.Src] = MediaURL(retrieved.Image)
			result.addSaved("images")
		case ImageFetchFailed:
			s.logger.Warn("image fetch failed",
				zap.String("url", element.Src),
				zap.Int("status", retrieved.HTTPStatus))
			result.ImageWarnings = true
		}
	}

	for oldSrc, newSrc := range replacements {
		chat.Markdown = strings.ReplaceAll(chat.Markdown, oldSrc, newSrc)
		if chat.JSONData != nil {
			rewritten := strings.ReplaceAll(*chat.JSONData, oldSrc, newSrc)
			chat.JSONData = &rewritten
		}
		if chat.RawContent != nil {
			rewritten := strings.ReplaceAll(*chat.RawContent, oldSrc, newSrc)
			chat.RawContent = &rewritten
		}
	}

	// A failed fetch leaves the flag unset so a resubmission retries the
	// missing images instead of short-circuiting as a duplicate.
	chat.ImagesDownloaded = !result.ImageWarnings
	return s.dbStore.UpdateChatContent(chat)
}

// SaveCodeFragment cleans, fingerprints and stores one fragment, unless the
// chat already holds the same content under the same filename. Returns nil
// (and no error) for duplicates.
func (s *IngestService) SaveCodeFragment(chat *store.Chat, filename *string, content string, language *string) (*store.CodeFragment, error) {
	cleaned := CleanContent(content)
	duplicate, err := IsDuplicateCodeFragment(s.dbStore, chat, filename, cleaned)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return nil, nil
	}

	if language == nil {
		detected := IdentifyLanguage(cleaned)
		language = &detected
	}
	fragment := &store.CodeFragment{
		ChatID:     chat.ID,
		Filename:   filename,
		Language:   language,
		SourceCode: cleaned,
		Checksum:   Checksum(cleaned),
	}
	if err := s.dbStore.CreateCodeFragment(fragment); err != nil {
		return nil, err
	}
	return fragment, nil
}

// SubmitFragment stores a single directly-submitted fragment after API key
// authentication, reporting duplicates as ErrDuplicateContent.
func (s *IngestService) SubmitFragment(apiKey string, chatID int64, filename *string, language *string, sourceCode string) (*store.CodeFragment, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyMissing
	}
	profile, err := s.dbStore.GetProfileByAPIKey(apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	if profile == nil {
		return nil, ErrInvalidAPIKey
	}

	chat, err := s.dbStore.GetChatByID(chatID, profile.UserID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	fragment, err := s.SaveCodeFragment(chat, filename, sourceCode, language)
	if err != nil {
		return nil, err
	}
	if fragment == nil {
		return nil, ErrDuplicateContent
	}
	return fragment, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
