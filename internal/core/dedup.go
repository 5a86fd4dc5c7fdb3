package core

import (
	"github.com/chatsnip/chatsnip/internal/store"
)

// IsDuplicateChatContent reports whether the payload matches the chat's
// fingerprint at last save, short-circuiting reprocessing of an unchanged
// resubmission.
func IsDuplicateChatContent(chat *store.Chat, newPayload string) bool {
	return chat.Checksum == Checksum(newPayload)
}

// IsDuplicateCodeFragment reports whether the chat already holds a fragment
// with the same filename and fingerprint. Filename is part of the key:
// identical code under a different filename is not a duplicate.
func IsDuplicateCodeFragment(dbStore *store.SQLiteStore, chat *store.Chat, filename *string, newContent string) (bool, error) {
	existing, err := dbStore.GetFragmentsByChatAndFilename(chat.ID, filename)
	if err != nil {
		return false, err
	}
	newChecksum := Checksum(newContent)
	for _, fragment := range existing {
		if fragment.Checksum == newChecksum {
			return true, nil
		}
	}
	return false, nil
}

// HasDuplicateChecksum is the in-memory analogue of IsDuplicateCodeFragment,
// for validating a batch before any record exists.
func HasDuplicateChecksum(existing []ParsedFragment, candidate ParsedFragment) bool {
	candidateChecksum := Checksum(candidate.Code)
	for _, fragment := range existing {
		if !sameFilename(fragment.Filename, candidate.Filename) {
			continue
		}
		if Checksum(fragment.Code) == candidateChecksum {
			return true
		}
	}
	return false
}

func sameFilename(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
