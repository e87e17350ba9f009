// Chat persistence. Saving a chat verbatim would duplicate megabytes of
// base64 text inside chat.json on every write, so extraction walks the
// message content tree depth-first, moves every inline data URL payload
// into a co-located blob and leaves a "blob:<id>" reference behind.
// Rehydration is the exact inverse. Blob writes complete before the
// metadata file referencing them is written, so a reader never observes a
// chat.json pointing at a not-yet-existent blob under normal operation.

package store

import (
	"fmt"
	"log/slog"
	"path"

	"github.com/maruel/chatdb/internal/models"
)

const chatFileName = "chat.json"

// SaveChat extracts inline payloads into blobs, writes chat.json and
// upserts the chats index entry.
func (s *Store) SaveChat(chat *models.Chat) error {
	if chat.ID == "" {
		return errEntityIDRequired
	}
	stored, err := s.ExtractChatBlobs(chat)
	if err != nil {
		return err
	}
	if err := s.fs.WriteJSON(path.Join(CollectionChats, chat.ID, chatFileName), stored); err != nil {
		return err
	}
	return s.UpsertIndexEntry(CollectionChats, models.IndexEntry{
		ID:      chat.ID,
		Title:   chat.Title,
		Updated: chat.Updated,
	})
}

// LoadChat reads a chat and rehydrates its blob references back into data
// URLs. A missing chat reports ok=false.
func (s *Store) LoadChat(id string) (*models.Chat, bool, error) {
	var stored models.Chat
	ok, err := s.fs.ReadJSON(path.Join(CollectionChats, id, chatFileName), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	chat := s.RehydrateChatBlobs(&stored)
	return chat, true, nil
}

// DeleteChat removes the chat folder, including its blobs and artifacts
// subtrees, and drops the index entry. Both steps are required: removing
// only the index entry leaves orphaned data recoverable by a rebuild.
func (s *Store) DeleteChat(id string) error {
	if id == "" {
		return errEntityIDRequired
	}
	if err := s.fs.RemoveAll(entityDir(CollectionChats, id)); err != nil {
		return err
	}
	return s.RemoveIndexEntry(CollectionChats, id)
}

// ListChats returns the chats index, most recently updated first.
func (s *Store) ListChats() ([]models.IndexEntry, error) {
	return s.ReadIndex(CollectionChats)
}

// ExtractChatBlobs returns a copy of the chat with every inline data URL
// payload replaced by a blob reference. Payloads that are already
// references, or any other non-data-URL string, pass through unchanged, so
// extraction is idempotent. Blob writes happen here, before the caller
// writes the metadata that references them.
func (s *Store) ExtractChatBlobs(chat *models.Chat) (*models.Chat, error) {
	out := *chat
	out.Messages = make([]models.StoredMessage, len(chat.Messages))
	for i, msg := range chat.Messages {
		m := msg
		content, err := s.extractContentList(chat.ID, msg.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to extract message %d: %w", i, err)
		}
		m.Content = content
		out.Messages[i] = m
	}
	return &out, nil
}

func (s *Store) extractContentList(chatID string, items []models.Content) ([]models.Content, error) {
	if items == nil {
		return nil, nil
	}
	out := make([]models.Content, len(items))
	for i, item := range items {
		c, err := s.extractContent(chatID, item)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func (s *Store) extractContent(chatID string, c models.Content) (models.Content, error) {
	switch c.Kind {
	case models.ContentText, models.ContentReasoning, models.ContentToolCall:
		return c, nil
	case models.ContentToolResult:
		result, err := s.extractContentList(chatID, c.Result)
		if err != nil {
			return c, err
		}
		c.Result = result
		return c, nil
	case models.ContentImage, models.ContentAudio, models.ContentFile:
		mimeType, data, ok := DecodeDataURL(c.Data)
		if !ok {
			return c, nil
		}
		id, err := s.StoreEntityBlob(CollectionChats, chatID, data)
		if err != nil {
			return c, err
		}
		c.Data = BlobRef(id)
		if c.MimeType == "" {
			c.MimeType = mimeType
		}
		return c, nil
	default:
		// Unknown kinds are preserved as-is; they carry no payload we know
		// how to extract.
		return c, nil
	}
}

// RehydrateChatBlobs returns a copy of the stored chat with every blob
// reference resolved back into a data URL. A reference that resolves to
// nothing becomes an empty payload with a logged warning: one missing
// attachment never prevents the rest of the chat from loading.
func (s *Store) RehydrateChatBlobs(stored *models.Chat) *models.Chat {
	out := *stored
	out.Messages = make([]models.StoredMessage, len(stored.Messages))
	for i, msg := range stored.Messages {
		m := msg
		m.Content = s.rehydrateContentList(stored.ID, msg.Content)
		out.Messages[i] = m
	}
	return &out
}

func (s *Store) rehydrateContentList(chatID string, items []models.Content) []models.Content {
	if items == nil {
		return nil
	}
	out := make([]models.Content, len(items))
	for i, item := range items {
		out[i] = s.rehydrateContent(chatID, item)
	}
	return out
}

func (s *Store) rehydrateContent(chatID string, c models.Content) models.Content {
	switch c.Kind {
	case models.ContentText, models.ContentReasoning, models.ContentToolCall:
		return c
	case models.ContentToolResult:
		c.Result = s.rehydrateContentList(chatID, c.Result)
		return c
	case models.ContentImage, models.ContentAudio, models.ContentFile:
		id, ok := ParseBlobRef(c.Data)
		if !ok {
			return c
		}
		data, found, err := s.GetEntityBlob(CollectionChats, chatID, id)
		if err != nil || !found {
			slog.Warn("Missing chat blob, returning empty payload", "chat", chatID, "blob", id, "err", err)
			c.Data = ""
			return c
		}
		c.Data = EncodeDataURL(c.MimeType, data)
		return c
	default:
		return c
	}
}

// CollectChatBlobIDs walks a stored chat and returns every referenced blob
// identifier, nested tool results included. Analysis only, used to find
// orphaned blobs; it deletes nothing.
func CollectChatBlobIDs(stored *models.Chat) []string {
	var ids []string
	for _, msg := range stored.Messages {
		ids = collectContentBlobIDs(msg.Content, ids)
	}
	return ids
}

func collectContentBlobIDs(items []models.Content, ids []string) []string {
	for _, c := range items {
		switch c.Kind {
		case models.ContentText, models.ContentReasoning, models.ContentToolCall:
		case models.ContentToolResult:
			ids = collectContentBlobIDs(c.Result, ids)
		case models.ContentImage, models.ContentAudio, models.ContentFile:
			if id, ok := ParseBlobRef(c.Data); ok {
				ids = append(ids, id)
			}
		default:
		}
	}
	return ids
}

// LoadStoredChat reads a chat without rehydrating it. Used by orphan
// analysis and the archive tooling, which operate on blob references.
func (s *Store) LoadStoredChat(id string) (*models.Chat, bool, error) {
	var stored models.Chat
	ok, err := s.fs.ReadJSON(path.Join(CollectionChats, id, chatFileName), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &stored, true, nil
}

// OrphanedChatBlobs returns the blob identifiers stored in the chat's
// folder that no content item references. Orphans are permitted and
// harmless; this reports them for garbage-collection tooling.
func (s *Store) OrphanedChatBlobs(id string) ([]string, error) {
	stored, ok, err := s.LoadStoredChat(id)
	if err != nil {
		return nil, err
	}
	referenced := map[string]bool{}
	if ok {
		for _, blobID := range CollectChatBlobIDs(stored) {
			referenced[blobID] = true
		}
	}
	all, err := s.ListEntityBlobs(CollectionChats, id)
	if err != nil {
		return nil, err
	}
	var orphans []string
	for _, blobID := range all {
		if !referenced[blobID] {
			orphans = append(orphans, blobID)
		}
	}
	return orphans, nil
}

// TouchChat updates the chat's index entry timestamp without rewriting the
// chat itself.
func (s *Store) TouchChat(id, title string) error {
	return s.UpsertIndexEntry(CollectionChats, models.IndexEntry{ID: id, Title: title, Updated: nowUTC()})
}
