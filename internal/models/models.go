// Package models defines the stored entity types shared across the storage layer.
//
// The JSON encoding of these types is the on-disk wire format: any external
// tool that can read the data directory can decode them by convention alone.
package models

import (
	"encoding/json"
	"time"
)

// IndexEntry is one row of a per-collection index file.
//
// The index is a cache over the entity folders, never the source of truth:
// it can be rebuilt from the folders at any time and divergence is
// recoverable, not fatal.
type IndexEntry struct {
	ID      string    `json:"id" jsonschema:"description=Entity identifier equal to the entity folder name"`
	Title   string    `json:"title,omitempty" jsonschema:"description=Display title used for listing"`
	Updated time.Time `json:"updated" jsonschema:"description=Last modification time used for sorting"`
}

// ContentKind discriminates the variants of a message content item.
type ContentKind string

const (
	// ContentText is plain assistant or user text.
	ContentText ContentKind = "text"
	// ContentReasoning is model reasoning text.
	ContentReasoning ContentKind = "reasoning"
	// ContentToolCall is a tool invocation emitted by the model.
	ContentToolCall ContentKind = "tool-call"
	// ContentToolResult is the result of a tool invocation. Its Result list
	// may itself contain image or file items returned by the tool.
	ContentToolResult ContentKind = "tool-result"
	// ContentImage is an image payload.
	ContentImage ContentKind = "image"
	// ContentAudio is an audio payload.
	ContentAudio ContentKind = "audio"
	// ContentFile is an arbitrary file attachment payload.
	ContentFile ContentKind = "file"
)

// Content is one item of a message content list.
//
// For image, audio and file items the Data field holds a self-contained data
// URL while the chat is in memory and a "blob:<id>" reference once stored.
// Tool results recurse: Result carries the nested content returned by the
// tool, which may embed further image or file items.
type Content struct {
	Kind       ContentKind     `json:"kind" jsonschema:"description=Variant discriminator"`
	Text       string          `json:"text,omitempty" jsonschema:"description=Text for text and reasoning items"`
	ToolName   string          `json:"tool_name,omitempty" jsonschema:"description=Tool name for tool-call and tool-result items"`
	ToolCallID string          `json:"tool_call_id,omitempty" jsonschema:"description=Correlates a tool-result with its tool-call"`
	Args       json.RawMessage `json:"args,omitempty" jsonschema:"description=Tool-call arguments as raw JSON"`
	Data       string          `json:"data,omitempty" jsonschema:"description=Data URL in memory or blob reference at rest"`
	MimeType   string          `json:"mime_type,omitempty" jsonschema:"description=MIME type of the binary payload"`
	FileName   string          `json:"file_name,omitempty" jsonschema:"description=Original file name for file items"`
	Result     []Content       `json:"result,omitempty" jsonschema:"description=Nested content of a tool-result"`
}

// StoredMessage is one chat message as persisted in chat.json.
type StoredMessage struct {
	Role    string    `json:"role" jsonschema:"description=Message author role (user or assistant)"`
	Content []Content `json:"content" jsonschema:"description=Ordered content items"`
	Error   string    `json:"error,omitempty" jsonschema:"description=Generation error attached to this message"`
}

// Chat is a conversation with its message history.
//
// The same type serves both the in-memory form (data URLs inline) and the
// stored form (blob references); extraction and rehydration convert between
// the two.
type Chat struct {
	ID       string          `json:"id" jsonschema:"description=Chat identifier"`
	Title    string          `json:"title" jsonschema:"description=Chat title"`
	Model    string          `json:"model,omitempty" jsonschema:"description=Model used for completions"`
	Created  time.Time       `json:"created" jsonschema:"description=Creation time"`
	Updated  time.Time       `json:"updated" jsonschema:"description=Last modification time"`
	Messages []StoredMessage `json:"messages" jsonschema:"description=Message history"`
}

// Repository is a document collection with embeddings for retrieval.
type Repository struct {
	ID           string    `json:"id" jsonschema:"description=Repository identifier"`
	Name         string    `json:"name" jsonschema:"description=Display name"`
	Embedder     string    `json:"embedder,omitempty" jsonschema:"description=Identifier of the embedding model"`
	Instructions string    `json:"instructions,omitempty" jsonschema:"description=Retrieval instructions shown to the model"`
	Created      time.Time `json:"created" jsonschema:"description=Creation time"`
	Updated      time.Time `json:"updated" jsonschema:"description=Last modification time"`
}

// RepositoryFileStatus tracks the processing state of a repository file.
type RepositoryFileStatus string

const (
	FileStatusPending    RepositoryFileStatus = "pending"
	FileStatusProcessing RepositoryFileStatus = "processing"
	FileStatusReady      RepositoryFileStatus = "ready"
	FileStatusFailed     RepositoryFileStatus = "failed"
)

// RepositoryFile is the per-file metadata stored in files/{id}/metadata.json.
// Extracted text, segments and vectors live in sibling files next to it.
type RepositoryFile struct {
	ID           string               `json:"id" jsonschema:"description=File identifier"`
	Name         string               `json:"name" jsonschema:"description=Original file name"`
	Status       RepositoryFileStatus `json:"status" jsonschema:"description=Processing status"`
	Progress     float64              `json:"progress,omitempty" jsonschema:"description=Processing progress in the 0..1 range"`
	HasText      bool                 `json:"has_text,omitempty" jsonschema:"description=Whether extracted text is stored"`
	HasVectors   bool                 `json:"has_vectors,omitempty" jsonschema:"description=Whether embedding vectors are stored"`
	SegmentCount int                  `json:"segment_count,omitempty" jsonschema:"description=Number of text segments"`
	Error        string               `json:"error,omitempty" jsonschema:"description=Processing error"`
}

// Skill is a named enableable capability bundle, serialized as SKILL.md with
// YAML front matter. Enabled is front-matter state only: toggling it never
// rewrites the body.
type Skill struct {
	Name        string `json:"name" yaml:"name" jsonschema:"description=Skill name equal to its folder name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" jsonschema:"description=Short description"`
	Enabled     bool   `json:"enabled" yaml:"enabled" jsonschema:"description=Whether the skill is active"`
	Body        string `json:"body,omitempty" yaml:"-" jsonschema:"description=Markdown body after the front matter"`
}

// GeneratedImage is the metadata for one generated image. The image bytes
// themselves are stored as a co-located blob.
type GeneratedImage struct {
	ID      string    `json:"id" jsonschema:"description=Image identifier"`
	Prompt  string    `json:"prompt,omitempty" jsonschema:"description=Prompt used to generate the image"`
	Model   string    `json:"model,omitempty" jsonschema:"description=Image model identifier"`
	BlobID  string    `json:"blob_id" jsonschema:"description=Identifier of the co-located blob holding the image bytes"`
	Created time.Time `json:"created" jsonschema:"description=Creation time"`
}

// ArtifactFile is the in-memory form of one artifact, used by the bulk
// load/store operations of the artifact file store.
type ArtifactFile struct {
	Path        string `json:"path" jsonschema:"description=Root-relative path with a leading slash"`
	Content     string `json:"content" jsonschema:"description=Text content or data URL for binary files"`
	ContentType string `json:"content_type,omitempty" jsonschema:"description=MIME type inferred from the extension when not stored"`
}
