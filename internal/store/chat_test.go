package store

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/maruel/chatdb/internal/models"
	"github.com/maruel/chatdb/internal/vfs"
)

// testPNG renders a small image and returns its encoded bytes.
func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testChat(id string, pngData []byte) *models.Chat {
	return &models.Chat{
		ID:      id,
		Title:   "Vacation photos",
		Model:   "test-model",
		Created: t1,
		Updated: t2,
		Messages: []models.StoredMessage{
			{
				Role: "user",
				Content: []models.Content{
					{Kind: models.ContentText, Text: "look at this"},
					{Kind: models.ContentImage, Data: EncodeDataURL("image/png", pngData)},
				},
			},
			{
				Role: "assistant",
				Content: []models.Content{
					{Kind: models.ContentReasoning, Text: "thinking"},
					{Kind: models.ContentToolCall, ToolName: "render", ToolCallID: "call1", Args: []byte(`{"w":256}`)},
					{
						Kind:       models.ContentToolResult,
						ToolName:   "render",
						ToolCallID: "call1",
						Result: []models.Content{
							{Kind: models.ContentText, Text: "rendered"},
							{Kind: models.ContentFile, FileName: "out.bin", Data: EncodeDataURL("application/octet-stream", []byte{1, 2, 3})},
						},
					},
					{Kind: models.ContentText, Text: "done"},
				},
			},
		},
	}
}

func TestChatSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	pngData := testPNG(t)
	chat := testChat("chat1", pngData)

	if err := s.SaveChat(chat); err != nil {
		t.Fatal(err)
	}

	loaded, ok, err := s.LoadChat("chat1")
	if err != nil || !ok {
		t.Fatalf("ok=%t err=%v", ok, err)
	}
	if loaded.Title != chat.Title || len(loaded.Messages) != 2 {
		t.Fatalf("loaded = %+v", loaded)
	}

	// The image payload round-trips byte for byte.
	imgItem := loaded.Messages[0].Content[1]
	mimeType, data, ok := DecodeDataURL(imgItem.Data)
	if !ok {
		t.Fatalf("image payload not a data URL: %q", imgItem.Data[:32])
	}
	if mimeType != "image/png" || !bytes.Equal(data, pngData) {
		t.Fatalf("mime=%q len=%d, want image/png len=%d", mimeType, len(data), len(pngData))
	}

	// So does the nested tool-result file.
	fileItem := loaded.Messages[1].Content[2].Result[1]
	_, data, ok = DecodeDataURL(fileItem.Data)
	if !ok || !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Fatalf("nested payload = %x ok=%t", data, ok)
	}

	// Text and tool-call items pass through untouched.
	if loaded.Messages[1].Content[1].ToolName != "render" || string(loaded.Messages[1].Content[1].Args) != `{"w":256}` {
		t.Fatalf("tool call = %+v", loaded.Messages[1].Content[1])
	}
}

func TestChatStoredFormHoldsBlobRefs(t *testing.T) {
	s := newTestStore(t)
	chat := testChat("chat1", testPNG(t))
	if err := s.SaveChat(chat); err != nil {
		t.Fatal(err)
	}
	stored, ok, err := s.LoadStoredChat("chat1")
	if err != nil || !ok {
		t.Fatalf("ok=%t err=%v", ok, err)
	}
	if _, ok := ParseBlobRef(stored.Messages[0].Content[1].Data); !ok {
		t.Fatalf("image at rest = %q, want blob reference", stored.Messages[0].Content[1].Data[:20])
	}
	if _, ok := ParseBlobRef(stored.Messages[1].Content[2].Result[1].Data); !ok {
		t.Fatal("nested file at rest must be a blob reference")
	}
	if stored.Messages[0].Content[1].MimeType != "image/png" {
		t.Fatalf("mime = %q", stored.Messages[0].Content[1].MimeType)
	}

	ids := CollectChatBlobIDs(stored)
	if len(ids) != 2 {
		t.Fatalf("blob ids = %v", ids)
	}
}

func TestChatExtractionDoesNotMutateInput(t *testing.T) {
	s := newTestStore(t)
	chat := testChat("chat1", testPNG(t))
	before := chat.Messages[0].Content[1].Data
	if err := s.SaveChat(chat); err != nil {
		t.Fatal(err)
	}
	if chat.Messages[0].Content[1].Data != before {
		t.Fatal("save must not rewrite the caller's chat")
	}
}

func TestChatExtractionIdempotent(t *testing.T) {
	s := newTestStore(t)
	chat := testChat("chat1", testPNG(t))
	if err := s.SaveChat(chat); err != nil {
		t.Fatal(err)
	}
	stored, _, err := s.LoadStoredChat("chat1")
	if err != nil {
		t.Fatal(err)
	}
	blobsBefore, err := s.ListEntityBlobs(CollectionChats, "chat1")
	if err != nil {
		t.Fatal(err)
	}

	// Extracting an already-extracted chat changes nothing and writes no
	// new blobs.
	again, err := s.ExtractChatBlobs(stored)
	if err != nil {
		t.Fatal(err)
	}
	if again.Messages[0].Content[1].Data != stored.Messages[0].Content[1].Data {
		t.Fatal("blob reference rewritten on re-extraction")
	}
	blobsAfter, err := s.ListEntityBlobs(CollectionChats, "chat1")
	if err != nil {
		t.Fatal(err)
	}
	if len(blobsAfter) != len(blobsBefore) {
		t.Fatalf("blobs grew from %d to %d", len(blobsBefore), len(blobsAfter))
	}
}

func TestChatDanglingBlobRef(t *testing.T) {
	s := newTestStore(t)
	stored := &models.Chat{
		ID:    "chat1",
		Title: "Damaged",
		Messages: []models.StoredMessage{
			{
				Role: "user",
				Content: []models.Content{
					{Kind: models.ContentText, Text: "intact"},
					{Kind: models.ContentImage, Data: BlobRef("gone"), MimeType: "image/png"},
				},
			},
		},
	}
	if err := s.fs.WriteJSON("chats/chat1/chat.json", stored); err != nil {
		t.Fatal(err)
	}

	loaded, ok, err := s.LoadChat("chat1")
	if err != nil || !ok {
		t.Fatalf("ok=%t err=%v", ok, err)
	}
	if loaded.Messages[0].Content[1].Data != "" {
		t.Fatalf("dangling reference must degrade to empty payload, got %q", loaded.Messages[0].Content[1].Data)
	}
	if loaded.Messages[0].Content[0].Text != "intact" {
		t.Fatal("sibling content affected by the dangling reference")
	}
}

func TestChatDelete(t *testing.T) {
	s := newTestStore(t)
	chat := testChat("chat1", testPNG(t))
	if err := s.SaveChat(chat); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteArtifact("chat1", "/notes.md", "# notes", "text/markdown"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteChat("chat1"); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := s.LoadChat("chat1"); err != nil || ok {
		t.Fatalf("ok=%t err=%v", ok, err)
	}
	if s.fs.Exists("chats/chat1") {
		t.Fatal("chat folder must be gone, blobs and artifacts included")
	}
	entries, err := s.ListChats()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("index still lists %+v", entries)
	}
}

func TestChatOrphanedBlobs(t *testing.T) {
	s := newTestStore(t)
	chat := testChat("chat1", testPNG(t))
	if err := s.SaveChat(chat); err != nil {
		t.Fatal(err)
	}
	orphans, err := s.OrphanedChatBlobs("chat1")
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 0 {
		t.Fatalf("fresh chat has orphans %v", orphans)
	}

	// Saving again without reusing the stored form writes fresh blobs and
	// strands the old ones.
	if err := s.SaveChat(chat); err != nil {
		t.Fatal(err)
	}
	orphans, err = s.OrphanedChatBlobs("chat1")
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 2 {
		t.Fatalf("orphans = %v, want 2", orphans)
	}

	// The chat still loads fine with orphans present.
	loaded, ok, err := s.LoadChat("chat1")
	if err != nil || !ok || len(loaded.Messages) != 2 {
		t.Fatalf("ok=%t err=%v", ok, err)
	}
}

func TestChatTouch(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveChat(&models.Chat{ID: "chat1", Title: "Old title", Updated: t1}); err != nil {
		t.Fatal(err)
	}
	if err := s.TouchChat("chat1", "New title"); err != nil {
		t.Fatal(err)
	}
	entries, err := s.ListChats()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Title != "New title" {
		t.Fatalf("entries = %+v", entries)
	}
	if !entries[0].Updated.After(t1) {
		t.Fatalf("updated = %v", entries[0].Updated)
	}
}

func TestChatSurvivesProcessRestart(t *testing.T) {
	vfs.SetRootDir(t.TempDir())
	t.Cleanup(func() { vfs.SetRootDir("data") })

	f, err := vfs.Root()
	if err != nil {
		t.Fatal(err)
	}
	pngData := testPNG(t)
	if err := New(f).SaveChat(testChat("chat1", pngData)); err != nil {
		t.Fatal(err)
	}

	// Dropping the cached root handle stands in for a process restart.
	vfs.ResetRoot()
	f2, err := vfs.Root()
	if err != nil {
		t.Fatal(err)
	}
	loaded, ok, err := New(f2).LoadChat("chat1")
	if err != nil || !ok {
		t.Fatalf("ok=%t err=%v", ok, err)
	}
	_, data, ok := DecodeDataURL(loaded.Messages[0].Content[1].Data)
	if !ok || !bytes.Equal(data, pngData) {
		t.Fatal("image payload lost across handles")
	}
}

func TestChatRequiresID(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveChat(&models.Chat{Title: "no id", Updated: time.Now()})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Fatalf("err = %v", err)
	}
}
