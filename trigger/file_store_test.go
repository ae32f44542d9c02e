package trigger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreUpsertLookupRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir(), nil)

	item := Item{Kind: KindText, Text: "Read the pinned message"}
	if err := store.Upsert(ctx, "group-1", "Rules", item); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	for _, keyword := range []string{"rules", " rules ", "RULES", "Rules"} {
		got, found, err := store.Lookup(ctx, "group-1", keyword)
		if err != nil {
			t.Fatalf("Lookup(%q) error = %v", keyword, err)
		}
		if !found {
			t.Fatalf("Lookup(%q) found = false", keyword)
		}
		if got.Text != item.Text {
			t.Fatalf("Lookup(%q) text = %q, want %q", keyword, got.Text, item.Text)
		}
	}

	if _, found, err := store.Lookup(ctx, "group-2", "rules"); err != nil || found {
		t.Fatalf("Lookup(other conversation) = (found=%v, err=%v), want miss", found, err)
	}
}

func TestFileStoreKeywordsPreserveInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir(), nil)

	for _, keyword := range []string{"zeta", "alpha", "mid"} {
		if err := store.Upsert(ctx, "g", keyword, Item{Kind: KindText, Text: "x"}); err != nil {
			t.Fatalf("Upsert(%q) error = %v", keyword, err)
		}
	}
	keywords, err := store.Keywords(ctx, "g")
	if err != nil {
		t.Fatalf("Keywords() error = %v", err)
	}
	want := []string{"zeta", "alpha", "mid"}
	if len(keywords) != len(want) {
		t.Fatalf("Keywords() = %v, want %v", keywords, want)
	}
	for i := range want {
		if keywords[i] != want[i] {
			t.Fatalf("Keywords()[%d] = %q, want %q", i, keywords[i], want[i])
		}
	}
}

func TestFileStoreUpsertOverwriteKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir(), nil)

	if err := store.Upsert(ctx, "g", "faq", Item{Kind: KindText, Text: "old"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	first, _, err := store.Lookup(ctx, "g", "faq")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if err := store.Upsert(ctx, "g", "faq", Item{Kind: KindText, Text: "new"}); err != nil {
		t.Fatalf("Upsert(overwrite) error = %v", err)
	}
	second, _, err := store.Lookup(ctx, "g", "faq")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if second.Text != "new" {
		t.Fatalf("overwrite text = %q, want %q", second.Text, "new")
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("overwrite changed created_at: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestFileStoreRemoveDeletesMediaAndPrunes(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewFileStore(root, nil)

	ref, err := store.SaveMedia(ctx, "g", "promo", "image/jpeg", []byte("jpegbytes"))
	if err != nil {
		t.Fatalf("SaveMedia() error = %v", err)
	}
	if filepath.Ext(ref) != ".jpg" {
		t.Fatalf("SaveMedia() ref = %q, want .jpg extension", ref)
	}
	item := Item{Kind: KindImage, Text: "caption", MediaRef: ref, MimeType: "image/jpeg"}
	if err := store.Upsert(ctx, "g", "promo", item); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	removed, err := store.Remove(ctx, "g", "PROMO")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !removed {
		t.Fatalf("Remove() removed = false")
	}
	if _, err := os.Stat(ref); !os.IsNotExist(err) {
		t.Fatalf("media blob still present after Remove: %v", err)
	}

	all, err := store.Get(ctx, "g")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("Get() after prune = %v, want empty", all)
	}

	removed, err = store.Remove(ctx, "g", "promo")
	if err != nil {
		t.Fatalf("Remove(missing) error = %v", err)
	}
	if removed {
		t.Fatalf("Remove(missing) removed = true")
	}
}

func TestFileStoreCorruptFileDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "triggers.json"), []byte("{broken"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	store := NewFileStore(root, nil)

	keywords, err := store.Keywords(ctx, "g")
	if err != nil {
		t.Fatalf("Keywords() error = %v", err)
	}
	if len(keywords) != 0 {
		t.Fatalf("Keywords() on corrupt store = %v, want empty", keywords)
	}

	// A successful write repairs the document.
	if err := store.Upsert(ctx, "g", "k", Item{Kind: KindText, Text: "v"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, found, err := store.Lookup(ctx, "g", "k"); err != nil || !found {
		t.Fatalf("Lookup() after repair = (found=%v, err=%v)", found, err)
	}
}

func TestItemValidate(t *testing.T) {
	cases := []struct {
		name    string
		item    Item
		wantErr bool
	}{
		{"text ok", Item{Kind: KindText, Text: "hi"}, false},
		{"text empty", Item{Kind: KindText}, true},
		{"text with media", Item{Kind: KindText, Text: "hi", MediaRef: "x"}, true},
		{"image ok", Item{Kind: KindImage, MediaRef: "p.jpg", MimeType: "image/jpeg"}, false},
		{"image empty caption ok", Item{Kind: KindImage, Text: "", MediaRef: "p.jpg"}, false},
		{"image missing ref", Item{Kind: KindImage, Text: "cap"}, true},
		{"bad kind", Item{Kind: "sticker", Text: "hi"}, true},
	}
	for _, tc := range cases {
		err := tc.item.Validate()
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: Validate() error = %v, wantErr = %v", tc.name, err, tc.wantErr)
		}
	}
}
