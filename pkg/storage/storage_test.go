package storage

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/MrCodeEU/facetrack/pkg/recognition"
	"github.com/MrCodeEU/facetrack/pkg/roster"
)

func TestNewFileStore(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name       string
		dataDir    string
		encryption bool
		wantErr    bool
	}{
		{
			name:       "without encryption",
			dataDir:    filepath.Join(tmpDir, "test1"),
			encryption: false,
		},
		{
			name:       "with encryption",
			dataDir:    filepath.Join(tmpDir, "test2"),
			encryption: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := NewFileStore(tt.dataDir, tt.encryption)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewFileStore() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if fs == nil {
				t.Fatal("NewFileStore returned nil")
			}

			if _, err := os.Stat(filepath.Join(tt.dataDir, "identities")); os.IsNotExist(err) {
				t.Error("identities directory was not created")
			}
		})
	}
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	for _, encrypted := range []bool{false, true} {
		fs, err := NewFileStore(t.TempDir(), encrypted)
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		ctx := context.Background()

		alice := testIdentity("Alice", 1)
		bob := testIdentity("Bob Smith", 2)
		for _, id := range []roster.Identity{alice, bob} {
			if err := fs.Save(ctx, id); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
		}

		loaded, err := fs.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(loaded) != 2 {
			t.Fatalf("expected 2 identities, got %d", len(loaded))
		}
		sort.Slice(loaded, func(i, j int) bool { return loaded[i].Name < loaded[j].Name })

		if loaded[0].Name != "Alice" || loaded[0].Descriptor != alice.Descriptor {
			t.Errorf("Alice not round-tripped (encrypted=%v): %+v", encrypted, loaded[0].Name)
		}
		if !loaded[1].EnrolledAt.Equal(bob.EnrolledAt) {
			t.Errorf("enrolled_at mismatch: got %v, want %v", loaded[1].EnrolledAt, bob.EnrolledAt)
		}
	}
}

func TestFileStore_EncryptedOnDisk(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), true)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := fs.Save(context.Background(), testIdentity("Alice", 1)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(fs.Dir(), "Alice.enc"))
	if err != nil {
		t.Fatalf("failed to read encrypted file: %v", err)
	}
	// First byte should not be '{' if encrypted
	if len(data) > 0 && data[0] == '{' {
		t.Error("file does not appear to be encrypted")
	}
}

func TestFileStore_OverwriteKeepsOneFile(t *testing.T) {
	dataDir := t.TempDir()
	ctx := context.Background()

	plain, _ := NewFileStore(dataDir, false)
	if err := plain.Save(ctx, testIdentity("Alice", 1)); err != nil {
		t.Fatal(err)
	}

	enc, _ := NewFileStore(dataDir, true)
	updated := testIdentity("Alice", 5)
	if err := enc.Save(ctx, updated); err != nil {
		t.Fatal(err)
	}

	loaded, err := enc.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Descriptor != updated.Descriptor {
		t.Errorf("expected only the latest enrollment, got %d identities", len(loaded))
	}
}

func TestFileStore_Delete(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()

	if err := fs.Save(ctx, testIdentity("Alice", 1)); err != nil {
		t.Fatal(err)
	}
	if err := fs.Delete(ctx, "Alice"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
	if err := fs.Delete(ctx, "Alice"); err != nil {
		t.Errorf("deleting an absent identity should succeed, got %v", err)
	}

	loaded, _ := fs.Load(ctx)
	if len(loaded) != 0 {
		t.Errorf("expected empty store, got %d", len(loaded))
	}
}

func TestFileStore_EscapesNames(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	name := "José María?"
	if err := fs.Save(context.Background(), testIdentity(name, 1)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(fs.Dir(), url.PathEscape(name)+".json")); err != nil {
		t.Errorf("expected escaped file name: %v", err)
	}

	loaded, _ := fs.Load(context.Background())
	if len(loaded) != 1 || loaded[0].Name != name {
		t.Errorf("name not preserved: %+v", loaded)
	}
}

func TestFileStore_LoadIgnoresOtherFiles(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(fs.Dir(), "README.txt"), []byte("hi"), 0600)
	_ = os.Mkdir(filepath.Join(fs.Dir(), "sub.json"), 0700)

	loaded, err := fs.Load(context.Background())
	if err != nil || len(loaded) != 0 {
		t.Errorf("Load = %v, %v", loaded, err)
	}
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), true)
	if err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(fs.Dir(), "Alice.enc"), make([]byte, 100), 0600)

	if _, err := fs.Load(context.Background()); err == nil {
		t.Error("expected error for corrupt file")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), true)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	plaintext := []byte("This is a test message for encryption")

	ciphertext, err := fs.encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if string(ciphertext) == string(plaintext) {
		t.Error("ciphertext should differ from plaintext")
	}

	decrypted, err := fs.decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Errorf("decrypted text doesn't match: got %s, want %s", string(decrypted), string(plaintext))
	}
}

func TestDecrypt_InvalidData(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), true)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	// Too short
	if _, err := fs.decrypt([]byte("short")); err != ErrEncryption {
		t.Errorf("expected ErrEncryption for short data, got %v", err)
	}

	// Invalid ciphertext
	if _, err := fs.decrypt(make([]byte, 100)); err != ErrEncryption {
		t.Errorf("expected ErrEncryption for invalid data, got %v", err)
	}
}

func testIdentity(name string, seed int) roster.Identity {
	var d recognition.Descriptor
	for j := range d {
		d[j] = float32(seed*128+j) / 1000.0
	}
	return roster.Identity{
		Name:       name,
		Descriptor: d,
		EnrolledAt: time.Date(2024, 3, 1, 9, seed, 0, 0, time.UTC),
	}
}

func BenchmarkFileStore_Save(b *testing.B) {
	fs, _ := NewFileStore(b.TempDir(), false)
	id := testIdentity("benchuser", 1)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = fs.Save(ctx, id)
	}
}

func BenchmarkEncryptDecrypt(b *testing.B) {
	fs, _ := NewFileStore(b.TempDir(), true)
	data := []byte("benchmark encryption data that is reasonably sized")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		encrypted, _ := fs.encrypt(data)
		_, _ = fs.decrypt(encrypted)
	}
}
