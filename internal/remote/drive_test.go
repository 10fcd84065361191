package remote

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

func validToken() *oauth2.Token {
	return &oauth2.Token{AccessToken: "valid-token", RefreshToken: "refresh", TokenType: "Bearer"}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDriveRemote_FindOrCreateFolder(t *testing.T) {
	t.Run("creates once then finds", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, _ := fake.remote(t, validToken())
		ctx := context.Background()

		first, err := d.FindOrCreateFolder(ctx, "sync-bot-backups")
		if err != nil {
			t.Fatalf("FindOrCreateFolder() error = %v", err)
		}
		second, err := d.FindOrCreateFolder(ctx, "sync-bot-backups")
		if err != nil {
			t.Fatalf("FindOrCreateFolder() error = %v", err)
		}

		if first != second {
			t.Errorf("FindOrCreateFolder() = %q then %q, want the same id", first, second)
		}
		if got := len(fake.byName("sync-bot-backups")); got != 1 {
			t.Errorf("folders created = %d, want 1", got)
		}
		if got := fake.count("POST /drive/v3/files"); got != 1 {
			t.Errorf("create requests = %d, want 1", got)
		}
	})

	t.Run("escapes quotes and backslashes", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, _ := fake.remote(t, validToken())
		ctx := context.Background()

		name := `it's a \ folder`
		first, err := d.FindOrCreateFolder(ctx, name)
		if err != nil {
			t.Fatalf("FindOrCreateFolder() error = %v", err)
		}
		second, err := d.FindOrCreateFolder(ctx, name)
		if err != nil {
			t.Fatalf("FindOrCreateFolder() error = %v", err)
		}
		if first != second {
			t.Errorf("escaped name not found again: %q vs %q", first, second)
		}
	})
}

func TestDriveRemote_ResolveFolderPath(t *testing.T) {
	fake := newFakeDrive(t)
	d, _ := fake.remote(t, validToken())
	ctx := context.Background()

	root, err := d.FindOrCreateFolder(ctx, "backups")
	if err != nil {
		t.Fatalf("FindOrCreateFolder() error = %v", err)
	}

	id, err := d.ResolveFolderPath(ctx, root, `laptop/./docs/..//\work`)
	if err != nil {
		t.Fatalf("ResolveFolderPath() error = %v", err)
	}

	for _, name := range []string{"laptop", "docs", "work"} {
		if got := len(fake.byName(name)); got != 1 {
			t.Errorf("folder %q created %d times, want 1", name, got)
		}
	}
	work := fake.byName("work")[0]
	if id != work.id {
		t.Errorf("ResolveFolderPath() = %q, want %q", id, work.id)
	}
	if docs := fake.byName("docs")[0]; work.parent != docs.id {
		t.Errorf("work parent = %q, want %q", work.parent, docs.id)
	}

	again, err := d.ResolveFolderPath(ctx, root, "laptop/docs/work")
	if err != nil {
		t.Fatalf("ResolveFolderPath() error = %v", err)
	}
	if again != id {
		t.Errorf("ResolveFolderPath() second call = %q, want %q", again, id)
	}
}

func TestDriveRemote_UploadFile(t *testing.T) {
	t.Run("creates then updates in place", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, _ := fake.remote(t, validToken())
		ctx := context.Background()

		folder, err := d.FindOrCreateFolder(ctx, "backups")
		if err != nil {
			t.Fatalf("FindOrCreateFolder() error = %v", err)
		}
		path := writeTemp(t, "backup.zip", "v1")

		id, err := d.UploadFile(ctx, path, folder)
		if err != nil {
			t.Fatalf("UploadFile() error = %v", err)
		}
		files := fake.byName("backup.zip")
		if len(files) != 1 || string(files[0].content) != "v1" {
			t.Fatalf("after first upload got %d files", len(files))
		}
		if files[0].mimeType != "application/zip" || files[0].parent != folder {
			t.Errorf("uploaded file = %+v, want zip in %s", files[0], folder)
		}
		if got := fake.count("POST /upload/drive/v3/files"); got != 1 {
			t.Errorf("upload requests = %d, want 1", got)
		}

		if err := os.WriteFile(path, []byte("v2"), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
		id2, err := d.UploadFile(ctx, path, folder)
		if err != nil {
			t.Fatalf("UploadFile() error = %v", err)
		}
		if id2 != id {
			t.Errorf("UploadFile() id = %q, want existing %q", id2, id)
		}
		files = fake.byName("backup.zip")
		if len(files) != 1 || string(files[0].content) != "v2" {
			t.Errorf("after update got %d files, content %q", len(files), files[0].content)
		}
		if got := fake.count("PATCH /upload/drive/v3/files/" + id); got != 1 {
			t.Errorf("PATCH requests = %d, want 1", got)
		}
	})

	t.Run("missing local file", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, _ := fake.remote(t, validToken())
		if _, err := d.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope.zip"), "root"); err == nil {
			t.Error("UploadFile() expected error for missing file")
		}
	})
}

func TestDriveRemote_Retry(t *testing.T) {
	t.Run("401 refreshes once and repeats uncounted", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, _ := fake.remote(t, validToken())
		fake.set(func(f *fakeDrive) { f.unauthFiles = 1 })

		if _, err := d.FindOrCreateFolder(context.Background(), "backups"); err != nil {
			t.Fatalf("FindOrCreateFolder() error = %v", err)
		}
		if fake.refreshCount() != 1 {
			t.Errorf("refreshes = %d, want 1", fake.refreshCount())
		}
	})

	t.Run("401 after refresh and two failures still succeeds on third attempt", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, _ := fake.remote(t, validToken())
		fake.set(func(f *fakeDrive) { f.unauthFiles, f.failFiles = 1, 2 })

		_, err := d.FindOrCreateFolder(context.Background(), "backups")
		if err != nil {
			t.Fatalf("FindOrCreateFolder() error = %v", err)
		}
	})

	t.Run("gives up after max attempts with status and body", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, _ := fake.remote(t, validToken())
		fake.set(func(f *fakeDrive) { f.failFiles = 100 })

		_, err := d.FindOrCreateFolder(context.Background(), "backups")
		if err == nil {
			t.Fatal("FindOrCreateFolder() expected error")
		}
		if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "backend error") {
			t.Errorf("error = %q, want status and body", err)
		}
		if got := fake.count("GET /drive/v3/files"); got != MaxRetries {
			t.Errorf("list requests = %d, want %d", got, MaxRetries)
		}
	})

	t.Run("no tokens fails without api calls", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, _ := fake.remote(t, nil)

		err := d.EnsureAuthenticated(context.Background())
		if !errors.Is(err, syncbot.ErrNotAuthenticated) {
			t.Errorf("EnsureAuthenticated() error = %v, want ErrNotAuthenticated", err)
		}
		if got := fake.count("GET /drive/v3/about"); got != 0 {
			t.Errorf("about requests = %d, want 0", got)
		}
	})

	t.Run("refresh token only is refreshed first", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, store := fake.remote(t, &oauth2.Token{RefreshToken: "refresh"})

		if err := d.EnsureAuthenticated(context.Background()); err != nil {
			t.Fatalf("EnsureAuthenticated() error = %v", err)
		}
		if fake.refreshCount() != 1 {
			t.Errorf("refreshes = %d, want 1", fake.refreshCount())
		}
		tok, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if tok.AccessToken != "valid-token" || tok.RefreshToken != "refresh" {
			t.Errorf("stored token = %+v, want refreshed access token and kept refresh token", tok)
		}
	})

	t.Run("stale access token is refreshed after the about check fails", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, _ := fake.remote(t, &oauth2.Token{AccessToken: "stale", RefreshToken: "refresh"})

		if err := d.EnsureAuthenticated(context.Background()); err != nil {
			t.Fatalf("EnsureAuthenticated() error = %v", err)
		}
		if fake.refreshCount() != 1 {
			t.Errorf("refreshes = %d, want 1", fake.refreshCount())
		}
	})

	t.Run("rejected refresh fails hard", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, _ := fake.remote(t, &oauth2.Token{AccessToken: "stale", RefreshToken: "revoked"})
		fake.set(func(f *fakeDrive) { f.rejectToken = true })

		err := d.EnsureAuthenticated(context.Background())
		if !errors.Is(err, syncbot.ErrNotAuthenticated) {
			t.Errorf("EnsureAuthenticated() error = %v, want ErrNotAuthenticated", err)
		}
		if got := fake.count("POST /token"); got != 1 {
			t.Errorf("token requests = %d, want 1", got)
		}
	})

	t.Run("stale token without refresh token fails hard", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, _ := fake.remote(t, &oauth2.Token{AccessToken: "stale"})

		err := d.EnsureAuthenticated(context.Background())
		if !errors.Is(err, syncbot.ErrNotAuthenticated) {
			t.Errorf("EnsureAuthenticated() error = %v, want ErrNotAuthenticated", err)
		}
	})
}

func TestDriveRemote_OAuth(t *testing.T) {
	t.Run("auth url", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, _ := fake.remote(t, nil)

		raw, err := d.AuthURL()
		if err != nil {
			t.Fatalf("AuthURL() error = %v", err)
		}
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("url.Parse() error = %v", err)
		}
		q := u.Query()
		checks := map[string]string{
			"client_id":     "client-id",
			"redirect_uri":  "http://localhost:14242",
			"response_type": "code",
			"access_type":   "offline",
			"prompt":        "consent",
			"scope":         "https://www.googleapis.com/auth/drive.file",
		}
		for k, want := range checks {
			if got := q.Get(k); got != want {
				t.Errorf("AuthURL() %s = %q, want %q", k, got, want)
			}
		}
	})

	t.Run("auth url without client id", func(t *testing.T) {
		d := NewDriveRemote(DriveOptions{}, NewFileCredentialStore(filepath.Join(t.TempDir(), "t.json")), syncbot.NewNopLogger())
		if _, err := d.AuthURL(); err == nil {
			t.Error("AuthURL() expected error without client id")
		}
	})

	t.Run("access token alone is not authenticated", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, _ := fake.remote(t, &oauth2.Token{AccessToken: "short-lived"})

		if d.IsAuthenticated() {
			t.Error("IsAuthenticated() = true with only an access token, want false")
		}
	})

	t.Run("refresh token alone is authenticated", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, _ := fake.remote(t, &oauth2.Token{RefreshToken: "refresh"})

		if !d.IsAuthenticated() {
			t.Error("IsAuthenticated() = false with a refresh token, want true")
		}
	})

	t.Run("exchange stores tokens", func(t *testing.T) {
		fake := newFakeDrive(t)
		d, store := fake.remote(t, nil)

		if d.IsAuthenticated() {
			t.Fatal("IsAuthenticated() = true before exchange")
		}
		if err := d.ExchangeCode(context.Background(), " abc "); err != nil {
			t.Fatalf("ExchangeCode() error = %v", err)
		}
		if !d.IsAuthenticated() {
			t.Error("IsAuthenticated() = false after exchange")
		}
		tok, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if tok.RefreshToken != "refresh-abc" {
			t.Errorf("RefreshToken = %q, want refresh-abc", tok.RefreshToken)
		}
	})
}

func TestEscapeQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"it's", `it\'s`},
		{`a\b`, `a\\b`},
		{`a\'b`, `a\\\'b`},
	}
	for _, tt := range tests {
		if got := escapeQuery(tt.in); got != tt.want {
			t.Errorf("escapeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitFolderPath(t *testing.T) {
	got := splitFolderPath(`/a/./b/../\c//`)
	want := []string{"a", "b", "c"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("splitFolderPath() = %v, want %v", got, want)
	}
	if got := splitFolderPath(""); len(got) != 0 {
		t.Errorf("splitFolderPath(\"\") = %v, want empty", got)
	}
}

func TestMimeTypeFor(t *testing.T) {
	tests := map[string]string{
		"backup.zip":     "application/zip",
		"BACKUP.ZIP":     "application/zip",
		"data.json":      "application/json",
		"notes.txt":      "text/plain",
		"photo.jpeg":     "image/jpeg",
		"photo.jpg":      "image/jpeg",
		"backup.zip.age": "application/age-encryption",
		"unknown.bin":    "application/octet-stream",
		"noext":          "application/octet-stream",
	}
	for name, want := range tests {
		if got := mimeTypeFor(name); got != want {
			t.Errorf("mimeTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}
