package remote

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"

	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// fakeDrive is a minimal in-process Drive v3 and OAuth token endpoint.
type fakeDrive struct {
	srv *httptest.Server

	mu          sync.Mutex
	validToken  string
	nextID      int
	files       map[string]*fakeFile
	requests    map[string]int // "METHOD path" -> count
	refreshes   int
	failFiles   int // next N /files calls answer 500
	unauthFiles int // next N /files calls answer 401
	rejectToken bool
}

type fakeFile struct {
	id, name, mimeType, parent string
	content                    []byte
}

var (
	nameRe   = regexp.MustCompile(`name='((?:[^'\\]|\\.)*)'`)
	parentRe = regexp.MustCompile(`'((?:[^'\\]|\\.)*)' in parents`)
)

func newFakeDrive(t *testing.T) *fakeDrive {
	t.Helper()
	f := &fakeDrive{
		validToken: "valid-token",
		files:      make(map[string]*fakeFile),
		requests:   make(map[string]int),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

// remote returns a DriveRemote pointed at the fake with the given stored token.
func (f *fakeDrive) remote(t *testing.T, tok *oauth2.Token) (*DriveRemote, *FileCredentialStore) {
	t.Helper()
	store := NewFileCredentialStore(t.TempDir() + "/tokens.json")
	if tok != nil {
		if err := store.Save(tok); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	d := NewDriveRemote(DriveOptions{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:14242",
		APIBase:      f.srv.URL + "/drive/v3/",
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.srv.URL + "/auth",
			TokenURL:  f.srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		HTTPClient: f.srv.Client(),
	}, store, syncbot.NewNopLogger())
	return d, store
}

// set mutates the fake under its lock.
func (f *fakeDrive) set(fn func(f *fakeDrive)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeDrive) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeDrive) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[key]
}

func (f *fakeDrive) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	f.requests[r.Method+" "+path]++

	if path == "/token" {
		f.serveToken(w, r)
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+f.validToken {
		http.Error(w, `{"error":{"code":401,"message":"Invalid Credentials"}}`, http.StatusUnauthorized)
		return
	}

	switch {
	case path == "/drive/v3/about":
		writeJSON(w, drive.About{User: &drive.User{EmailAddress: "me@example.com"}})
		return
	case strings.Contains(path, "/files"):
		if f.unauthFiles > 0 {
			f.unauthFiles--
			http.Error(w, `{"error":{"code":401,"message":"expired"}}`, http.StatusUnauthorized)
			return
		}
		if f.failFiles > 0 {
			f.failFiles--
			http.Error(w, "backend error", http.StatusInternalServerError)
			return
		}
	}

	switch {
	case r.Method == http.MethodGet && path == "/drive/v3/files":
		f.list(w, r.URL.Query().Get("q"))
	case r.Method == http.MethodPost && path == "/drive/v3/files":
		var meta drive.File
		if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, drive.File{Id: f.add(meta, nil).id})
	case r.Method == http.MethodPost && path == "/upload/drive/v3/files":
		meta, content, err := readMultipart(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, drive.File{Id: f.add(meta, content).id})
	case r.Method == http.MethodPatch && strings.HasPrefix(path, "/upload/drive/v3/files/"):
		id := strings.TrimPrefix(path, "/upload/drive/v3/files/")
		file, ok := f.files[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		meta, content, err := readMultipart(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file.content, file.mimeType = content, meta.MimeType
		writeJSON(w, drive.File{Id: id})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeDrive) serveToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if f.rejectToken {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"invalid_grant"}`)
		return
	}

	switch r.Form.Get("grant_type") {
	case "refresh_token":
		f.refreshes++
		writeJSON(w, map[string]any{"access_token": f.validToken, "token_type": "Bearer", "expires_in": 3600})
	case "authorization_code":
		writeJSON(w, map[string]any{
			"access_token":  f.validToken,
			"refresh_token": "refresh-" + r.Form.Get("code"),
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	default:
		http.Error(w, "unsupported grant", http.StatusBadRequest)
	}
}

func (f *fakeDrive) list(w http.ResponseWriter, q string) {
	name := unescape(firstGroup(nameRe, q))
	parent := unescape(firstGroup(parentRe, q))
	wantFolder := strings.Contains(q, "mimeType='"+folderMimeType+"'")

	var out drive.FileList
	for _, file := range f.sortedFiles() {
		isFolder := file.mimeType == folderMimeType
		if file.name == name && file.parent == parent && isFolder == wantFolder {
			out.Files = append(out.Files, &drive.File{Id: file.id, Name: file.name})
		}
	}
	writeJSON(w, out)
}

// readMultipart splits a multipart/related upload into its JSON metadata and
// media parts. The media part's content type is returned in MimeType.
func readMultipart(r *http.Request) (drive.File, []byte, error) {
	var meta drive.File
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/related" {
		return meta, nil, fmt.Errorf("expected multipart/related, got %q", r.Header.Get("Content-Type"))
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := mr.NextPart()
	if err != nil {
		return meta, nil, err
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		return meta, nil, err
	}

	dataPart, err := mr.NextPart()
	if err != nil {
		return meta, nil, err
	}
	meta.MimeType = dataPart.Header.Get("Content-Type")
	content, err := io.ReadAll(dataPart)
	return meta, content, err
}

func (f *fakeDrive) add(meta drive.File, content []byte) *fakeFile {
	f.nextID++
	parent := "root"
	if len(meta.Parents) > 0 {
		parent = meta.Parents[0]
	}
	file := &fakeFile{
		id:       fmt.Sprintf("id-%d", f.nextID),
		name:     meta.Name,
		mimeType: meta.MimeType,
		parent:   parent,
		content:  content,
	}
	f.files[file.id] = file
	return file
}

func (f *fakeDrive) sortedFiles() []*fakeFile {
	out := make([]*fakeFile, 0, len(f.files))
	for i := 1; i <= f.nextID; i++ {
		if file, ok := f.files[fmt.Sprintf("id-%d", i)]; ok {
			out = append(out, file)
		}
	}
	return out
}

// byName returns files with the given name.
func (f *fakeDrive) byName(name string) []*fakeFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeFile
	for _, file := range f.sortedFiles() {
		if file.name == name {
			out = append(out, file)
		}
	}
	return out
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\'`, `'`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
