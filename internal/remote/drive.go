package remote

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

const (
	// DefaultAPIBase is the Drive v3 service root. Uploads are resolved
	// against its host under /upload/drive/v3.
	DefaultAPIBase = "https://www.googleapis.com/drive/v3/"

	folderMimeType = "application/vnd.google-apps.folder"
)

// DriveOptions configures a DriveRemote. Zero values select Google's
// production endpoints.
type DriveOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	APIBase    string
	Endpoint   oauth2.Endpoint
	HTTPClient *http.Client

	// RetryDelay is multiplied by the attempt number between failed attempts.
	RetryDelay time.Duration
}

// DriveRemote stores the transfer unit in Google Drive through the generated
// v3 client.
type DriveRemote struct {
	oauth      *oauth2.Config
	store      CredentialStore
	logger     syncbot.Logger
	http       *http.Client
	apiBase    string
	retryDelay time.Duration
}

var _ syncbot.Remote = (*DriveRemote)(nil)

// NewDriveRemote creates a Drive client. Tokens are read from and written
// to store.
func NewDriveRemote(opts DriveOptions, store CredentialStore, logger syncbot.Logger) *DriveRemote {
	endpoint := opts.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	return &DriveRemote{
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{drive.DriveFileScope},
		},
		store:      store,
		logger:     logger,
		http:       client,
		apiBase:    strings.TrimSuffix(firstNonEmpty(opts.APIBase, DefaultAPIBase), "/") + "/",
		retryDelay: opts.RetryDelay,
	}
}

func (d *DriveRemote) Name() string { return "gdrive" }

// AuthURL returns the consent page URL. Offline access and a forced consent
// prompt make Google issue a refresh token every time.
func (d *DriveRemote) AuthURL() (string, error) {
	if d.oauth.ClientID == "" {
		return "", fmt.Errorf("client id is not configured")
	}
	return d.oauth.AuthCodeURL("", oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// ExchangeCode trades an authorization code for tokens and stores them.
func (d *DriveRemote) ExchangeCode(ctx context.Context, code string) error {
	if d.oauth.ClientID == "" || d.oauth.ClientSecret == "" {
		return fmt.Errorf("client id and secret are not configured")
	}
	tok, err := d.oauth.Exchange(d.oauthContext(ctx), strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	if err := d.store.Save(tok); err != nil {
		return fmt.Errorf("saving tokens: %w", err)
	}
	d.logger.Info("authorization stored")
	return nil
}

// IsAuthenticated reports whether a refresh token is stored. It does not
// contact the API.
func (d *DriveRemote) IsAuthenticated() bool {
	tok, err := d.store.Load()
	if err != nil || tok == nil {
		return false
	}
	return tok.RefreshToken != ""
}

// EnsureAuthenticated checks the token against the API, refreshing the token when needed.
func (d *DriveRemote) EnsureAuthenticated(ctx context.Context) error {
	return d.withRetry(ctx, func(context.Context, *oauth2.Token) error { return nil }, isAuthError)
}

// FindOrCreateFolder returns the ID of the folder called name at the root of
// My Drive, creating it when absent.
func (d *DriveRemote) FindOrCreateFolder(ctx context.Context, name string) (string, error) {
	return d.findOrCreate(ctx, "root", name)
}

// FindOrCreateSubfolder returns the ID of the folder called name directly
// below parentID, creating it when absent.
func (d *DriveRemote) FindOrCreateSubfolder(ctx context.Context, parentID, name string) (string, error) {
	return d.findOrCreate(ctx, parentID, name)
}

// ResolveFolderPath walks relativePath below rootID one segment at a time.
// Empty, "." and ".." segments are ignored; both slash styles separate.
func (d *DriveRemote) ResolveFolderPath(ctx context.Context, rootID, relativePath string) (string, error) {
	id := rootID
	for _, seg := range splitFolderPath(relativePath) {
		next, err := d.FindOrCreateSubfolder(ctx, id, seg)
		if err != nil {
			return "", err
		}
		id = next
	}
	return id, nil
}

func (d *DriveRemote) findOrCreate(ctx context.Context, parentID, name string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and '%s' in parents and trashed=false",
		escapeQuery(name), folderMimeType, escapeQuery(parentID))

	existing, err := d.findFile(ctx, query)
	if err != nil {
		return "", fmt.Errorf("searching for folder %q: %w", name, err)
	}
	if existing != nil {
		return existing.Id, nil
	}

	meta := &drive.File{Name: name, MimeType: folderMimeType}
	if parentID != "root" {
		meta.Parents = []string{parentID}
	}

	var created *drive.File
	err = d.withRetry(ctx, func(ctx context.Context, tok *oauth2.Token) error {
		svc, err := d.service(ctx, tok)
		if err != nil {
			return err
		}
		created, err = svc.Files.Create(meta).Fields("id").Context(ctx).Do()
		return err
	}, isAuthError)
	if err != nil {
		return "", fmt.Errorf("creating folder %q: %w", name, err)
	}
	if created == nil || created.Id == "" {
		return "", fmt.Errorf("creating folder %q: response has no id", name)
	}
	d.logger.Info("remote folder created", "name", name, "id", created.Id)
	return created.Id, nil
}

// findFile returns the first file matching query, or nil.
func (d *DriveRemote) findFile(ctx context.Context, query string) (*drive.File, error) {
	var list *drive.FileList
	err := d.withRetry(ctx, func(ctx context.Context, tok *oauth2.Token) error {
		svc, err := d.service(ctx, tok)
		if err != nil {
			return err
		}
		list, err = svc.Files.List().
			Q(query).
			Fields("files(id, name)").
			Spaces("drive").
			Context(ctx).
			Do()
		return err
	}, isAuthError)
	if err != nil {
		return nil, err
	}
	if list == nil || len(list.Files) == 0 {
		return nil, nil
	}
	return list.Files[0], nil
}

// UploadFile uploads localPath into parentID. An existing file with the same
// name is updated in place so the folder keeps one copy.
func (d *DriveRemote) UploadFile(ctx context.Context, localPath, parentID string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", localPath, err)
	}
	name := filepath.Base(localPath)
	contentType := googleapi.ContentType(mimeTypeFor(name))

	query := fmt.Sprintf("name='%s' and '%s' in parents and mimeType!='%s' and trashed=false",
		escapeQuery(name), escapeQuery(parentID), folderMimeType)
	existing, err := d.findFile(ctx, query)
	if err != nil {
		return "", fmt.Errorf("searching for %q: %w", name, err)
	}

	var uploaded *drive.File
	err = d.withRetry(ctx, func(ctx context.Context, tok *oauth2.Token) error {
		svc, err := d.service(ctx, tok)
		if err != nil {
			return err
		}
		// Each attempt needs a fresh reader over the same bytes.
		media := bytes.NewReader(data)
		if existing != nil {
			uploaded, err = svc.Files.Update(existing.Id, &drive.File{}).
				Media(media, contentType).
				Fields("id").
				Context(ctx).
				Do()
		} else {
			uploaded, err = svc.Files.Create(&drive.File{Name: name, Parents: []string{parentID}}).
				Media(media, contentType).
				Fields("id").
				Context(ctx).
				Do()
		}
		return err
	}, isAuthError)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", name, err)
	}
	if uploaded == nil || uploaded.Id == "" {
		return "", fmt.Errorf("uploading %s: response has no id", name)
	}

	d.logger.Info("file uploaded", "name", name, "id", uploaded.Id, "bytes", len(data), "updated", existing != nil)
	return uploaded.Id, nil
}

// checkToken asks the about endpoint for the user to see if tok is accepted.
func (d *DriveRemote) checkToken(ctx context.Context, tok *oauth2.Token) error {
	svc, err := d.service(ctx, tok)
	if err != nil {
		return err
	}
	_, err = svc.About.Get().Fields("user").Context(ctx).Do()
	return err
}

// service builds a Drive client that sends tok as is. Refreshing stays in
// withRetry so every new token goes through the credential store.
func (d *DriveRemote) service(ctx context.Context, tok *oauth2.Token) (*drive.Service, error) {
	client := oauth2.NewClient(d.oauthContext(ctx), oauth2.StaticTokenSource(tok))
	client.Timeout = d.http.Timeout

	svc, err := drive.NewService(ctx, option.WithHTTPClient(client), option.WithEndpoint(d.apiBase))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return svc, nil
}

func (d *DriveRemote) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, d.http)
}

// escapeQuery escapes a value for use inside a single-quoted Drive query string.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func splitFolderPath(p string) []string {
	fields := strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
	segs := fields[:0]
	for _, f := range fields {
		if f == "." || f == ".." || strings.TrimSpace(f) == "" {
			continue
		}
		segs = append(segs, f)
	}
	return segs
}

var mimeTypes = map[string]string{
	".zip":  "application/zip",
	".json": "application/json",
	".txt":  "text/plain",
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".pdf":  "application/pdf",
	".age":  "application/age-encryption",
}

// mimeTypeFor picks a content type from the file extension.
func mimeTypeFor(name string) string {
	if t, ok := mimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return "application/octet-stream"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
