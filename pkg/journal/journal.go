// Package journal mirrors wellness check-ins into a Google Doc.
//
// The mirror is optional: without OAuth client credentials New returns
// ErrDisabled. Once a user has connected through /api/journal/auth every
// appended check-in is queued and written to the end of the document by a
// single background goroutine, so a slow Docs API never holds up a session.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-voiceform/internal/httpc"
	"github.com/teslashibe/go-voiceform/pkg/store"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"
)

// Errors returned by the journal.
var (
	ErrDisabled         = errors.New("journal: google client id and secret are required")
	ErrNotAuthenticated = errors.New("journal: not connected to google")
	ErrQueueFull        = errors.New("journal: queue full")
)

// Defaults.
const (
	DefaultRedirectURL = "http://localhost:8080/api/journal/callback"
	DefaultTitle       = "Wellness Journal"
	DefaultQueueSize   = 64

	requestTimeout = 30 * time.Second
	oauthState     = "voiceform-journal"
)

// Scopes requested from the user.
var Scopes = []string{
	"https://www.googleapis.com/auth/documents",
	"https://www.googleapis.com/auth/drive.file",
}

// Config configures the journal.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	DocumentID   string
	TokenPath    string // default: ~/.voiceform/google_token.json
	Title        string // title of a document created when DocumentID is empty

	// Endpoint overrides the Docs API base URL.
	Endpoint string

	Logger *slog.Logger
}

// Journal is the Google Docs mirror.
type Journal struct {
	config    *oauth2.Config
	tokenPath string
	title     string
	endpoint  string
	logger    *slog.Logger

	mu      sync.RWMutex
	token   *oauth2.Token
	service *docs.Service
	docID   string

	queue    chan store.CheckIn
	notify   []func(entry store.CheckIn, err error)
	mirrored atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// New creates a journal and loads a saved token if there is one.
func New(cfg Config) (*Journal, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrDisabled
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = DefaultRedirectURL
	}
	if cfg.TokenPath == "" {
		home, _ := os.UserHomeDir()
		cfg.TokenPath = filepath.Join(home, ".voiceform", "google_token.json")
	}
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	j := &Journal{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint:     google.Endpoint,
		},
		tokenPath: cfg.TokenPath,
		title:     cfg.Title,
		endpoint:  cfg.Endpoint,
		logger:    cfg.Logger.With("component", "journal"),
		docID:     cfg.DocumentID,
		queue:     make(chan store.CheckIn, DefaultQueueSize),
	}

	if tok, err := j.loadToken(); err == nil {
		if err := j.setToken(tok); err != nil {
			j.logger.Warn("saved token unusable, reconnect required", "error", err)
		}
	}
	return j, nil
}

// Connected reports whether the journal has a usable token.
func (j *Journal) Connected() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.service != nil && j.token != nil && (j.token.Valid() || j.token.RefreshToken != "")
}

// DocumentID returns the document entries are written to, if known yet.
func (j *Journal) DocumentID() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.docID
}

// AuthURL returns the Google consent URL.
func (j *Journal) AuthURL() string {
	return j.config.AuthCodeURL(oauthState, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and saves it.
func (j *Journal) Exchange(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpc.Client)

	tok, err := j.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("journal: exchanging code: %w", err)
	}
	if err := j.setToken(tok); err != nil {
		return err
	}
	if err := j.saveToken(tok); err != nil {
		j.logger.Warn("failed to save token", "error", err)
	}
	j.logger.Info("connected to google docs")
	return nil
}

// Disconnect forgets the token and removes the saved copy.
func (j *Journal) Disconnect() error {
	j.mu.Lock()
	j.token = nil
	j.service = nil
	j.mu.Unlock()

	if err := os.Remove(j.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("journal: removing token: %w", err)
	}
	return nil
}

// OnMirrored registers a callback run after every mirror attempt.
func (j *Journal) OnMirrored(fn func(entry store.CheckIn, err error)) {
	j.mu.Lock()
	j.notify = append(j.notify, fn)
	j.mu.Unlock()
}

// Mirror queues entry for the document. It has the store.Mirror signature
// and never blocks; entries are dropped when the journal is not connected
// or the queue is full.
func (j *Journal) Mirror(_ context.Context, entry store.CheckIn) {
	if !j.Connected() {
		j.logger.Debug("not connected, skipping mirror", "checkin", entry.ID)
		return
	}
	select {
	case j.queue <- entry:
	default:
		j.dropped.Add(1)
		j.report(entry, ErrQueueFull)
	}
}

// Run writes queued entries until ctx is done.
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-j.queue:
			err := j.Append(ctx, entry)
			if err == nil {
				j.mirrored.Add(1)
			}
			j.report(entry, err)
		}
	}
}

func (j *Journal) report(entry store.CheckIn, err error) {
	if err != nil {
		j.failed.Add(1)
		j.logger.Warn("failed to mirror check-in", "checkin", entry.ID, "error", err)
	} else {
		j.logger.Info("check-in mirrored", "checkin", entry.ID, "document", j.DocumentID())
	}

	j.mu.RLock()
	fns := j.notify
	j.mu.RUnlock()
	for _, fn := range fns {
		fn(entry, err)
	}
}

// Append writes entry at the end of the document, creating the document
// first when none is configured.
func (j *Journal) Append(ctx context.Context, entry store.CheckIn) error {
	j.mu.RLock()
	service := j.service
	j.mu.RUnlock()
	if service == nil {
		return ErrNotAuthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	docID, err := j.document(ctx, service)
	if err != nil {
		return err
	}

	doc, err := service.Documents.Get(docID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("journal: getting document: %w", err)
	}

	// The body always ends with a newline the API will not let us insert after.
	index := int64(1)
	if doc.Body != nil && len(doc.Body.Content) > 0 {
		if end := doc.Body.Content[len(doc.Body.Content)-1].EndIndex - 1; end > index {
			index = end
		}
	}

	_, err = service.Documents.BatchUpdate(docID, &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{
			InsertText: &docs.InsertTextRequest{
				Location: &docs.Location{Index: index},
				Text:     Format(entry),
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("journal: updating document: %w", err)
	}
	return nil
}

func (j *Journal) document(ctx context.Context, service *docs.Service) (string, error) {
	if id := j.DocumentID(); id != "" {
		return id, nil
	}

	created, err := service.Documents.Create(&docs.Document{Title: j.title}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("journal: creating document: %w", err)
	}

	j.mu.Lock()
	j.docID = created.DocumentId
	j.mu.Unlock()
	j.logger.Info("created journal document", "document", created.DocumentId, "url", DocURL(created.DocumentId))
	return created.DocumentId, nil
}

// Format renders one check-in as a journal entry.
func Format(c store.CheckIn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", c.Date, c.Time)

	line := func(label, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, v)
		}
	}
	line("Mood", c.Mood)
	line("Energy", c.Energy)
	line("Stress", c.Stress)
	if len(c.Objectives) > 0 {
		b.WriteString("Objectives:\n")
		for _, o := range c.Objectives {
			fmt.Fprintf(&b, "• %s\n", o)
		}
	}
	line("Notes", c.Notes)
	line("Summary", c.Summary)
	b.WriteString("\n")
	return b.String()
}

// DocURL returns the URL to view a document.
func DocURL(docID string) string {
	return fmt.Sprintf("https://docs.google.com/document/d/%s/edit", docID)
}

// Status is the connection state for the API.
type Status struct {
	Connected  bool   `json:"connected"`
	DocumentID string `json:"document_id,omitempty"`
	URL        string `json:"url,omitempty"`
	AuthURL    string `json:"auth_url,omitempty"`
	Mirrored   uint64 `json:"mirrored"`
	Failed     uint64 `json:"failed"`
	Dropped    uint64 `json:"dropped"`
	Pending    int    `json:"pending"`
}

// GetStatus returns the current connection state.
func (j *Journal) GetStatus() Status {
	s := Status{
		Connected:  j.Connected(),
		DocumentID: j.DocumentID(),
		Mirrored:   j.mirrored.Load(),
		Failed:     j.failed.Load(),
		Dropped:    j.dropped.Load(),
		Pending:    len(j.queue),
	}
	if s.DocumentID != "" {
		s.URL = DocURL(s.DocumentID)
	}
	if !s.Connected {
		s.AuthURL = j.AuthURL()
	}
	return s
}

// setToken installs tok and builds the Docs service on it.
func (j *Journal) setToken(tok *oauth2.Token) error {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpc.Client)
	client := j.config.Client(ctx, tok)

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if j.endpoint != "" {
		opts = append(opts, option.WithEndpoint(j.endpoint))
	}
	service, err := docs.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("journal: creating docs service: %w", err)
	}

	j.mu.Lock()
	j.token = tok
	j.service = service
	j.mu.Unlock()
	return nil
}

func (j *Journal) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(j.tokenPath)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (j *Journal) saveToken(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(j.tokenPath), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(j.tokenPath, data, 0o600)
}
