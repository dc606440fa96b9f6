// Package jsonfile implements the repository contracts on top of a single JSON
// document holding four collections: users, logins, chats and messages.
//
// The whole document lives in memory. Every mutation is applied under the store
// mutex and immediately flushed to disk; if the flush fails the in-memory
// collections are rolled back so memory and disk never diverge.
//
// Lifecycle:
//
//	store, err := jsonfile.Open("storage_data.json", jsonfile.Options{Logger: logger})
//	if err != nil { ... }
//	defer store.Close()
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sakif/chat-backend/internal/model"
	"github.com/sakif/chat-backend/internal/repository"
)

var (
	// ErrCorrupt is returned by Open when the file exists but is not a valid document.
	ErrCorrupt = errors.New("jsonfile: storage file is corrupt")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("jsonfile: store is closed")
)

var _ repository.Store = (*Store)(nil)

// Document is the persisted layout.
type Document struct {
	Users    []model.User       `json:"users"`
	Logins   []model.LoginEvent `json:"logins"`
	Chats    []model.Chat       `json:"chats"`
	Messages []model.Message    `json:"messages"`
}

func emptyDocument() Document {
	return Document{
		Users:    []model.User{},
		Logins:   []model.LoginEvent{},
		Chats:    []model.Chat{},
		Messages: []model.Message{},
	}
}

// normalize replaces missing collections so the file always serializes as arrays.
func (d *Document) normalize() {
	if d.Users == nil {
		d.Users = []model.User{}
	}
	if d.Logins == nil {
		d.Logins = []model.LoginEvent{}
	}
	if d.Chats == nil {
		d.Chats = []model.Chat{}
	}
	if d.Messages == nil {
		d.Messages = []model.Message{}
	}
}

// clone copies the four collections. Records are values, so a copy of each
// slice is enough to restore the document after a failed mutation.
func (d *Document) clone() Document {
	return Document{
		Users:    append([]model.User(nil), d.Users...),
		Logins:   append([]model.LoginEvent(nil), d.Logins...),
		Chats:    append([]model.Chat(nil), d.Chats...),
		Messages: append([]model.Message(nil), d.Messages...),
	}
}

// Options configures Open.
type Options struct {
	// ResetOnCorrupt makes Open move a corrupt file aside and start with an
	// empty document instead of returning ErrCorrupt.
	ResetOnCorrupt bool
	Logger         *slog.Logger
}

// Store is the JSON document store. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	path   string
	doc    Document
	closed bool
	logger *slog.Logger

	// writeFile persists the serialized document; tests swap it to simulate disk failures.
	writeFile func(path string, data []byte) error
}

// Open loads the document at path. A missing file yields an empty document;
// its parent directory is created so the first save succeeds.
func Open(path string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("jsonfile: creating directory %s: %w", dir, err)
		}
	}

	doc, err := load(path)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) || !opts.ResetOnCorrupt {
			return nil, err
		}

		backup := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if renameErr := os.Rename(path, backup); renameErr != nil {
			return nil, fmt.Errorf("jsonfile: moving corrupt file aside: %w", renameErr)
		}
		logger.Warn("storage file was corrupt, starting with an empty document",
			slog.String("path", path),
			slog.String("backup", backup),
			slog.String("error", err.Error()),
		)
		doc = emptyDocument()
	}

	return &Store{
		path:      path,
		doc:       doc,
		logger:    logger,
		writeFile: writeFileAtomic,
	}, nil
}

func load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return emptyDocument(), nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("jsonfile: reading %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	doc.normalize()
	return doc, nil
}

func (s *Store) save() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&s.doc); err != nil {
		return fmt.Errorf("jsonfile: encoding document: %w", err)
	}
	if err := s.writeFile(s.path, buf.Bytes()); err != nil {
		return fmt.Errorf("jsonfile: writing %s: %w", s.path, err)
	}
	return nil
}

// writeFileAtomic writes to a temp file in the target directory and renames it
// over path, so readers never observe a half-written document.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// read runs fn with shared access to the document. fn must not retain
// references into the document.
func (s *Store) read(fn func(doc *Document) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(&s.doc)
}

// mutate runs fn with exclusive access and flushes the result. If fn or the
// flush fails, the document is restored to its state before the call.
func (s *Store) mutate(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	backup := s.doc.clone()
	if err := fn(&s.doc); err != nil {
		s.doc = backup
		return err
	}
	if err := s.save(); err != nil {
		s.doc = backup
		s.logger.Error("failed to persist document, mutation rolled back",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// Snapshot returns a copy of the current document.
func (s *Store) Snapshot() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.clone()
}

// Close flushes the document one last time. Further calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.save()
}

func (s *Store) Users() repository.UserRepository       { return &UserStore{s: s} }
func (s *Store) Logins() repository.LoginRepository     { return &LoginStore{s: s} }
func (s *Store) Chats() repository.ChatRepository       { return &ChatStore{s: s} }
func (s *Store) Messages() repository.MessageRepository { return &MessageStore{s: s} }
