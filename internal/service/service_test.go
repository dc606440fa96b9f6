package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/chat-backend/internal/auth"
	"github.com/sakif/chat-backend/internal/model"
	"github.com/sakif/chat-backend/internal/repository"
	"github.com/sakif/chat-backend/internal/repository/jsonfile"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore opens a JSON store in a fresh temp directory.
func newTestStore(t *testing.T) *jsonfile.Store {
	t.Helper()
	store, err := jsonfile.Open(filepath.Join(t.TempDir(), "storage_data.json"), jsonfile.Options{Logger: testLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestIdentity(t *testing.T, store *jsonfile.Store) *IdentityService {
	t.Helper()
	return NewIdentityService(
		store.Users(),
		store.Logins(),
		auth.NewPasswordServiceForTest(bcrypt.MinCost),
		testLogger(),
	)
}

func newTestConversations(store *jsonfile.Store) *ConversationService {
	return NewConversationService(store.Chats(), store.Messages(), testLogger())
}

// fakeGenerator answers with reply, or fails with err when set.
type fakeGenerator struct {
	mu      sync.Mutex
	model   string
	reply   string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGenerator) Model() string { return f.model }
func (f *fakeGenerator) Close() error  { return nil }

// blockingGenerator waits for ctx to end.
type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
func (blockingGenerator) Model() string { return "slow:1b" }
func (blockingGenerator) Close() error  { return nil }

var errBoom = errors.New("boom")

var errDiskFull = errors.New("disk full")

// failingChats fails the next failUpdates calls to Update.
type failingChats struct {
	repository.ChatRepository
	failUpdates int
}

func (f *failingChats) Update(ctx context.Context, chat *model.Chat) error {
	if f.failUpdates > 0 {
		f.failUpdates--
		return errDiskFull
	}
	return f.ChatRepository.Update(ctx, chat)
}

// failingMessages fails every Delete.
type failingMessages struct {
	repository.MessageRepository
}

func (failingMessages) Delete(ctx context.Context, id string) error {
	return errDiskFull
}
