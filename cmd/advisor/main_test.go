package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/fin-advisor/backend/internal/cache"
	"github.com/zhouzirui/fin-advisor/backend/internal/config"
	"github.com/zhouzirui/fin-advisor/backend/internal/handler"
	"github.com/zhouzirui/fin-advisor/backend/internal/model/profile"
	advisorService "github.com/zhouzirui/fin-advisor/backend/internal/service/advisor"
	chatService "github.com/zhouzirui/fin-advisor/backend/internal/service/chat"
	userService "github.com/zhouzirui/fin-advisor/backend/internal/service/user"
	"github.com/zhouzirui/fin-advisor/backend/internal/store/memory"
)

// newBackend serves the real router over a memory store with no chat model,
// so every reply is the fallback text.
func newBackend(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	advisorSvc, err := advisorService.NewService(ctx, nil, advisorService.Options{}, nil)
	require.NoError(t, err)

	repo := memory.New()
	users := userService.NewService(repo, nil)
	_, err = users.Register(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)

	srv := httptest.NewServer(handler.NewRouter(handler.Services{
		Profiles: profile.NewMemoryStore(profile.Seed()),
		Advisor:  advisorSvc,
		Chat:     chatService.NewService(repo, nil),
		Users:    users,
	}, nil))
	t.Cleanup(srv.Close)
	return srv, repo
}

func setFlags(t *testing.T, server, cache string) {
	t.Helper()
	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	serverURL = server
	cachePath = cache
	verbose = false
	t.Cleanup(func() {
		configPath, serverURL, cachePath = "", "", ""
	})
}

func execute(t *testing.T, in string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(in))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func TestGuestChatThenLogin(t *testing.T) {
	srv, repo := newBackend(t)
	setFlags(t, srv.URL, filepath.Join(t.TempDir(), "cache.json"))
	ctx := context.Background()

	out := execute(t, "How much should I save each month?\n/quit\n", "chat")
	assert.Contains(t, out, advisorService.FallbackMessage)
	assert.Contains(t, out, "Goodbye!")

	out = execute(t, "", "login", "alice@example.com", "password123")
	assert.Contains(t, out, "Signed in as alice@example.com. 2 earlier messages")

	summaries, err := repo.ListConversations(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].MessageCount)

	out = execute(t, "", "history")
	assert.Contains(t, out, summaries[0].ID)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	srv, _ := newBackend(t)
	setFlags(t, srv.URL, filepath.Join(t.TempDir(), "cache.json"))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"login", "alice", "wrong-password"})
	err := rootCmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestSlashCommands(t *testing.T) {
	srv, _ := newBackend(t)
	cfg := config.DefaultWidgetConfig()
	cfg.ServerURL = srv.URL
	cfg.CachePath = filepath.Join(t.TempDir(), "cache.json")

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.close()
	ctx := context.Background()
	var out bytes.Buffer

	quit, err := a.command(ctx, &out, "/lang hi")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Equal(t, "hi", a.language())

	var cached string
	ok, err := cache.Load(a.cache, cache.KeyLanguage, cache.KindLanguage, &cached)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hi", cached)

	_, err = a.command(ctx, &out, "/lang fr")
	require.Error(t, err)

	_, err = a.command(ctx, &out, "/login alice")
	require.Error(t, err)

	_, err = a.command(ctx, &out, "/login alice password123")
	require.NoError(t, err)
	assert.True(t, a.session.Auth().Authenticated)

	_, err = a.command(ctx, &out, "/reset")
	require.NoError(t, err)
	assert.False(t, a.session.Auth().Authenticated)
	assert.Equal(t, "en", a.language())

	quit, err = a.command(ctx, &out, "/quit")
	require.NoError(t, err)
	assert.True(t, quit)
}
