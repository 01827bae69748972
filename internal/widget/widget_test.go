package widget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhouzirui/fin-advisor/backend/internal/cache"
	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/fin-advisor/backend/internal/service/advisor"
)

const guestDomain = "guest.test"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type write struct {
	Email          string
	ConversationID string
	Text           string
	MessageID      string
}

type recordingWriter struct {
	mu     sync.Mutex
	writes []write
	fail   func(email string, msg chat.Message) bool
}

func (w *recordingWriter) SaveMessage(_ context.Context, email, conversationID string, msg chat.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil && w.fail(email, msg) {
		return errors.New("store unreachable")
	}
	w.writes = append(w.writes, write{Email: email, ConversationID: conversationID, Text: msg.Text, MessageID: msg.ID})
	return nil
}

func (w *recordingWriter) byEmail(email string) []write {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []write
	for _, wr := range w.writes {
		if wr.Email == email {
			out = append(out, wr)
		}
	}
	return out
}

type scriptedResponder struct {
	reply string
	err   error
}

func (r scriptedResponder) Reply(context.Context, []chat.Message, string) (string, error) {
	return r.reply, r.err
}

type fixture struct {
	writer     *recordingWriter
	store      *cache.MemoryStore
	reconciler *Reconciler
	session    *Session
}

func newFixture(t *testing.T, responder Responder) *fixture {
	t.Helper()
	f := &fixture{writer: &recordingWriter{}, store: cache.NewMemoryStore()}
	var err error
	f.reconciler, err = NewReconciler(f.writer, f.store, ReconcilerOptions{GuestDomain: guestDomain}, nil)
	require.NoError(t, err)
	f.session, err = NewSession(responder, f.reconciler, f.store, nil)
	require.NoError(t, err)
	return f
}

func TestGuestEmailIsDeterministic(t *testing.T) {
	assert.Equal(t, "guest+conv_c1@guest.test", GuestEmail("conv_c1", guestDomain))
	assert.Equal(t, GuestEmail("conv_c1", guestDomain), GuestEmail("conv_c1", guestDomain))
	assert.NotEqual(t, GuestEmail("conv_c1", guestDomain), GuestEmail("conv_c2", guestDomain))
}

func TestGuestSendWritesUnderGuestEmail(t *testing.T) {
	f := newFixture(t, scriptedResponder{reply: "A SIP of ₹35,000 a month gets you there in about 8 years."})
	ctx := context.Background()

	bot, err := f.session.Send(ctx, "I want to save 50 lakh for a house")
	require.NoError(t, err)
	assert.Equal(t, chat.SenderBot, bot.Sender)
	f.reconciler.Wait()

	conv := f.session.ConversationID()
	require.NotEmpty(t, conv)
	guest := f.writer.byEmail(GuestEmail(conv, guestDomain))
	require.Len(t, guest, 2)
	assert.Equal(t, "I want to save 50 lakh for a house", guest[0].Text)

	pending, err := loadPending(f.store)
	require.NoError(t, err)
	assert.Equal(t, conv, pending.ID)
	assert.Len(t, pending.Messages, 2)

	current, err := loadCurrent(f.store)
	require.NoError(t, err)
	assert.Len(t, current.Messages, 2)
}

func TestSignInReplaysEachBufferedMessageOnce(t *testing.T) {
	f := newFixture(t, scriptedResponder{reply: "Let's plan it."})
	ctx := context.Background()

	_, err := f.session.Send(ctx, "I want to save 50 lakh for a house")
	require.NoError(t, err)
	_, err = f.session.Send(ctx, "My horizon is 7 years")
	require.NoError(t, err)
	f.reconciler.Wait()

	result, err := f.session.SignIn(ctx, CurrentUser{Email: "Alice@Example.com"})
	require.NoError(t, err)
	f.reconciler.Wait()
	assert.Equal(t, 4, result.Replayed)
	assert.Zero(t, result.Failed)

	owned := f.writer.byEmail("alice@example.com")
	require.Len(t, owned, 4)
	ids := map[string]int{}
	for _, w := range owned {
		ids[w.MessageID]++
		assert.Equal(t, f.session.ConversationID(), w.ConversationID)
	}
	for id, n := range ids {
		assert.Equal(t, 1, n, "message %s written %d times", id, n)
	}

	// Guest copies stay where they were written.
	assert.Len(t, f.writer.byEmail(GuestEmail(f.session.ConversationID(), guestDomain)), 4)

	keys, err := f.store.Keys()
	require.NoError(t, err)
	assert.NotContains(t, keys, cache.KeyPendingConversation)
	assert.NotContains(t, keys, cache.KeyCurrentMessages)
	assert.Contains(t, keys, cache.KeyAuthenticated)
}

func TestAuthenticatedSendSkipsPendingBuffer(t *testing.T) {
	f := newFixture(t, scriptedResponder{reply: "ok"})
	ctx := context.Background()
	_, err := f.session.SignIn(ctx, CurrentUser{Email: "alice@example.com"})
	require.NoError(t, err)

	_, err = f.session.Send(ctx, "Is an ELSS fund worth it?")
	require.NoError(t, err)
	f.reconciler.Wait()

	assert.Len(t, f.writer.byEmail("alice@example.com"), 2)
	_, ok, err := f.store.Get(cache.KeyPendingConversation)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFailedWritesAreSkippedNotRetried(t *testing.T) {
	f := newFixture(t, scriptedResponder{reply: "ok"})
	f.writer.fail = func(string, chat.Message) bool { return true }
	ctx := context.Background()

	bot, err := f.session.Send(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", bot.Text)
	f.reconciler.Wait()
	assert.Empty(t, f.writer.byEmail(GuestEmail(f.session.ConversationID(), guestDomain)))

	result, err := f.session.SignIn(ctx, CurrentUser{Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Zero(t, result.Replayed)

	// Buffers are cleared even though every replay failed.
	_, ok, err := f.store.Get(cache.KeyPendingConversation)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthenticatedWriteFailureIsBufferedForNextSignIn(t *testing.T) {
	f := newFixture(t, scriptedResponder{reply: "ok"})
	ctx := context.Background()
	_, err := f.session.SignIn(ctx, CurrentUser{Email: "alice@example.com"})
	require.NoError(t, err)

	f.writer.mu.Lock()
	f.writer.fail = func(_ string, msg chat.Message) bool { return msg.Sender == chat.SenderUser }
	f.writer.mu.Unlock()

	_, err = f.session.Send(ctx, "Should I prepay my home loan?")
	require.NoError(t, err)
	f.reconciler.Wait()

	pending, err := loadPending(f.store)
	require.NoError(t, err)
	require.Len(t, pending.Messages, 1)
	assert.Equal(t, chat.SenderUser, pending.Messages[0].Sender)
}

func TestResponderFailureYieldsFallback(t *testing.T) {
	for name, r := range map[string]scriptedResponder{
		"error": {err: errors.New("503")},
		"empty": {reply: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, r)
			bot, err := f.session.Send(context.Background(), "hello")
			require.NoError(t, err)
			f.reconciler.Wait()
			assert.Equal(t, advisor.FallbackMessage, bot.Text)
			assert.Len(t, f.session.Messages(), 2)
		})
	}
}

func TestSendRejectsBlankText(t *testing.T) {
	f := newFixture(t, scriptedResponder{reply: "ok"})
	_, err := f.session.Send(context.Background(), "  ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, f.session.ConversationID())
}

func TestResetIsIdempotent(t *testing.T) {
	f := newFixture(t, scriptedResponder{reply: "ok"})
	ctx := context.Background()
	require.NoError(t, f.store.Set(cache.KeyDemoUsers, `[]`))
	_, err := f.session.Send(ctx, "hello")
	require.NoError(t, err)
	_, err = f.session.SignIn(ctx, CurrentUser{Email: "alice@example.com"})
	require.NoError(t, err)
	f.reconciler.Wait()

	for i := 0; i < 2; i++ {
		require.NoError(t, f.session.Reset())
		keys, err := f.store.Keys()
		require.NoError(t, err)
		assert.Empty(t, keys)
		assert.Empty(t, f.session.Messages())
		assert.Empty(t, f.session.ConversationID())
		assert.False(t, f.session.Auth().Authenticated)
	}
}

func TestSessionRestoresFromCache(t *testing.T) {
	f := newFixture(t, scriptedResponder{reply: "ok"})
	ctx := context.Background()
	_, err := f.session.Send(ctx, "hello")
	require.NoError(t, err)
	f.reconciler.Wait()

	restored, err := NewSession(scriptedResponder{}, f.reconciler, f.store, nil)
	require.NoError(t, err)
	assert.Equal(t, f.session.ConversationID(), restored.ConversationID())
	assert.Len(t, restored.Messages(), 2)
}

func TestRefreshPicksUpSignInFromAnotherTab(t *testing.T) {
	f := newFixture(t, scriptedResponder{reply: "ok"})
	ctx := context.Background()
	_, err := f.session.Send(ctx, "hello")
	require.NoError(t, err)
	f.reconciler.Wait()

	// Another tab signs in by writing the shared cache.
	require.NoError(t, cache.Put(f.store, cache.KeyAuthenticated, cache.KindAuth, AuthState{Authenticated: true, Email: "alice@example.com"}))

	changed, err := f.session.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "alice@example.com", f.session.Auth().Email)
	assert.Len(t, f.writer.byEmail("alice@example.com"), 2)

	changed, err = f.session.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestWatchRefreshesOnAuthChange(t *testing.T) {
	f := newFixture(t, scriptedResponder{reply: "ok"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan AuthState, 16)
	done := make(chan error, 1)
	go func() {
		done <- f.session.Watch(ctx, f.store, func(a AuthState) {
			select {
			case changes <- a:
			default:
			}
		})
	}()

	// Writes made before the watcher subscribes are missed, so keep toggling.
	require.Eventually(t, func() bool {
		_ = f.store.Remove(cache.KeyAuthenticated)
		_ = cache.Put(f.store, cache.KeyAuthenticated, cache.KindAuth, AuthState{Authenticated: true, Email: "alice@example.com"})
		for {
			select {
			case a := <-changes:
				if a.Email == "alice@example.com" {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestPendingBufferKeepsLatestConversation(t *testing.T) {
	f := newFixture(t, scriptedResponder{})
	f.reconciler.bufferPending("conv_a", chat.NewMessage("a", chat.SenderUser))
	f.reconciler.bufferPending("conv_b", chat.NewMessage("b", chat.SenderUser))

	pending, err := loadPending(f.store)
	require.NoError(t, err)
	assert.Equal(t, "conv_b", pending.ID)
	require.Len(t, pending.Messages, 1)
	assert.Equal(t, "b", pending.Messages[0].Text)
}

func TestNewReconcilerValidates(t *testing.T) {
	_, err := NewReconciler(&recordingWriter{}, cache.NewMemoryStore(), ReconcilerOptions{}, nil)
	require.Error(t, err)
	_, err = NewReconciler(nil, cache.NewMemoryStore(), ReconcilerOptions{GuestDomain: guestDomain}, nil)
	require.Error(t, err)
}

// gatedWriter holds every write until release is closed.
type gatedWriter struct {
	recordingWriter
	entered chan struct{}
	release chan struct{}
}

func (w *gatedWriter) SaveMessage(ctx context.Context, email, conversationID string, msg chat.Message) error {
	select {
	case w.entered <- struct{}{}:
	default:
	}
	<-w.release
	return w.recordingWriter.SaveMessage(ctx, email, conversationID, msg)
}

func TestReplayDoesNotBlockBuffering(t *testing.T) {
	store := cache.NewMemoryStore()
	w := &gatedWriter{entered: make(chan struct{}, 1), release: make(chan struct{})}
	r, err := NewReconciler(w, store, ReconcilerOptions{GuestDomain: guestDomain}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	first := chat.NewMessage("Where should my bonus go?", chat.SenderUser)
	r.bufferPending("conv_a", first)

	done := make(chan ReconcileResult, 1)
	go func() {
		res, err := r.Reconcile(ctx, "alice@example.com")
		assert.NoError(t, err)
		done <- res
	}()

	select {
	case <-w.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("replay never started")
	}

	// A guest message sent while the replay is still writing.
	second := chat.NewMessage("And my emergency fund?", chat.SenderUser)
	buffered := make(chan struct{})
	go func() {
		r.Persist(ctx, AuthState{}, "conv_a", second)
		close(buffered)
	}()
	select {
	case <-buffered:
	case <-time.After(2 * time.Second):
		close(w.release)
		t.Fatal("buffering waited on the replay writes")
	}

	close(w.release)
	res := <-done
	r.Wait()
	assert.Equal(t, 1, res.Replayed)

	pending, err := loadPending(store)
	require.NoError(t, err)
	require.Len(t, pending.Messages, 1)
	assert.Equal(t, second.ID, pending.Messages[0].ID)
}

// signInOnWrite starts a sign-in the first time the transcript is cached,
// i.e. while a Send is between recording a message and writing it.
type signInOnWrite struct {
	*cache.MemoryStore
	once    sync.Once
	trigger func()
}

func (s *signInOnWrite) Set(key, value string) error {
	if err := s.MemoryStore.Set(key, value); err != nil {
		return err
	}
	if key == cache.KeyCurrentMessages && s.trigger != nil {
		s.once.Do(s.trigger)
	}
	return nil
}

func TestSignInDuringSendLeavesNoStaleGuestBuffer(t *testing.T) {
	writer := &recordingWriter{}
	store := &signInOnWrite{MemoryStore: cache.NewMemoryStore()}
	r, err := NewReconciler(writer, store, ReconcilerOptions{GuestDomain: guestDomain}, nil)
	require.NoError(t, err)
	session, err := NewSession(scriptedResponder{reply: "Start with a liquid fund."}, r, store, nil)
	require.NoError(t, err)
	ctx := context.Background()

	signedIn := make(chan error, 1)
	store.trigger = func() {
		go func() {
			_, err := session.SignIn(ctx, CurrentUser{Email: "alice@example.com"})
			signedIn <- err
		}()
	}

	bot, err := session.Send(ctx, "Where do I park six months of expenses?")
	require.NoError(t, err)
	require.NoError(t, <-signedIn)
	r.Wait()

	_, ok, err := store.Get(cache.KeyPendingConversation)
	require.NoError(t, err)
	assert.False(t, ok, "guest message left in the pending buffer after sign-in")

	ids := map[string]bool{}
	for _, w := range writer.byEmail("alice@example.com") {
		ids[w.MessageID] = true
	}
	assert.True(t, ids[bot.ID])
	assert.Len(t, ids, 2)
}
