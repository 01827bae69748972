// Package widget implements the chat widget engine: the composer session, the
// persistence reconciler and their use of the local cache.
package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/fin-advisor/backend/internal/cache"
	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
)

// DefaultWriteTimeout bounds one background message write.
const DefaultWriteTimeout = 10 * time.Second

// MessageWriter stores one message under an owner email.
type MessageWriter interface {
	SaveMessage(ctx context.Context, email, conversationID string, msg chat.Message) error
}

// GuestEmail is the stable owner address for an unauthenticated conversation.
func GuestEmail(conversationID, domain string) string {
	return "guest+" + conversationID + "@" + domain
}

// ReconcileResult counts the outcome of a replay.
type ReconcileResult struct {
	Replayed int
	Failed   int
}

// ReconcilerOptions tune a Reconciler.
type ReconcilerOptions struct {
	GuestDomain  string
	WriteTimeout time.Duration
}

// Reconciler routes each message to its durable owner and replays the local
// buffers once a real identity is known. Writes are best-effort: a failure is
// logged and skipped, never retried.
type Reconciler struct {
	writer MessageWriter
	store  cache.Store
	opts   ReconcilerOptions
	logger *zap.Logger

	// mu serialises read-modify-write of the cached buffers.
	mu sync.Mutex
	wg sync.WaitGroup
}

// NewReconciler builds a Reconciler.
func NewReconciler(writer MessageWriter, store cache.Store, opts ReconcilerOptions, logger *zap.Logger) (*Reconciler, error) {
	if writer == nil || store == nil {
		return nil, errors.New("reconciler requires a writer and a cache store")
	}
	if strings.TrimSpace(opts.GuestDomain) == "" {
		return nil, errors.New("guest email domain is required")
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{writer: writer, store: store, opts: opts, logger: logger.Named("reconciler")}, nil
}

// Owner returns the email a message is written under for auth.
func (r *Reconciler) Owner(auth AuthState, conversationID string) string {
	if auth.Authenticated && auth.Email != "" {
		return auth.Email
	}
	return GuestEmail(conversationID, r.opts.GuestDomain)
}

// Persist writes msg in the background. Guest messages are also appended to
// the pending buffer so they can be replayed after sign-in. Persist never
// blocks on the network.
func (r *Reconciler) Persist(ctx context.Context, auth AuthState, conversationID string, msg chat.Message) {
	if isGuest(auth) {
		r.bufferPending(conversationID, msg)
	}
	r.write(ctx, auth, conversationID, msg)
}

func isGuest(auth AuthState) bool {
	return !auth.Authenticated || auth.Email == ""
}

// write stores msg under its owner in a tracked goroutine. Guest messages
// must already be in the pending buffer.
func (r *Reconciler) write(ctx context.Context, auth AuthState, conversationID string, msg chat.Message) {
	owner := r.Owner(auth, conversationID)
	guest := isGuest(auth)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.WriteTimeout)
		defer cancel()

		if err := r.writer.SaveMessage(writeCtx, owner, conversationID, msg); err != nil {
			r.logger.Warn("message write failed, skipping",
				zap.String("owner", owner),
				zap.String("conversation", conversationID),
				zap.String("message", msg.ID),
				zap.Error(err))
			if !guest {
				// Kept locally so the next sign-in replays it.
				r.bufferPending(conversationID, msg)
			}
			return
		}
		r.logger.Debug("message written", zap.String("owner", owner), zap.String("message", msg.ID))
	}()
}

func (r *Reconciler) bufferPending(conversationID string, msg chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending, err := loadPending(r.store)
	if err != nil {
		r.logger.Warn("pending buffer unreadable, starting a new one", zap.Error(err))
		pending = Conversation{}
	}
	if pending.ID != "" && pending.ID != conversationID {
		// Only one conversation is pending at a time; the newer one wins.
		r.logger.Info("replacing pending conversation",
			zap.String("previous", pending.ID), zap.String("conversation", conversationID))
		pending = Conversation{}
	}
	pending.ID = conversationID
	pending.Messages = upsertMessage(pending.Messages, msg)

	if err := savePending(r.store, pending); err != nil {
		r.logger.Warn("failed to buffer pending message", zap.String("message", msg.ID), zap.Error(err))
	}
}

// Reconcile replays the pending conversation and the current messages under
// email, then drops the replayed messages from both buffers. A message present
// in both buffers is written once. Failed writes are logged and dropped too.
// The buffers are not locked during the writes, so messages buffered
// meanwhile survive for the next sign-in.
func (r *Reconciler) Reconcile(ctx context.Context, email string) (ReconcileResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ReconcileResult{}, errors.New("email is required to reconcile")
	}

	r.mu.Lock()
	pending, err := loadPending(r.store)
	if err != nil {
		r.logger.Warn("pending buffer unreadable, skipping it", zap.Error(err))
	}
	current, err := loadCurrent(r.store)
	if err != nil {
		r.logger.Warn("current messages unreadable, skipping them", zap.Error(err))
	}
	r.mu.Unlock()

	var result ReconcileResult
	attempted := make(map[string]struct{})
	for _, buf := range []Conversation{pending, current} {
		if buf.ID == "" {
			continue
		}
		for _, msg := range buf.Messages {
			key := bufferKey(buf.ID, msg.ID)
			if _, dup := attempted[key]; dup {
				continue
			}
			attempted[key] = struct{}{}

			writeCtx, cancel := context.WithTimeout(ctx, r.opts.WriteTimeout)
			err := r.writer.SaveMessage(writeCtx, email, buf.ID, msg)
			cancel()
			if err != nil {
				result.Failed++
				r.logger.Warn("replay write failed, skipping",
					zap.String("owner", email),
					zap.String("conversation", buf.ID),
					zap.String("message", msg.ID),
					zap.Error(err))
				continue
			}
			result.Replayed++
		}
	}

	r.mu.Lock()
	clearErr := errors.Join(
		r.prune(cache.KeyPendingConversation, loadPending, savePending, attempted),
		r.prune(cache.KeyCurrentMessages, loadCurrent, saveCurrent, attempted),
	)
	r.mu.Unlock()

	r.logger.Info("reconciled local buffers",
		zap.String("owner", email),
		zap.Int("replayed", result.Replayed),
		zap.Int("failed", result.Failed))
	return result, clearErr
}

func bufferKey(conversationID, messageID string) string {
	return conversationID + "/" + messageID
}

// prune removes the attempted messages from one buffer and deletes the key
// once the buffer is empty. Callers hold r.mu.
func (r *Reconciler) prune(
	key string,
	load func(cache.Store) (Conversation, error),
	save func(cache.Store, Conversation) error,
	attempted map[string]struct{},
) error {
	buf, err := load(r.store)
	if err != nil {
		if err := r.store.Remove(key); err != nil {
			return fmt.Errorf("clear %s: %w", key, err)
		}
		return nil
	}

	kept := make([]chat.Message, 0, len(buf.Messages))
	for _, msg := range buf.Messages {
		if _, done := attempted[bufferKey(buf.ID, msg.ID)]; !done {
			kept = append(kept, msg)
		}
	}
	if len(kept) == 0 {
		if err := r.store.Remove(key); err != nil {
			return fmt.Errorf("clear %s: %w", key, err)
		}
		return nil
	}
	if len(kept) == len(buf.Messages) {
		return nil
	}
	buf.Messages = kept
	if err := save(r.store, buf); err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	return nil
}

// Wait blocks until every background write has finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}
