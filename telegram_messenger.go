package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

var errTelegramStopped = errors.New("telegram client stopped")

// telegramMessenger drives a Telegram user account through MTProto using a
// Telethon StringSession produced by the interactive login script.
type telegramMessenger struct {
	apiID         int
	apiHash       string
	sessionSecret string
}

func newTelegramMessenger(cfg Config) *telegramMessenger {
	return &telegramMessenger{
		apiID:         cfg.TelegramAPIID,
		apiHash:       cfg.TelegramAPIHash,
		sessionSecret: cfg.SessionSecret,
	}
}

func (m *telegramMessenger) Name() string { return backendTelegram }

func (m *telegramMessenger) Connect(ctx context.Context) (messengerSession, error) {
	secret := strings.TrimSpace(m.sessionSecret)
	if secret == "" {
		return nil, fmt.Errorf("%w: SESSION_SECRET is empty; run the setup flow to generate one", errSessionCredential)
	}
	data, err := session.TelethonSession(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: decode session string: %v", errSessionCredential, err)
	}
	storage := new(session.StorageMemory)
	loader := session.Loader{Storage: storage}
	if err := loader.Save(ctx, data); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	zl := logger.zap().Named("telegram")
	dispatcher := tg.NewUpdateDispatcher()
	gaps := updates.New(updates.Config{
		Handler: dispatcher,
		Logger:  zl.Named("updates"),
	})
	client := telegram.NewClient(m.apiID, m.apiHash, telegram.Options{
		SessionStorage: storage,
		UpdateHandler:  gaps,
		Logger:         zl,
	})

	runCtx, stop := context.WithCancel(context.Background())
	s := &telegramSession{
		client: client,
		api:    client.API(),
		sender: message.NewSender(client.API()),
		peers:  make(map[int64]int64, 64),
		stop:   stop,
		done:   make(chan struct{}),
	}
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		s.onMessage(ctx, e, u.Message)
		return nil
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		s.onMessage(ctx, e, u.Message)
		return nil
	})

	ready := make(chan error, 1)
	go func() {
		defer close(s.done)
		err := client.Run(runCtx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				if tgerr.Is(err, "AUTH_KEY_UNREGISTERED", "SESSION_REVOKED", "USER_DEACTIVATED") {
					return fmt.Errorf("%w: %v", errSessionCredential, err)
				}
				return fmt.Errorf("auth status: %w", err)
			}
			if !status.Authorized || status.User == nil {
				return fmt.Errorf("%w: session is not authorized", errSessionCredential)
			}
			s.setSelf(status.User)
			ready <- nil
			return gaps.Run(ctx, client.API(), status.User.ID, updates.AuthOptions{
				OnStart: func(context.Context) {
					logger.Debug("telegram updates started")
				},
			})
		})
		if err == nil {
			err = errTelegramStopped
		}
		s.mu.Lock()
		s.runErr = err
		s.mu.Unlock()
		select {
		case ready <- err:
		default:
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			<-s.done
			return nil, err
		}
		return s, nil
	case <-ctx.Done():
		s.stop()
		<-s.done
		return nil, ctx.Err()
	}
}

type telegramSession struct {
	client *telegram.Client
	api    *tg.Client
	sender *message.Sender

	handlers handlerSet

	mu     sync.Mutex
	self   accountInfo
	selfID int64
	peers  map[int64]int64 // user id -> access hash
	runErr error

	stop     context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func (s *telegramSession) setSelf(u *tg.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfID = u.ID
	s.self = accountInfo{
		ID:          strconv.FormatInt(u.ID, 10),
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
		Username:    u.Username,
	}
}

func (s *telegramSession) Self() accountInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

func (s *telegramSession) SelfPresence(ctx context.Context) (nativePresence, error) {
	me, err := s.client.Self(ctx)
	if err != nil {
		return nativeOther, err
	}
	status, _ := me.GetStatus()
	return telegramPresence(status), nil
}

// telegramPresence narrows a Telegram user status. "Recently" counts as
// offline; the coarser last-week/last-month buckets are ignored.
func telegramPresence(status tg.UserStatusClass) nativePresence {
	switch status.(type) {
	case *tg.UserStatusOnline:
		return nativeOnline
	case *tg.UserStatusOffline, *tg.UserStatusRecently:
		return nativeOffline
	default:
		return nativeOther
	}
}

func (s *telegramSession) UpdateDisplayName(ctx context.Context, name string) error {
	_, err := s.api.AccountUpdateProfile(ctx, &tg.AccountUpdateProfileRequest{FirstName: name})
	return err
}

func (s *telegramSession) SendMessage(ctx context.Context, recipientID, text string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(recipientID), 10, 64)
	if err != nil {
		return fmt.Errorf("recipient %q: %w", recipientID, err)
	}
	s.mu.Lock()
	hash, ok := s.peers[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("recipient %d: access hash unknown", id)
	}
	_, err = s.sender.To(&tg.InputPeerUser{UserID: id, AccessHash: hash}).Text(ctx, text)
	return err
}

func (s *telegramSession) Subscribe(kind eventKind, h messageHandler) {
	s.handlers.add(kind, h)
}

func (s *telegramSession) onMessage(ctx context.Context, e tg.Entities, mc tg.MessageClass) {
	msg, ok := mc.(*tg.Message)
	if !ok {
		return
	}
	s.mu.Lock()
	for id, u := range e.Users {
		if u != nil && u.AccessHash != 0 {
			s.peers[id] = u.AccessHash
		}
	}
	selfID := s.selfID
	s.mu.Unlock()

	ev, ok := telegramEvent(msg, selfID)
	if !ok {
		return
	}
	s.handlers.dispatch(ctx, ev)
}

// telegramEvent converts a new message update. Incoming messages outside
// one-to-one chats are dropped here.
func telegramEvent(msg *tg.Message, selfID int64) (messageEvent, bool) {
	ev := messageEvent{
		ChatID: telegramPeerKey(msg.PeerID),
		Text:   msg.Message,
		At:     time.Unix(int64(msg.Date), 0).UTC(),
	}
	peerUser, private := msg.PeerID.(*tg.PeerUser)
	ev.Private = private
	if msg.Out {
		ev.Kind = eventOutgoing
		ev.SenderID = strconv.FormatInt(selfID, 10)
		return ev, true
	}
	if !private {
		return ev, false
	}
	sender := peerUser.UserID
	if from, ok := msg.GetFromID(); ok {
		if u, ok := from.(*tg.PeerUser); ok {
			sender = u.UserID
		}
	}
	ev.Kind = eventIncomingPrivate
	ev.SenderID = strconv.FormatInt(sender, 10)
	return ev, true
}

func telegramPeerKey(peer tg.PeerClass) string {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return "user:" + strconv.FormatInt(p.UserID, 10)
	case *tg.PeerChat:
		return "chat:" + strconv.FormatInt(p.ChatID, 10)
	case *tg.PeerChannel:
		return "channel:" + strconv.FormatInt(p.ChannelID, 10)
	default:
		return ""
	}
}

func (s *telegramSession) RunUntilDisconnected(ctx context.Context) error {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.runErr
	case <-ctx.Done():
		s.Close()
		return ctx.Err()
	}
}

func (s *telegramSession) Close() error {
	s.stopOnce.Do(s.stop)
	<-s.done
	return nil
}
