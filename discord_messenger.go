package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// discordMessenger manages one guild member (the owner) through a bot: the
// owner's guild nickname is the display name, and DMs to the bot are the
// private conversation channel.
type discordMessenger struct {
	token   string
	guildID string
	ownerID string
}

func newDiscordMessenger(cfg Config) *discordMessenger {
	return &discordMessenger{
		token:   strings.TrimSpace(cfg.DiscordBotToken),
		guildID: strings.TrimSpace(cfg.DiscordGuildID),
		ownerID: strings.TrimSpace(cfg.DiscordOwnerID),
	}
}

func (m *discordMessenger) Name() string { return backendDiscord }

func (m *discordMessenger) Connect(ctx context.Context) (messengerSession, error) {
	if m.token == "" {
		return nil, fmt.Errorf("%w: discord bot token is empty", errSessionCredential)
	}
	dg, err := discordgo.New("Bot " + m.token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errSessionCredential, err)
	}
	dg.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildPresences |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent)
	dg.StateEnabled = true
	dg.State.TrackPresences = true
	dg.State.TrackMembers = true

	s := &discordSession{
		dg:      dg,
		guildID: m.guildID,
		ownerID: m.ownerID,
		closed:  make(chan struct{}),
	}

	dg.AddHandler(func(_ *discordgo.Session, mc *discordgo.MessageCreate) {
		s.onMessageCreate(mc)
	})
	dg.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		logger.Warn("discord gateway disconnected")
	})
	dg.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		logger.Info("discord gateway resumed")
	})
	dg.AddHandler(func(ds *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		s.handleCommand(ds, i)
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := dg.Open(); err != nil {
		var rest *discordgo.RESTError
		if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == 401 {
			return nil, fmt.Errorf("%w: %v", errSessionCredential, err)
		}
		return nil, fmt.Errorf("open discord gateway: %w", err)
	}

	if err := s.registerCommands(); err != nil {
		logger.Warn("discord command registration failed", "error", err)
	}
	return s, nil
}

type discordSession struct {
	dg      *discordgo.Session
	guildID string
	ownerID string

	handlers handlerSet

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *discordSession) botID() string {
	if s.dg == nil || s.dg.State == nil || s.dg.State.User == nil {
		return ""
	}
	return s.dg.State.User.ID
}

func (s *discordSession) Self() accountInfo {
	info := accountInfo{ID: s.ownerID}
	if s.dg == nil || s.dg.State == nil {
		return info
	}
	if member, err := s.dg.State.Member(s.guildID, s.ownerID); err == nil && member != nil {
		info.DisplayName = member.Nick
		if member.User != nil {
			info.Username = member.User.Username
		}
	}
	return info
}

func (s *discordSession) SelfPresence(ctx context.Context) (nativePresence, error) {
	if err := ctx.Err(); err != nil {
		return nativeOther, err
	}
	if _, err := s.dg.State.Guild(s.guildID); err != nil {
		return nativeOther, fmt.Errorf("guild %s not loaded: %w", s.guildID, err)
	}
	p, err := s.dg.State.Presence(s.guildID, s.ownerID)
	if errors.Is(err, discordgo.ErrStateNotFound) {
		// Discord drops presences of members who go offline.
		return nativeOffline, nil
	}
	if err != nil {
		return nativeOther, err
	}
	return discordPresence(p.Status), nil
}

// discordPresence maps a gateway status. Do-not-disturb is neither online
// nor offline.
func discordPresence(status discordgo.Status) nativePresence {
	switch status {
	case discordgo.StatusOnline:
		return nativeOnline
	case discordgo.StatusIdle, discordgo.StatusOffline, discordgo.StatusInvisible:
		return nativeOffline
	default:
		return nativeOther
	}
}

func (s *discordSession) UpdateDisplayName(ctx context.Context, name string) error {
	return s.dg.GuildMemberNickname(s.guildID, s.ownerID, name, discordgo.WithContext(ctx))
}

func (s *discordSession) SendMessage(ctx context.Context, recipientID, text string) error {
	ch, err := s.dg.UserChannelCreate(recipientID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	_, err = s.dg.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{
		Content:         text,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	return err
}

func (s *discordSession) Subscribe(kind eventKind, h messageHandler) {
	s.handlers.add(kind, h)
}

func (s *discordSession) onMessageCreate(mc *discordgo.MessageCreate) {
	if mc == nil || mc.Message == nil {
		return
	}
	ev, ok := discordEvent(mc.Message, s.ownerID, s.botID())
	if !ok {
		return
	}
	s.handlers.dispatch(context.Background(), ev)
}

// discordEvent classifies a created message. Anything the owner writes
// counts as activity; only DMs from other humans are incoming.
func discordEvent(msg *discordgo.Message, ownerID, botID string) (messageEvent, bool) {
	if msg == nil || msg.Author == nil {
		return messageEvent{}, false
	}
	if botID != "" && msg.Author.ID == botID {
		return messageEvent{}, false
	}
	ev := messageEvent{
		ChatID:  msg.ChannelID,
		Private: msg.GuildID == "",
		Text:    msg.Content,
		At:      msg.Timestamp.UTC(),
	}
	if msg.Author.ID == ownerID {
		ev.Kind = eventOutgoing
		ev.SenderID = ownerID
		return ev, true
	}
	if !ev.Private || msg.Author.Bot {
		return ev, false
	}
	ev.Kind = eventIncomingPrivate
	ev.SenderID = msg.Author.ID
	return ev, true
}

func (s *discordSession) RunUntilDisconnected(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return nil
	}
}

func (s *discordSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.dg != nil {
			err = s.dg.Close()
		}
	})
	return err
}
