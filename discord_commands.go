package main

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

func (s *discordSession) registerCommands() error {
	appID := s.botID()
	if appID == "" || s.guildID == "" {
		return fmt.Errorf("missing appID or guildID")
	}
	cmds := []*discordgo.ApplicationCommand{
		{
			Name:        "presence",
			Description: "Show the presence goPresence sees for the owner",
		},
	}
	_, err := s.dg.ApplicationCommandBulkOverwrite(appID, s.guildID, cmds)
	return err
}

func (s *discordSession) handleCommand(ds *discordgo.Session, i *discordgo.InteractionCreate) {
	if ds == nil || i == nil {
		return
	}
	if strings.TrimSpace(i.GuildID) != "" && i.GuildID != s.guildID {
		return
	}
	if i.ApplicationCommandData().Name != "presence" {
		return
	}
	userID := ""
	if i.Member != nil && i.Member.User != nil {
		userID = i.Member.User.ID
	} else if i.User != nil {
		userID = i.User.ID
	}
	msg := "Only the managed account can use this command."
	if userID == s.ownerID {
		msg = s.presenceSummary()
	}
	if err := ds.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}); err != nil {
		logger.Warn("discord command response failed", "error", err)
	}
}

func (s *discordSession) presenceSummary() string {
	status := "unknown"
	if p, err := s.dg.State.Presence(s.guildID, s.ownerID); err == nil && p != nil {
		status = string(p.Status)
	} else if err == discordgo.ErrStateNotFound {
		status = string(discordgo.StatusOffline)
	}
	nick := s.Self().DisplayName
	if nick == "" {
		nick = "(none)"
	}
	return fmt.Sprintf("Gateway status: %s\nNickname: %s", status, nick)
}
