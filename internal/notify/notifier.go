// Package notify posts new-campaign announcements to a Discord channel.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/campaign-notifier/internal/config"
)

// EmbedColor is the green used for announcements.
const EmbedColor = 0x2ecc71

// Session is the part of *discordgo.Session the notifier uses.
type Session interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier handles notification operations
type Notifier struct {
	session      Session
	channelID    string
	roleMention  string
	linkTemplate string
	spaceSlug    string
	log          logrus.FieldLogger
}

// New creates a new notifier
func New(session Session, cfg *config.Config, log logrus.FieldLogger) *Notifier {
	return &Notifier{
		session:      session,
		channelID:    cfg.DiscordChannelID,
		roleMention:  cfg.DiscordRoleMention,
		linkTemplate: cfg.CampaignURLTemplate,
		spaceSlug:    cfg.CampaignSpaceSlug,
		log:          log,
	}
}

// Link returns the deep link for a campaign.
func (n *Notifier) Link(campaignID string) string {
	return strings.NewReplacer("{space}", n.spaceSlug, "{id}", campaignID).Replace(n.linkTemplate)
}

// Notify announces a new campaign. Failures are logged and returned; nothing
// is sent when the channel cannot be resolved.
func (n *Notifier) Notify(ctx context.Context, campaignName, campaignID string) error {
	log := n.log.WithFields(logrus.Fields{"campaign_id": campaignID, "channel_id": n.channelID})

	if _, err := n.session.Channel(n.channelID, discordgo.WithContext(ctx)); err != nil {
		log.WithError(err).Error("❌ Channel not found")
		return fmt.Errorf("resolve channel %s: %w", n.channelID, err)
	}

	if _, err := n.session.ChannelMessageSendComplex(n.channelID, n.Message(campaignName, campaignID), discordgo.WithContext(ctx)); err != nil {
		log.WithError(err).Error("❌ Error sending Discord notification")
		return fmt.Errorf("send notification for %s: %w", campaignID, err)
	}

	log.WithField("campaign_name", campaignName).Info("✅ Sent Discord notification")
	return nil
}

// Message builds the announcement for a campaign.
func (n *Notifier) Message(campaignName, campaignID string) *discordgo.MessageSend {
	name := strings.TrimSpace(campaignName)
	if name == "" {
		name = campaignID
	}
	return &discordgo.MessageSend{
		Content: n.roleMention,
		Embeds: []*discordgo.MessageEmbed{{
			Description: "New campaign is live:",
			Color:       EmbedColor,
			Fields: []*discordgo.MessageEmbedField{{
				Name:   name,
				Value:  fmt.Sprintf("[Campaign Link](%s)", n.Link(campaignID)),
				Inline: false,
			}},
		}},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeRoles},
		},
	}
}
