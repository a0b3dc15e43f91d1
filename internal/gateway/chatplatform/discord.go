package chatplatform

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/microcosm-cc/bluemonday"
)

// sanitizePolicy strips any HTML a user's text might carry before it is
// ever echoed back into a reply (capture menus and command echoes both
// round-trip user-supplied terminal titles and refs).
var sanitizePolicy = bluemonday.StrictPolicy()

// Discord is a Platform backed by a real Discord bot session.
type Discord struct {
	session *discordgo.Session
	inbound chan InboundMessage
}

// NewDiscord constructs a Discord platform from a bot token. The session
// is not opened until Run is called.
func NewDiscord(token string) (*Discord, error) {
	sess, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("chatplatform: discord session: %w", err)
	}
	sess.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent

	d := &Discord{session: sess, inbound: make(chan InboundMessage, 64)}
	sess.AddHandler(d.onMessageCreate)
	return d, nil
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	msg := InboundMessage{
		MessageID: m.ID,
		ChatID:    m.ChannelID,
		UserID:    m.Author.ID,
		Text:      sanitizePolicy.Sanitize(m.Content),
	}
	select {
	case d.inbound <- msg:
	default:
		// inbound channel full; drop rather than block the discordgo
		// event goroutine.
	}
}

func (d *Discord) Inbound() <-chan InboundMessage {
	return d.inbound
}

func (d *Discord) Run(ctx context.Context) error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("chatplatform: discord open: %w", err)
	}
	defer d.session.Close()
	<-ctx.Done()
	return ctx.Err()
}

func (d *Discord) Send(ctx context.Context, chatID, body string) (string, error) {
	msg, err := d.session.ChannelMessageSend(chatID, body, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("chatplatform: discord send: %w", err)
	}
	return msg.ID, nil
}

func (d *Discord) Delete(ctx context.Context, chatID, messageID string) error {
	err := d.session.ChannelMessageDelete(chatID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		if restErr, ok := err.(*discordgo.RESTError); ok && restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMessage {
			return nil
		}
	}
	return err
}

func (d *Discord) React(ctx context.Context, chatID, messageID, emoji string) error {
	return d.session.MessageReactionAdd(chatID, messageID, emoji, discordgo.WithContext(ctx))
}

var _ Platform = (*Discord)(nil)
