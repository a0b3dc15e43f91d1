package chatplatform

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDiscord() *Discord {
	return &Discord{inbound: make(chan InboundMessage, 4)}
}

func TestOnMessageCreateSkipsBotAuthors(t *testing.T) {
	d := newTestDiscord()
	d.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m1", ChannelID: "c1", Author: &discordgo.User{ID: "u1", Bot: true}, Content: "hi",
	}})

	select {
	case msg := <-d.inbound:
		t.Fatalf("bot author message should have been dropped, got %+v", msg)
	default:
	}
}

func TestOnMessageCreateSkipsNilAuthor(t *testing.T) {
	d := newTestDiscord()
	assert.NotPanics(t, func() {
		d.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
			ID: "m1", ChannelID: "c1", Author: nil, Content: "hi",
		}})
	})
}

func TestOnMessageCreateForwardsHumanMessages(t *testing.T) {
	d := newTestDiscord()
	d.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m1", ChannelID: "c1", Author: &discordgo.User{ID: "u1"}, Content: "hello",
	}})

	select {
	case msg := <-d.inbound:
		assert.Equal(t, "m1", msg.MessageID)
		assert.Equal(t, "c1", msg.ChatID)
		assert.Equal(t, "u1", msg.UserID)
		assert.Equal(t, "hello", msg.Text)
	default:
		t.Fatal("expected a forwarded message")
	}
}

func TestOnMessageCreateSanitizesHTML(t *testing.T) {
	d := newTestDiscord()
	d.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m1", ChannelID: "c1", Author: &discordgo.User{ID: "u1"},
		Content: "<script>alert(1)</script>hello",
	}})

	msg := <-d.inbound
	assert.NotContains(t, msg.Text, "<script>")
	assert.Contains(t, msg.Text, "hello")
}

func TestOnMessageCreateDropsWhenChannelFull(t *testing.T) {
	d := &Discord{inbound: make(chan InboundMessage, 1)}
	d.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m1", ChannelID: "c1", Author: &discordgo.User{ID: "u1"}, Content: "first",
	}})
	assert.NotPanics(t, func() {
		d.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
			ID: "m2", ChannelID: "c1", Author: &discordgo.User{ID: "u1"}, Content: "second",
		}})
	})

	require.Len(t, d.inbound, 1)
	first := <-d.inbound
	assert.Equal(t, "m1", first.MessageID, "the channel was full, so the second message must have been dropped")
}

func TestInboundReturnsTheSameChannel(t *testing.T) {
	d := newTestDiscord()
	assert.NotNil(t, d.Inbound())
	assert.Equal(t, (<-chan InboundMessage)(d.inbound), d.Inbound())
}
