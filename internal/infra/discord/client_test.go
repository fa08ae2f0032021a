package discord

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeAt(t *testing.T) {
	at := time.UnixMilli(discordEpochMillis + 1000)
	id := SnowflakeAt(at)
	assert.Equal(t, "4194304000", id)

	ts, err := discordgo.SnowflakeTimestamp(id)
	require.NoError(t, err)
	assert.Equal(t, at.UnixMilli(), ts.UnixMilli())

	assert.Equal(t, "0", SnowflakeAt(time.Unix(0, 0)))
}

func TestSnowflakeLess(t *testing.T) {
	assert.True(t, snowflakeLess("999", "1000"))
	assert.False(t, snowflakeLess("1000", "999"))
}

func TestJumpURL(t *testing.T) {
	assert.Equal(t, "https://discord.com/channels/1/2/3", JumpURL("1", "2", "3"))
	assert.Equal(t, "https://discord.com/channels/@me/2/3", JumpURL("", "2", "3"))
	assert.Equal(t, "https://discord.com/channels/1/2/3", (&Message{GuildID: "1", ChannelID: "2", ID: "3"}).JumpURL())
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "alice", DisplayName(&discordgo.User{Username: "alice", Discriminator: "0"}))
	assert.Equal(t, "bob#1234", DisplayName(&discordgo.User{Username: "bob", Discriminator: "1234"}))
}

func TestBuildEmbed(t *testing.T) {
	at := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	embed := buildEmbed(&Embed{
		Title:       "Daily Feedback Summary",
		Description: strings.Repeat("x", maxDescription+10),
		Footer:      "Analyzed 3 messages",
		Timestamp:   at,
	})

	assert.Equal(t, "Daily Feedback Summary", embed.Title)
	assert.Len(t, []rune(embed.Description), maxDescription)
	assert.True(t, strings.HasSuffix(embed.Description, "..."))
	assert.Equal(t, embedColor, embed.Color)
	assert.Equal(t, "2026-01-02T08:00:00Z", embed.Timestamp)
	require.NotNil(t, embed.Footer)
	assert.Equal(t, "Analyzed 3 messages", embed.Footer.Text)

	bare := buildEmbed(&Embed{Title: "t", Description: "short"})
	assert.Nil(t, bare.Footer)
	assert.Empty(t, bare.Timestamp)
	assert.Equal(t, "short", bare.Description)
}

func TestChannelHistory_GuildFromChannel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/channels/222", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"222","guild_id":"111","name":"feedback","type":0}`))
	})
	mux.HandleFunc("/channels/222/messages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// history payloads have no guild_id
		w.Write([]byte(`[{"id":"1300000000000000000","channel_id":"222","content":"cora crashes",` +
			`"timestamp":"2026-10-01T12:00:00Z","author":{"id":"9","username":"alice","discriminator":"0"}}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	orig := discordgo.EndpointChannels
	discordgo.EndpointChannels = srv.URL + "/channels/"
	t.Cleanup(func() { discordgo.EndpointChannels = orig })

	client, err := NewClient("test", zerolog.Nop())
	require.NoError(t, err)

	msgs, err := client.ChannelHistory(context.Background(), "222", time.Now().Add(-time.Hour), 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, "feedback", msgs[0].ChannelName)
	assert.Equal(t, "111", msgs[0].GuildID)
	assert.Equal(t, "https://discord.com/channels/111/222/1300000000000000000", msgs[0].JumpURL())
	assert.Equal(t, "alice", msgs[0].AuthorName)
}
