package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

type fakeToken struct {
	paho.Token
	done bool
	err  error
}

func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	paho.Client
	token        *fakeToken
	sent         []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	c.sent = append(c.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.token
}

func (c *fakeClient) IsConnected() bool { return !c.disconnected }
func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func mac(s string) *string { return &s }

func TestPublishPlaylist(t *testing.T) {
	client := &fakeClient{token: &fakeToken{done: true}}
	pub := NewPublisher(client, zerolog.Nop())

	player := &model.Player{ID: 3, MACAddress: mac("aa:bb:cc")}
	pl := &model.Playlist{PlayerID: 3, TotalDuration: 30}
	require.NoError(t, pub.PublishPlaylist(player, "etag-1", pl))

	require.Len(t, client.sent, 1)
	assert.Equal(t, "players/aa:bb:cc/commands", client.sent[0].topic)
	assert.Equal(t, byte(1), client.sent[0].qos)

	var msg Message
	require.NoError(t, json.Unmarshal(client.sent[0].payload, &msg))
	assert.Equal(t, MessagePlaylistUpdated, msg.Type)
	assert.Equal(t, "etag-1", msg.ETag)
	require.NotNil(t, msg.Playlist)
	assert.Equal(t, 30, msg.Playlist.TotalDuration)
}

func TestPublishWithoutMACUsesPlayerKey(t *testing.T) {
	client := &fakeClient{token: &fakeToken{done: true}}
	pub := NewPublisher(client, zerolog.Nop())

	require.NoError(t, pub.PublishPlaylist(&model.Player{ID: 12}, "x", &model.Playlist{}))
	assert.Equal(t, "players/player-12/commands", client.sent[0].topic)
}

func TestPublishFailures(t *testing.T) {
	client := &fakeClient{token: &fakeToken{done: false}}
	pub := NewPublisher(client, zerolog.Nop())

	err := pub.PublishPlaylist(&model.Player{ID: 1}, "x", &model.Playlist{})
	assert.ErrorIs(t, err, ErrPublishTimeout)

	broken := errors.New("not connected")
	client.token = &fakeToken{done: true, err: broken}
	err = pub.PublishPlaylist(&model.Player{ID: 1}, "x", &model.Playlist{})
	assert.ErrorIs(t, err, broken)
}

func TestClose(t *testing.T) {
	client := &fakeClient{token: &fakeToken{done: true}}
	NewPublisher(client, zerolog.Nop()).Close()
	assert.True(t, client.disconnected)
}
