// Package mqtt pushes commands to players over an MQTT broker.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

const (
	qos            = 1
	publishTimeout = 5 * time.Second
	quiesceMillis  = 250
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Topic is where a player listens for commands.
func Topic(deviceKey string) string {
	return fmt.Sprintf("players/%s/commands", deviceKey)
}

// Message is the envelope every command is sent in.
type Message struct {
	Type     string          `json:"type"`
	PlayerID int             `json:"player_id"`
	ETag     string          `json:"etag,omitempty"`
	Playlist *model.Playlist `json:"playlist,omitempty"`
	SentAt   time.Time       `json:"sent_at"`
}

const MessagePlaylistUpdated = "playlist_updated"

// Connect dials the broker with reconnects enabled.
func Connect(brokerURL, clientID string, logger zerolog.Logger) (paho.Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = func(paho.Client) {
		logger.Info().Str("broker", brokerURL).Msg("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

type Publisher struct {
	client paho.Client
	logger zerolog.Logger
	now    func() time.Time
}

func NewPublisher(client paho.Client, logger zerolog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger.With().Str("component", "mqtt").Logger(),
		now:    time.Now,
	}
}

// PublishPlaylist tells the player its playlist changed. The full playlist
// rides along so the player does not need to fetch it.
func (p *Publisher) PublishPlaylist(player *model.Player, etag string, pl *model.Playlist) error {
	msg := Message{
		Type:     MessagePlaylistUpdated,
		PlayerID: player.ID,
		ETag:     etag,
		Playlist: pl,
		SentAt:   p.now().UTC(),
	}
	return p.publish(player.DeviceKey(), msg)
}

func (p *Publisher) publish(deviceKey string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}
	topic := Topic(deviceKey)
	token := p.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to send message to player %d: %w", msg.PlayerID, err)
	}
	p.logger.Debug().Str("topic", topic).Str("type", msg.Type).Msg("message published")
	return nil
}

func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(quiesceMillis)
	}
}
