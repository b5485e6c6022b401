package config

// Known outbound channel names. These are wire values shared with the
// dispatch registry and the chat_channel diary field.
const (
	ChannelWebsocket = "websocket"
	ChannelEmail     = "email"
	ChannelSMS       = "sms"
	ChannelWhatsApp  = "dialogflow_whatsapp"
)

// ChannelsConfig selects which outbound channels get dispatchers
// registered at startup.
type ChannelsConfig struct {
	// Enabled lists the channel names to register. An empty list disables
	// all outbound delivery (responses become failure DeliveryResults).
	Enabled []string `yaml:"enabled"`
}

// DefaultChannelsConfig enables every known channel.
func DefaultChannelsConfig() *ChannelsConfig {
	return &ChannelsConfig{
		Enabled: []string{ChannelWebsocket, ChannelEmail, ChannelSMS, ChannelWhatsApp},
	}
}

// IsEnabled reports whether the named channel is in the enabled list.
func (c *ChannelsConfig) IsEnabled(channel string) bool {
	for _, name := range c.Enabled {
		if name == channel {
			return true
		}
	}
	return false
}

// knownChannel checks a configured name against the channel universe.
func knownChannel(name string) bool {
	switch name {
	case ChannelWebsocket, ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return true
	}
	return false
}
