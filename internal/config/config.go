package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/adapters/group"
	"github.com/dkeye/VoiceCaptions/internal/adapters/rtc"
	"github.com/dkeye/VoiceCaptions/internal/adapters/speech"
	"github.com/dkeye/VoiceCaptions/internal/app/media"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Hub    HubConfig    `mapstructure:"hub"`
	Speech SpeechConfig `mapstructure:"speech"`
	Call   CallConfig   `mapstructure:"call"`

	Redis group.RedisConfig `mapstructure:"redis"`
	P2P   group.P2PConfig   `mapstructure:"p2p"`
	RTC   rtc.Config        `mapstructure:"rtc"`
	Media media.Config      `mapstructure:"media"`
}

// HubConfig is the relay server side of the group hub.
type HubConfig struct {
	Name       string        `mapstructure:"name"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
	SendBuffer int           `mapstructure:"send_buffer"`
	// PublicURL overrides the ws(s)://host the negotiate endpoint hands out.
	PublicURL string `mapstructure:"public_url"`
}

type SpeechConfig struct {
	Service    speech.ServiceConfig `mapstructure:"service"`
	Recognizer speech.Config        `mapstructure:"recognizer"`
}

// CallConfig drives cmd/call.
type CallConfig struct {
	Room               string        `mapstructure:"room"`
	Backend            string        `mapstructure:"backend"`
	NegotiateURL       string        `mapstructure:"negotiate_url"`
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	CaptionCapacity    int           `mapstructure:"caption_capacity"`
	PrimaryLanguage    string        `mapstructure:"primary_language"`
	SecondaryLanguage  string        `mapstructure:"secondary_language"`
	CandidateLanguages []string      `mapstructure:"candidate_languages"`
	LanguageIDMode     string        `mapstructure:"language_id_mode"`
}

const (
	BackendWS     = "ws"
	BackendRedis  = "redis"
	BackendP2P    = "p2p"
	BackendMemory = "memory"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")

	v.SetDefault("hub.name", "signal")
	v.SetDefault("hub.jwt_secret", "change-me")
	v.SetDefault("hub.token_ttl", "1h")
	v.SetDefault("hub.rate_limit", 50)
	v.SetDefault("hub.rate_window", "1s")
	v.SetDefault("hub.send_buffer", 64)
	v.SetDefault("hub.public_url", "")

	v.SetDefault("speech.service.key", "")
	v.SetDefault("speech.service.region", "")
	v.SetDefault("speech.service.sts_url", speech.DefaultSTSURL)
	v.SetDefault("speech.service.tts_url", speech.DefaultTTSURL)
	v.SetDefault("speech.recognizer.endpoint", "wss://%s.stt.speech.microsoft.com/speech/translation/stream")
	v.SetDefault("speech.recognizer.audio_format", "opus")
	v.SetDefault("speech.recognizer.dial_timeout", "10s")

	v.SetDefault("call.room", "call")
	v.SetDefault("call.backend", BackendWS)
	v.SetDefault("call.negotiate_url", "http://localhost:8080")
	v.SetDefault("call.negotiation_timeout", "45s")
	v.SetDefault("call.caption_capacity", 200)
	v.SetDefault("call.primary_language", "ja-JP")
	v.SetDefault("call.secondary_language", "zh-CN")
	v.SetDefault("call.candidate_languages", []string{"ja-JP", "zh-CN"})
	v.SetDefault("call.language_id_mode", "Continuous")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.presence_ttl", "24h")

	v.SetDefault("p2p.listen_addrs", []string{"/ip4/0.0.0.0/tcp/0"})
	v.SetDefault("p2p.mdns_tag", group.DefaultMdnsTag)
	v.SetDefault("p2p.peers", []string{})
	v.SetDefault("p2p.topic_prefix", "voicecaptions/")

	rtcDefaults := rtc.DefaultConfig()
	v.SetDefault("rtc.ice_servers", []map[string]any{{"urls": rtcDefaults.ICEServers[0].URLs}})
	v.SetDefault("rtc.ice_transport_policy", rtcDefaults.ICETransportPolicy)
	v.SetDefault("rtc.disconnected_timeout", rtcDefaults.DisconnectedTimeout)
	v.SetDefault("rtc.failed_timeout", rtcDefaults.FailedTimeout)
	v.SetDefault("rtc.keepalive_interval", rtcDefaults.KeepAliveInterval)

	v.SetDefault("media.audio_listen", "127.0.0.1:5004")
	v.SetDefault("media.video_listen", "127.0.0.1:5006")
	v.SetDefault("media.playback_audio", "")
	v.SetDefault("media.playback_video", "")
	v.SetDefault("media.stream_id", "voicecaptions")
	v.SetDefault("media.tap_buffer", 256)
}

// Load reads config/config.<CONFIG_ENV>.yaml. When fs carries a "config"
// flag it names the file instead, and the flags "room" and "backend"
// override call.room and call.backend. Environment variables such as
// CALL_ROOM or SPEECH_SERVICE_KEY override everything.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			fileName = f.Value.String()
		}
		for key, flag := range map[string]string{"call.room": "room", "call.backend": "backend"} {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	v.SetConfigFile(fileName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("backend", cfg.Call.Backend).Msg("config ready")
	return &cfg, nil
}
