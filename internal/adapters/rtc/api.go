package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Config struct {
	ICEServers []ICEServer `mapstructure:"ice_servers"`
	// ICETransportPolicy is "all" or "relay".
	ICETransportPolicy  string        `mapstructure:"ice_transport_policy"`
	DisconnectedTimeout time.Duration `mapstructure:"disconnected_timeout"`
	FailedTimeout       time.Duration `mapstructure:"failed_timeout"`
	KeepAliveInterval   time.Duration `mapstructure:"keepalive_interval"`
}

func DefaultConfig() Config {
	return Config{
		ICEServers:          []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
		ICETransportPolicy:  "all",
		DisconnectedTimeout: 30 * time.Second,
		FailedTimeout:       120 * time.Second,
		KeepAliveInterval:   2 * time.Second,
	}
}

func (c Config) webrtcConfig() webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return webrtc.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: webrtc.NewICETransportPolicy(c.ICETransportPolicy),
	}
}

// NewAPI builds a pion API with the default codecs and interceptors.
func NewAPI(cfg Config) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if cfg.DisconnectedTimeout > 0 && cfg.FailedTimeout > 0 {
		se.SetICETimeouts(cfg.DisconnectedTimeout, cfg.FailedTimeout, cfg.KeepAliveInterval)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	), nil
}

// Factory returns a core.PeerConnectionFactory producing pion connections.
func Factory(cfg Config) (core.PeerConnectionFactory, error) {
	api, err := NewAPI(cfg)
	if err != nil {
		return nil, err
	}
	wcfg := cfg.webrtcConfig()
	return func(ctx context.Context) (core.PeerConnection, error) {
		pc, err := api.NewPeerConnection(wcfg)
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}
		return newConnection(pc), nil
	}, nil
}
