package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/VoiceCaptions/internal/adapters/credentials"
	"github.com/dkeye/VoiceCaptions/internal/adapters/group"
	"github.com/dkeye/VoiceCaptions/internal/adapters/rtc"
	"github.com/dkeye/VoiceCaptions/internal/adapters/speech"
	"github.com/dkeye/VoiceCaptions/internal/app/captions"
	"github.com/dkeye/VoiceCaptions/internal/app/media"
	"github.com/dkeye/VoiceCaptions/internal/app/session"
	"github.com/dkeye/VoiceCaptions/internal/config"
	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
)

func main() {
	fs := pflag.NewFlagSet("call", pflag.ExitOnError)
	fs.String("config", "", "config file (default config/config.<CONFIG_ENV>.yaml)")
	fs.String("room", "", "group to meet the peer in")
	fs.String("backend", "", "group channel backend: ws, redis or p2p")
	verbose := fs.BoolP("verbose", "v", false, "debug logging")
	_ = fs.Parse(os.Args[1:])

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("call failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	newChannel, closeBackend, err := channelFactory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	pcFactory, err := rtc.Factory(cfg.RTC)
	if err != nil {
		return fmt.Errorf("webrtc: %w", err)
	}
	playback := media.NewPlayback(cfg.Media)
	defer playback.Close()

	pair := captions.LanguagePair{Primary: cfg.Call.PrimaryLanguage, Secondary: cfg.Call.SecondaryLanguage}
	ctl := session.NewController(session.Config{
		Group:              domain.GroupName(cfg.Call.Room),
		NegotiationTimeout: cfg.Call.NegotiationTimeout,
		CaptionCapacity:    cfg.Call.CaptionCapacity,
		Languages:          pair,
		Recognition: core.RecognitionConfig{
			PrimaryLanguage:    cfg.Call.PrimaryLanguage,
			CandidateLanguages: cfg.Call.CandidateLanguages,
			TargetLanguages:    []string{pair.Primary, pair.Secondary},
			LanguageIDMode:     core.LanguageIDMode(cfg.Call.LanguageIDMode),
		},
	}, session.Deps{
		Credentials: credentials.NewClient(cfg.Call.NegotiateURL, nil),
		OpenMedia: func(context.Context) (core.MediaSource, error) {
			src, err := media.OpenRTPSource(cfg.Media)
			if err != nil {
				return nil, err
			}
			log.Info().Str("audio", addrString(src, core.MediaAudio)).Str("video", addrString(src, core.MediaVideo)).Msg("send RTP here")
			return src, nil
		},
		NewPeerConnection: pcFactory,
		NewChannel:        newChannel,
		NewRecognizer: func(token core.SpeechToken, rc core.RecognitionConfig) core.RecognitionSource {
			return speech.NewStreamRecognizer(cfg.Speech.Recognizer, token, rc)
		},
		OnRemoteTrack: playback.OnTrack,
	})

	if err := ctl.Start(ctx); err != nil {
		var credErr *credentials.CredentialError
		if errors.As(err, &credErr) {
			return fmt.Errorf("credentials unavailable (%s): %w", credErr.Endpoint, err)
		}
		return err
	}
	defer ctl.Stop()

	changes, unsubscribe := ctl.History().Subscribe()
	defer unsubscribe()
	go display(changes)

	log.Info().Str("room", cfg.Call.Room).Str("backend", cfg.Call.Backend).Msg("waiting for peer")
	select {
	case <-ctx.Done():
		log.Info().Msg("hanging up")
	case <-ctl.Done():
		log.Info().Msg("call ended")
	}
	return nil
}

func addrString(src *media.RTPSource, kind core.MediaKind) string {
	if a := src.Addr(kind); a != nil {
		return a.String()
	}
	return "-"
}

// channelFactory picks the group channel backend. The returned cleanup
// releases backend state shared across calls.
func channelFactory(ctx context.Context, cfg *config.Config) (func(core.GroupAccess) (core.GroupChannel, error), func(), error) {
	switch cfg.Call.Backend {
	case config.BackendWS, "":
		return func(access core.GroupAccess) (core.GroupChannel, error) {
			return group.NewWSChannel(access), nil
		}, func() {}, nil
	case config.BackendRedis:
		client, err := group.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return func(core.GroupAccess) (core.GroupChannel, error) {
			return group.NewRedisChannel(client, cfg.Redis.PresenceTTL), nil
		}, func() { _ = client.Close() }, nil
	case config.BackendP2P:
		return func(core.GroupAccess) (core.GroupChannel, error) {
			return group.NewP2PChannel(cfg.P2P), nil
		}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Call.Backend)
	}
}

func display(changes <-chan captions.Change) {
	for ch := range changes {
		switch ch.Kind {
		case captions.ChangeRecord:
			r := ch.Record
			who := "me  "
			if r.Origin == domain.OriginPeer {
				who = "peer"
			}
			fmt.Printf("[%s] %s %s (%s)\n    %s\n", r.Timestamp.Format("15:04:05"), who, r.OriginalText, r.SourceLanguage, r.TranslatedText)
		case captions.ChangePartial:
			if ch.Partial.Text != "" {
				fmt.Printf("  … %s\n", ch.Partial.String())
			}
		case captions.ChangeReset:
			fmt.Println("--- captions cleared ---")
		}
	}
}
