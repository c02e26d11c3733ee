package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/callio-ai/callio/internal/dotenv"
	"github.com/callio-ai/callio/pkg/core/call"
	"github.com/callio-ai/callio/pkg/core/reply"
	"github.com/callio-ai/callio/pkg/core/voice/stt"
	"github.com/callio-ai/callio/pkg/core/voice/tts"
	"github.com/callio-ai/callio/pkg/gateway/config"
)

type talkFlags struct {
	voice           string
	edgeURL         string
	conversationURL string
	replyBackend    string
	conversationID  string
}

func main() {
	var f talkFlags
	flag.StringVar(&f.voice, "voice", "", "synthesis voice (overrides CALLIO_VOICE)")
	flag.StringVar(&f.edgeURL, "edge-url", "", "edge TTS base URL (overrides CALLIO_EDGE_TTS_BASE_URL)")
	flag.StringVar(&f.conversationURL, "conversation-url", "", "conversation backend base URL (overrides CALLIO_CONVERSATION_BASE_URL)")
	flag.StringVar(&f.replyBackend, "reply", "", "reply backend: conversation or gemini (overrides CALLIO_REPLY_BACKEND)")
	flag.StringVar(&f.conversationID, "conversation", "", "conversation ID (default: generated)")
	flag.Parse()

	if err := run(context.Background(), f, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "callio-talk: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, flags talkFlags, in io.Reader, out, errOut io.Writer) error {
	if err := dotenv.Load(".env"); err != nil {
		return err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(&cfg, flags)

	replyClient, err := buildReplyClient(ctx, cfg)
	if err != nil {
		return err
	}

	device, err := newMicDevice()
	if err != nil {
		return err
	}
	player, err := newPCMPlayer()
	if err != nil {
		return err
	}
	defer player.Close()

	sessionConfig := cfg.Session
	if flags.conversationID != "" {
		sessionConfig.ConversationID = flags.conversationID
	}
	if sessionConfig.ConversationID == "" {
		sessionConfig.ConversationID = "conv_" + uuid.NewString()
	}

	session := call.NewSession(
		sessionConfig,
		device,
		buildTranscriber(cfg),
		buildSynthesizer(cfg),
		player,
		replyClient,
	)
	if os.Getenv("CALLIO_DEBUG") != "" {
		session.EnableDebug()
	}

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		printEvents(session, out, errOut)
	}()

	fmt.Fprintf(out, "Session %s started. Speak, or type: mic, interrupt, quit\n", session.SessionID())

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "":
			continue
		case "mic":
			enabled, err := session.ToggleMicrophone()
			if err != nil {
				fmt.Fprintf(errOut, "mic: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "microphone %s\n", onOff(enabled))
		case "interrupt":
			if err := session.Interrupt(); err != nil {
				fmt.Fprintf(errOut, "interrupt: %v\n", err)
			}
		case "quit", "exit":
			_ = session.Stop()
			<-eventsDone
			return nil
		default:
			fmt.Fprintln(out, "commands: mic, interrupt, quit")
		}
	}

	_ = session.Stop()
	<-eventsDone
	return scanner.Err()
}

func printEvents(session *call.Session, out, errOut io.Writer) {
	for event := range session.Events() {
		switch ev := event.(type) {
		case *call.StateChangedEvent:
			fmt.Fprintf(out, "[state] %s\n", ev.To)
		case *call.TranscriptAcceptedEvent:
			fmt.Fprintf(out, "[you] %s\n", ev.Text)
		case *call.TranscriptRejectedEvent:
			fmt.Fprintf(out, "[filtered] %s (%s)\n", ev.Text, ev.Reason)
		case *call.ReplyReceivedEvent:
			fmt.Fprintf(out, "[assistant] %s\n", ev.Text)
		case *call.InterruptedEvent:
			fmt.Fprintf(out, "[interrupted] %s\n", ev.Source)
		case *call.NoticeEvent:
			fmt.Fprintf(out, "[notice] %s\n", ev.Message)
		case *call.ErrorEvent:
			fmt.Fprintf(errOut, "[error] %s\n", ev.Message)
		case *call.SessionStoppedEvent:
			fmt.Fprintf(out, "[stopped] %s\n", ev.Reason)
		}
	}
}

func applyFlags(cfg *config.Config, flags talkFlags) {
	if flags.voice != "" {
		cfg.Voice = flags.voice
		cfg.Session.Voice = flags.voice
	}
	if flags.edgeURL != "" {
		cfg.EdgeTTSBaseURL = flags.edgeURL
	}
	if flags.conversationURL != "" {
		cfg.ConversationBaseURL = flags.conversationURL
	}
	if flags.replyBackend != "" {
		cfg.ReplyBackend = config.ReplyBackend(flags.replyBackend)
	}
}

func buildTranscriber(cfg config.Config) call.Transcriber {
	provider := stt.NewWhisper(cfg.WhisperAPIKey)
	if cfg.WhisperBaseURL != "" {
		provider = provider.WithBaseURL(cfg.WhisperBaseURL)
	}
	return call.ProviderTranscriber{
		Provider: provider,
		Options: stt.TranscribeOptions{
			Model:    cfg.WhisperModel,
			Language: cfg.WhisperLanguage,
		},
	}
}

func buildSynthesizer(cfg config.Config) call.Synthesizer {
	return call.ProviderSynthesizer{
		Provider: tts.NewEdge(cfg.EdgeTTSBaseURL),
		Options: tts.SynthesizeOptions{
			Voice:      cfg.Voice,
			Format:     "pcm",
			SampleRate: playbackSampleRateHz,
		},
	}
}

func buildReplyClient(ctx context.Context, cfg config.Config) (call.ReplyClient, error) {
	switch cfg.ReplyBackend {
	case config.ReplyBackendGemini:
		g, err := reply.NewGemini(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		if cfg.GeminiModel != "" {
			g = g.WithModel(cfg.GeminiModel)
		}
		if cfg.GeminiSystemPrompt != "" {
			g = g.WithSystemPrompt(cfg.GeminiSystemPrompt)
		}
		return g, nil
	default:
		return reply.NewConversation(cfg.ConversationBaseURL), nil
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
