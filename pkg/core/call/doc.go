// Package call implements barge-in voice calls for Callio.
//
// A call session is a loop: listen for speech, record it, transcribe
// it, fetch the assistant's reply, speak the reply, and go back to
// listening. The user can talk over the assistant at any point; that
// cuts playback off immediately and starts a new user turn.
//
// # Architecture
//
// The call package provides several core components:
//
//   - Session: The main orchestrator that coordinates the full pipeline
//   - VoiceActivityMonitor: Energy-based speech boundary detection with hysteresis
//   - SegmentRecorder: Owns the capture device and accumulates speech segments
//   - TranscriptionGate: Filters transcripts not worth sending to the assistant
//   - PlaybackSequencer: Chunks reply text and plays synthesized audio in order
//
// # Data Flow
//
//	Mic → SegmentRecorder → TranscriptionGate → ReplyClient
//	         │ energy                                │ text
//	  VoiceActivityMonitor                  PlaybackSequencer → Speaker
//
// # State Machine
//
// The session progresses through these states:
//
//	IDLE → LISTENING → USER_SPEAKING → TRANSCRIBING → AWAITING_REPLY → ASSISTANT_SPEAKING
//	           ↑                                                              │
//	           └───────────────────── barge-in ───────────────────────────────┘
//
// # Usage
//
//	cfg := call.DefaultSessionConfig()
//	cfg.ConversationID = "conv_123"
//
//	session := call.NewSession(cfg, device, transcriber, synth, player, replyClient)
//	if err := session.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	for event := range session.Events() {
//	    switch e := event.(type) {
//	    case *call.TranscriptAcceptedEvent:
//	        fmt.Println("User said:", e.Text)
//	    case *call.NoticeEvent:
//	        fmt.Println(e.Message)
//	    }
//	}
package call
