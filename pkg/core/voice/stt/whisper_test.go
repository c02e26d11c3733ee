package stt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/callio-ai/callio/pkg/core"
)

func TestWhisper_Transcribe(t *testing.T) {
	var gotPath, gotAuth, gotModel, gotLanguage, gotFilename string
	var gotAudio []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			gotFilename = header.Filename
			gotAudio, _ = io.ReadAll(file)
			file.Close()
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"你好，今天天气怎么样","language":"zh","duration":2.4}`))
	}))
	defer server.Close()

	provider := NewWhisper("sk-test").WithBaseURL(server.URL)
	audio := []byte("fake-wav-bytes")

	transcript, err := provider.Transcribe(context.Background(), bytes.NewReader(audio), TranscribeOptions{
		Language: "zh",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotPath != "/audio/transcriptions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model = %q, want default", gotModel)
	}
	if gotLanguage != "zh" {
		t.Errorf("language = %q", gotLanguage)
	}
	if gotFilename != "audio.wav" {
		t.Errorf("filename = %q", gotFilename)
	}
	if !bytes.Equal(gotAudio, audio) {
		t.Errorf("uploaded audio does not match input")
	}
	if transcript.Text != "你好，今天天气怎么样" {
		t.Errorf("text = %q", transcript.Text)
	}
	if transcript.Language != "zh" || transcript.Duration != 2.4 {
		t.Errorf("transcript = %+v", transcript)
	}
}

func TestWhisper_CustomModelAndFormat(t *testing.T) {
	var gotModel, gotFilename string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		gotModel = r.FormValue("model")
		if _, header, err := r.FormFile("file"); err == nil {
			gotFilename = header.Filename
		}
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer server.Close()

	provider := NewWhisper("sk-test").WithBaseURL(server.URL)
	_, err := provider.Transcribe(context.Background(), bytes.NewReader(nil), TranscribeOptions{
		Model:  "whisper-large-v3",
		Format: "mp3",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotModel != "whisper-large-v3" {
		t.Errorf("model = %q", gotModel)
	}
	if gotFilename != "audio.mp3" {
		t.Errorf("filename = %q", gotFilename)
	}
}

func TestWhisper_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	provider := NewWhisper("sk-test").WithBaseURL(server.URL)
	_, err := provider.Transcribe(context.Background(), bytes.NewReader(nil), TranscribeOptions{})
	if err == nil {
		t.Fatalf("expected error from upstream failure")
	}

	var ce *core.Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *core.Error, got %T", err)
	}
	if ce.Type != core.ErrTranscription {
		t.Errorf("Type = %v, want %v", ce.Type, core.ErrTranscription)
	}
	if ce.IsFatal() {
		t.Errorf("transcription failures must be recoverable")
	}
}

func TestWhisper_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	provider := NewWhisper("sk-test").WithBaseURL(server.URL)
	_, err := provider.Transcribe(context.Background(), bytes.NewReader(nil), TranscribeOptions{})
	if err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestWhisper_Name(t *testing.T) {
	if got := NewWhisper("k").Name(); got != "whisper" {
		t.Errorf("Name() = %q", got)
	}
}
