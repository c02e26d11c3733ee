package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

const (
	captureSampleRateHz  = 16000
	playbackSampleRateHz = 16000
	pcmBytesPerSample    = 2
)

// micDevice captures microphone audio through ffmpeg as raw s16le PCM.
// It satisfies the engine's capture device contract, including reopen
// after close for microphone toggling.
type micDevice struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func newMicDevice() (*micDevice, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for mic capture (install ffmpeg and ensure it is in PATH)")
	}
	return &micDevice{}, nil
}

func micFFmpegArgs(goos string) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
			"-ac", "1", "-ar", fmt.Sprintf("%d", captureSampleRateHz),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", fmt.Sprintf("%d", captureSampleRateHz),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("mic capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

func (m *micDevice) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd != nil {
		return nil
	}

	args, err := micFFmpegArgs(runtime.GOOS)
	if err != nil {
		return err
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg mic capture: %w", err)
	}
	m.cmd = cmd
	m.stdout = stdout
	return nil
}

func (m *micDevice) Read(p []byte) (int, error) {
	m.mu.Lock()
	stdout := m.stdout
	m.mu.Unlock()
	if stdout == nil {
		return 0, io.EOF
	}
	return stdout.Read(p)
}

func (m *micDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
	m.cmd = nil
	m.stdout = nil
	return nil
}

// pcmPlayer plays raw s16le PCM through a persistent ffplay process.
// Play blocks for the audio's realtime duration so the engine's
// speaking state tracks what the listener actually hears. Stop kills
// and restarts ffplay to discard anything still buffered.
type pcmPlayer struct {
	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser

	stopMu sync.Mutex
	stopCh chan struct{}
}

func newPCMPlayer() (*pcmPlayer, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}
	p := &pcmPlayer{stopCh: make(chan struct{})}
	if err := p.startLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *pcmPlayer) startLocked() error {
	p.cmd = exec.Command("ffplay",
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", playbackSampleRateHz),
		"-ac", "1",
		"-i", "pipe:0",
	)
	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffplay stdin: %w", err)
	}
	p.cmd.Stdout = io.Discard
	p.cmd.Stderr = io.Discard
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}
	p.stdin = stdin
	return nil
}

func (p *pcmPlayer) Play(ctx context.Context, audio []byte) error {
	p.stopMu.Lock()
	stopCh := p.stopCh
	p.stopMu.Unlock()

	p.mu.Lock()
	stdin := p.stdin
	p.mu.Unlock()
	if stdin == nil {
		return errors.New("ffplay stdin is not initialized")
	}
	if _, err := stdin.Write(audio); err != nil {
		return fmt.Errorf("write to ffplay: %w", err)
	}

	wait := pcmDuration(len(audio), playbackSampleRateHz)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-stopCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pcmPlayer) Stop() {
	p.stopMu.Lock()
	close(p.stopCh)
	p.stopCh = make(chan struct{})
	p.stopMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	p.stdin = nil
	if err := p.startLocked(); err != nil {
		p.cmd = nil
		p.stdin = nil
	}
}

func (p *pcmPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	p.cmd = nil
	p.stdin = nil
	return nil
}

func pcmDuration(bytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := bytes / pcmBytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
