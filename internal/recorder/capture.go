package recorder

import (
	"fmt"
	"os"
	"os/exec"
)

// Capture is one live child transcoding process writing a single segment
// file. The watcher is the sole owner of a Capture and is responsible for
// guaranteed release on every exit path.
type Capture interface {
	// Done is closed when the process has exited.
	Done() <-chan struct{}
	// Exited reports whether the process has exited, without blocking.
	Exited() bool
	// Interrupt asks the process to flush and exit gracefully.
	Interrupt() error
	// Kill forcibly terminates the process.
	Kill() error
}

// StartCaptureFunc launches a capture of mediaURL into outPath. Injected so
// tests can substitute a controllable process.
type StartCaptureFunc func(mediaURL, outPath string) (Capture, error)

// FFmpegStarter returns a StartCaptureFunc that runs a stream-copy
// transcode: ffmpeg -i <url> -c copy -map 0 <out>.
func FFmpegStarter(ffmpegCmd string) StartCaptureFunc {
	return func(mediaURL, outPath string) (Capture, error) {
		cmd := exec.Command(ffmpegCmd,
			"-hide_banner", "-loglevel", "error",
			"-i", mediaURL,
			"-c", "copy", "-map", "0",
			outPath,
		)
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start %s: %w", ffmpegCmd, err)
		}
		p := &process{cmd: cmd, done: make(chan struct{})}
		go func() {
			_ = cmd.Wait()
			close(p.done)
		}()
		return p, nil
	}
}

type process struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *process) Done() <-chan struct{} { return p.done }

func (p *process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Interrupt sends SIGINT, which ffmpeg treats as "finish writing and quit".
func (p *process) Interrupt() error {
	if p.Exited() {
		return nil
	}
	return p.cmd.Process.Signal(os.Interrupt)
}

func (p *process) Kill() error {
	if p.Exited() {
		return nil
	}
	return p.cmd.Process.Kill()
}
