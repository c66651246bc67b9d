package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Command represents one FFmpeg invocation.
type Command struct {
	Binary   string
	Args     []string
	Input    string
	Output   string
	LogLevel string

	cmd     *exec.Cmd
	started time.Time
	mu      sync.RWMutex

	monitor    *ProcessMonitor
	killed     atomic.Bool
	stdout     io.ReadCloser
	stderrDone chan struct{}

	// Recent stderr lines kept for diagnostics.
	stderrLines []string
	stderrTail  int
	stderrMu    sync.RWMutex
}

// defaultStderrTailLines is how many recent stderr lines are retained when no
// explicit bound is configured.
const defaultStderrTailLines = 100

// CommandBuilder assembles FFmpeg arguments with a fluent API.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputArgs  []string
	input      string
	filterArgs []string
	outputArgs []string
	output     string
	logLevel   string
	stderrTail int
}

// NewCommandBuilder creates a builder for the given FFmpeg binary path.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner suppresses the FFmpeg startup banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Input sets the input source URL or path.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// InputArgs adds arbitrary input arguments.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// Reconnect enables automatic reconnection for network inputs.
func (b *CommandBuilder) Reconnect() *CommandBuilder {
	b.inputArgs = append(b.inputArgs,
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5")
	return b
}

// VideoCodec sets the video codec ("copy" passes the stream through).
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// AudioBitrate sets the audio bitrate, e.g. "192k".
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:a", bitrate)
	return b
}

// AudioSampleRate sets the audio sample rate in Hz.
func (b *CommandBuilder) AudioSampleRate(rate int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-ar", strconv.Itoa(rate))
	return b
}

// AudioFilter adds an audio filter expression.
func (b *CommandBuilder) AudioFilter(filter string) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, filter)
	return b
}

// MovFlags sets MP4 muxer flags, e.g. "+frag_keyframe+empty_moov".
func (b *CommandBuilder) MovFlags(flags string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-movflags", flags)
	return b
}

// Format sets the output container format.
func (b *CommandBuilder) Format(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-f", format)
	return b
}

// FlushPackets enables immediate packet flushing for low latency.
func (b *CommandBuilder) FlushPackets() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-flush_packets", "1")
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// StderrTailLines bounds the retained stderr tail. Non-positive values use
// the default.
func (b *CommandBuilder) StderrTailLines(n int) *CommandBuilder {
	b.stderrTail = n
	return b
}

// Output sets the output destination ("pipe:1" streams to stdout).
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build assembles the final command.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)

	if len(b.filterArgs) > 0 {
		args = append(args, "-af", strings.Join(b.filterArgs, ","))
	}

	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	tail := b.stderrTail
	if tail <= 0 {
		tail = defaultStderrTailLines
	}

	return &Command{
		Binary:      b.binary,
		Args:        args,
		Input:       b.input,
		Output:      b.output,
		LogLevel:    b.logLevel,
		stderrLines: make([]string, 0, tail),
		stderrTail:  tail,
	}
}

// String returns the command line for logging.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Kill terminates the FFmpeg process. Safe to call before Start, after
// exit, and from multiple goroutines; only the first call on a live
// process does anything.
func (c *Command) Kill() error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if !c.killed.CompareAndSwap(false, true) {
		return nil
	}
	return cmd.Process.Kill()
}

// WasKilled reports whether Kill was invoked on a live process. Used to
// classify the exit error: a killed transcode ending with SIGKILL is the
// expected teardown path, not a failure.
func (c *Command) WasKilled() bool {
	return c.killed.Load()
}

// IsRunning reports whether the process has started and not yet exited.
func (c *Command) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cmd == nil || c.cmd.Process == nil {
		return false
	}
	return c.cmd.ProcessState == nil
}

// Duration returns how long the process has been running.
func (c *Command) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

// PID returns the process ID, or 0 before Start.
func (c *Command) PID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// ProcessStats returns the current resource usage snapshot, or nil when the
// process is not being monitored.
func (c *Command) ProcessStats() *ProcessStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.monitor == nil {
		return nil
	}
	stats := c.monitor.Stats()
	return &stats
}

// GetStderrLines returns a copy of the recent stderr lines.
func (c *Command) GetStderrLines() []string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()

	lines := make([]string, len(c.stderrLines))
	copy(lines, c.stderrLines)
	return lines
}

// Start launches the FFmpeg process with stdout piped for streaming and
// stderr captured to the in-memory tail. A spawn failure is reported here,
// before any output handling begins.
func (c *Command) Start(ctx context.Context) error {
	c.mu.Lock()
	c.cmd = exec.CommandContext(ctx, c.Binary, c.Args...)
	c.started = time.Now()
	if c.stderrTail <= 0 {
		c.stderrTail = defaultStderrTailLines
	}

	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("getting stdout pipe: %w", err)
	}
	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("getting stderr pipe: %w", err)
	}
	c.stdout = stdout
	c.mu.Unlock()

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	c.mu.Lock()
	c.monitor = NewProcessMonitor(c.cmd.Process.Pid)
	c.monitor.Start()
	c.stderrDone = make(chan struct{})
	c.mu.Unlock()

	go c.captureStderr(stderr, c.stderrDone)
	return nil
}

// Forward copies the started process's stdout to w and waits for exit.
// Resource usage and written bytes are sampled while it runs.
//
// The returned error is the process exit error, or the copy error when the
// process itself succeeded. Callers that killed the process should check
// WasKilled before treating the exit error as a failure.
func (c *Command) Forward(w io.Writer) error {
	c.mu.RLock()
	cmd := c.cmd
	stdout := c.stdout
	stderrDone := c.stderrDone
	monitor := c.monitor
	c.mu.RUnlock()

	if cmd == nil || stdout == nil {
		return fmt.Errorf("command not started")
	}

	countingWriter := NewCountingWriter(w, monitor)

	// Drain stdout to EOF before Wait: Wait closes the pipe, and calling it
	// with the copy still in flight can drop the final output bytes.
	_, copyErr := io.Copy(countingWriter, stdout)
	if copyErr != nil {
		// The destination is gone; stop the producer so Wait cannot block
		// on a full pipe.
		c.Kill()
	}

	waitErr := cmd.Wait()
	<-stderrDone
	c.stopMonitor()

	if waitErr != nil {
		return waitErr
	}
	if copyErr != nil {
		return fmt.Errorf("copying output: %w", copyErr)
	}
	return nil
}

// StreamToWriter starts FFmpeg and copies its stdout to w until the process
// exits or ctx is cancelled.
func (c *Command) StreamToWriter(ctx context.Context, w io.Writer) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	return c.Forward(w)
}

// captureStderr keeps the most recent stderr lines in a bounded buffer.
func (c *Command) captureStderr(stderr io.ReadCloser, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()

		c.stderrMu.Lock()
		if len(c.stderrLines) >= c.stderrTail {
			c.stderrLines = c.stderrLines[1:]
		}
		c.stderrLines = append(c.stderrLines, line)
		c.stderrMu.Unlock()
	}
}

func (c *Command) stopMonitor() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.monitor != nil {
		c.monitor.Stop()
	}
}
