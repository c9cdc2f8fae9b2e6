// Package process supervises the single external process used as an
// embedding oracle: it launches the command through a shell in its own
// process group, writes request lines to its stdin, drains its stdout on a
// background goroutine, and tears the whole group down on Shutdown.
package process

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultShell       = "sh"
	defaultGracePeriod = 5 * time.Second
	maxLineSize        = 16 << 20
	pollInterval       = 20 * time.Millisecond
)

// handle identifies a started process and the group it leads.
type handle struct {
	proc   *os.Process
	pgid   int
	exited <-chan struct{}
}

// groupSignaler delivers signals to a process group. The platform files
// provide the default implementation.
type groupSignaler interface {
	Interrupt(h handle) error
	Kill(h handle) error
	Alive(h handle) bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithShell overrides the shell used to run the command (default "sh").
func WithShell(path string) Option {
	return func(s *Supervisor) { s.shell = path }
}

// WithGracePeriod sets how long Shutdown waits for the group to exit after
// the interrupt before killing it.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithStderr redirects the child's stderr (default: inherited os.Stderr).
func WithStderr(w io.Writer) Option {
	return func(s *Supervisor) { s.stderr = w }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Supervisor) { s.log = l.With().Str("component", "process").Logger() }
}

// Supervisor owns the lifecycle of exactly one external process. The
// process is created by the first Start call and lives until Shutdown.
type Supervisor struct {
	shell  string
	grace  time.Duration
	stderr io.Writer
	log    zerolog.Logger
	group  groupSignaler

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     io.ReadCloser
	h          handle
	wantReader bool
	readerOn   bool

	queue  *LineQueue
	ctx    context.Context
	cancel context.CancelFunc

	waitOnce sync.Once
	exited   chan struct{}
	exitErr  error

	closed uint32 // 0 → open, 1 → shut down
}

// NewSupervisor constructs an idle supervisor. No process is started until
// Start is called.
func NewSupervisor(opts ...Option) *Supervisor {
	s := &Supervisor{
		shell:  defaultShell,
		grace:  defaultGracePeriod,
		stderr: os.Stderr,
		log:    zerolog.Nop(),
		group:  defaultGroup(),
		queue:  newLineQueue(),
		exited: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start launches command through the shell in a new process group with
// stdin and stdout captured. A second call while started is a no-op.
func (s *Supervisor) Start(command string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if atomic.LoadUint32(&s.closed) == 1 {
		return ErrClosed
	}
	if s.cmd != nil {
		return nil
	}

	cmd := exec.Command(s.shell, "-c", command)
	cmd.Stderr = s.stderr
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &LaunchError{Command: command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return &LaunchError{Command: command, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &LaunchError{Command: command, Err: err}
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = stdout
	s.h = handle{proc: cmd.Process, pgid: cmd.Process.Pid, exited: s.exited}

	s.log.Info().Int("pid", cmd.Process.Pid).Str("command", command).Msg("embedder started")

	if s.wantReader {
		s.startReaderLocked()
	}
	return nil
}

// Pid returns the pid of the started process, or 0.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return 0
	}
	return s.h.pgid
}

// WriteLine writes text followed by a newline to the process's stdin. The
// write goes straight to the pipe and may block while the pipe is full.
func (s *Supervisor) WriteLine(text string) error {
	if atomic.LoadUint32(&s.closed) == 1 {
		return &WriteError{Err: ErrClosed}
	}

	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()

	if stdin == nil {
		return &WriteError{Err: ErrNotStarted}
	}
	select {
	case <-s.exited:
		return &WriteError{Err: ErrProcessExited}
	default:
	}

	if _, err := io.WriteString(stdin, text+"\n"); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// ReadLines returns the queue fed by the background reader, starting the
// reader on first use. Every call returns the same queue. If the process is
// not started yet, the reader starts together with it.
func (s *Supervisor) ReadLines() *LineQueue {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wantReader = true
	if s.cmd != nil {
		s.startReaderLocked()
	}
	return s.queue
}

// Done is closed once the process has exited and been reaped.
func (s *Supervisor) Done() <-chan struct{} {
	return s.exited
}

// ExitErr returns the process's exit status once Done is closed.
func (s *Supervisor) ExitErr() error {
	select {
	case <-s.exited:
		return s.exitErr
	default:
		return nil
	}
}

// Shutdown interrupts the whole process group, waits up to the grace
// period for it to exit and kills whatever remains. It never fails and
// only acts on the first call.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		s.mu.Unlock()
		return
	}
	cmd, stdin, h, readerOn := s.cmd, s.stdin, s.h, s.readerOn
	s.mu.Unlock()

	s.cancel()
	if !readerOn {
		s.queue.close()
	}
	if cmd == nil {
		return
	}

	_ = stdin.Close()
	if err := s.group.Interrupt(h); err != nil {
		s.log.Debug().Err(err).Int("pgid", h.pgid).Msg("interrupt embedder group")
	}
	go s.reap()

	deadline := time.NewTimer(s.grace)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	for s.group.Alive(h) {
		select {
		case <-deadline.C:
			s.log.Warn().Int("pgid", h.pgid).Dur("grace", s.grace).Msg("embedder group still running, killing")
			if err := s.group.Kill(h); err != nil {
				s.log.Debug().Err(err).Int("pgid", h.pgid).Msg("kill embedder group")
			}
			select {
			case <-s.exited:
			case <-time.After(s.grace):
			}
			return
		case <-tick.C:
		}
	}
}

// Close lets Supervisor satisfy io.Closer.
func (s *Supervisor) Close() error {
	s.Shutdown()
	return nil
}

// ------------------------- internals -------------------------

func (s *Supervisor) startReaderLocked() {
	if s.readerOn || atomic.LoadUint32(&s.closed) == 1 {
		return
	}
	s.readerOn = true
	go s.read(s.stdout)
}

func (s *Supervisor) read(r io.Reader) {
	defer s.reap()
	defer s.queue.close()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for sc.Scan() {
		s.queue.push(strings.TrimRight(sc.Text(), "\r"))

		select {
		case <-s.ctx.Done():
			return
		default:
		}
	}

	if err := sc.Err(); err != nil && s.ctx.Err() == nil {
		s.log.Warn().Err(err).Msg("embedder output read failed")
	}
}

// reap waits for the process exactly once and publishes its exit status.
func (s *Supervisor) reap() {
	s.waitOnce.Do(func() {
		err := s.cmd.Wait()
		s.exitErr = err
		close(s.exited)

		ev := s.log.Info()
		if err != nil && atomic.LoadUint32(&s.closed) == 0 {
			ev = s.log.Warn().Err(err)
		}
		ev.Int("pid", s.h.pgid).Msg("embedder exited")
	})
}
