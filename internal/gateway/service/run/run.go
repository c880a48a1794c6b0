// Package run builds and runs saved sketch projects, streaming their console
// output to the project's subscribers.
package run

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	artifactrepo "sketchbook/internal/gateway/repository/artifact"
	projectrepo "sketchbook/internal/gateway/repository/project"
	"sketchbook/internal/gateway/run"
	"sketchbook/internal/safeio"
	"sketchbook/internal/sketch/api"
)

const (
	DefaultSourceExt   = ".sketch"
	DefaultMaxLogBytes = 1 << 20
	maxLineBytes       = 256 << 10
)

// DefaultCommand builds the project directory with make. "{{dir}}" and
// "{{project}}" are expanded in every argument.
var DefaultCommand = []string{"make", "--directory={{dir}}"}

type ProjectSource interface {
	Get(ctx context.Context, name string) (projectrepo.State, error)
}

type Publisher interface {
	Publish(project string, ev run.Event)
}

type Options struct {
	Command       []string
	WorkspaceDir  string
	SourceExt     string
	Timeout       time.Duration
	MaxLogBytes   int
	KeepWorkspace bool
	Env           []string
}

type Service struct {
	projects  ProjectSource
	events    Publisher
	artifacts artifactrepo.Store
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startMu sync.Mutex
	mu      sync.Mutex
	active  map[string]*activeRun
}

type activeRun struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(projects ProjectSource, events Publisher, artifacts artifactrepo.Store, opts Options) *Service {
	if len(opts.Command) == 0 {
		opts.Command = DefaultCommand
	}
	if opts.WorkspaceDir == "" {
		opts.WorkspaceDir = filepath.Join(os.TempDir(), "sketchbook-runs")
	}
	if opts.SourceExt == "" {
		opts.SourceExt = DefaultSourceExt
	}
	if opts.MaxLogBytes <= 0 {
		opts.MaxLogBytes = DefaultMaxLogBytes
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		projects:  projects,
		events:    events,
		artifacts: artifacts,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[string]*activeRun),
	}
}

// Start writes the stored project to a fresh workspace and launches the build
// command. A run already going for the same project is canceled first.
func (s *Service) Start(ctx context.Context, origin, projectName string) (api.RunTicket, error) {
	st, err := s.projects.Get(ctx, projectName)
	if err != nil {
		return api.RunTicket{}, err
	}
	if err := s.ctx.Err(); err != nil {
		return api.RunTicket{}, fmt.Errorf("run service is shut down: %w", err)
	}

	runID := ulid.Make().String()
	dir, err := s.writeWorkspace(runID, st)
	if err != nil {
		s.cleanup(runID)
		return api.RunTicket{}, fmt.Errorf("prepare workspace: %w", err)
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if s.opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(s.ctx, s.opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(s.ctx)
	}
	cmd := s.command(runCtx, dir, st.ProjectName)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	s.startMu.Lock()
	defer s.startMu.Unlock()
	s.stopPrevious(st.ProjectName)
	if err := cmd.Start(); err != nil {
		cancel()
		s.cleanup(runID)
		return api.RunTicket{}, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	r := &activeRun{id: runID, ctx: runCtx, cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.active[st.ProjectName] = r
	s.mu.Unlock()

	glog.Infof("[run] %s started for %q origin=%s: %s", runID, st.ProjectName, origin, strings.Join(cmd.Args, " "))
	s.wg.Add(1)
	go s.watch(r, st.ProjectName, cmd, pr, pw)
	return api.RunTicket{RunID: runID, ProjectName: st.ProjectName}, nil
}

func (s *Service) watch(r *activeRun, projectName string, cmd *exec.Cmd, pr *io.PipeReader, pw *io.PipeWriter) {
	defer s.wg.Done()
	defer close(r.done)
	defer r.cancel()

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		_ = pw.Close()
		waitErr <- err
	}()

	log := newLogBuffer(s.opts.MaxLogBytes)
	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		log.WriteLine(line)
		s.publish(projectName, api.NotifyRunOutput, api.RunOutput{RunID: r.id, ProjectName: projectName, Line: line})
	}
	if err := scanner.Err(); err != nil {
		glog.Warningf("[run] %s output: %v", r.id, err)
		_, _ = io.Copy(io.Discard, pr)
	}

	finished := api.RunFinished{RunID: r.id, ProjectName: projectName}
	err := <-waitErr
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.Is(r.ctx.Err(), context.DeadlineExceeded):
		finished.ExitCode = -1
		finished.Error = "run timed out"
	case errors.Is(r.ctx.Err(), context.Canceled):
		finished.ExitCode = -1
		finished.Error = "run canceled"
	case errors.As(err, &exitErr):
		finished.ExitCode = exitErr.ExitCode()
	default:
		finished.ExitCode = -1
		finished.Error = err.Error()
	}

	if s.artifacts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.artifacts.Put(ctx, r.id, artifactrepo.OutputLog, log.Bytes()); err != nil {
			glog.Errorf("[run] %s store log: %v", r.id, err)
		}
		cancel()
	}

	s.mu.Lock()
	if cur, ok := s.active[projectName]; ok && cur == r {
		delete(s.active, projectName)
	}
	s.mu.Unlock()
	if !s.opts.KeepWorkspace {
		s.cleanup(r.id)
	}

	glog.Infof("[run] %s finished exit=%d %s", r.id, finished.ExitCode, finished.Error)
	s.publish(projectName, api.NotifyRunFinished, finished)
}

// Wait blocks until the run with id has finished or ctx is done. Unknown or
// already finished runs return immediately.
func (s *Service) Wait(ctx context.Context, runID string) error {
	s.mu.Lock()
	var done chan struct{}
	for _, r := range s.active {
		if r.id == runID {
			done = r.done
		}
	}
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Log returns the stored console output of a finished run.
func (s *Service) Log(ctx context.Context, runID string) ([]byte, error) {
	if s.artifacts == nil {
		return nil, api.Errorf(api.KindNotFound, "run logs are not stored")
	}
	data, err := s.artifacts.Get(ctx, runID, artifactrepo.OutputLog)
	if errors.Is(err, artifactrepo.ErrNotFound) {
		return nil, api.Errorf(api.KindNotFound, "no log for run %q", runID)
	}
	return data, err
}

// LogURL returns a direct download link for the run log, or "" when the
// artifact store cannot presign one.
func (s *Service) LogURL(ctx context.Context, runID string) (string, error) {
	if s.artifacts == nil {
		return "", nil
	}
	return s.artifacts.GetURL(ctx, runID, artifactrepo.OutputLog)
}

// Close cancels every active run and waits for them to report.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) stopPrevious(projectName string) {
	s.mu.Lock()
	prev, ok := s.active[projectName]
	s.mu.Unlock()
	if !ok {
		return
	}
	glog.Infof("[run] canceling %s for %q", prev.id, projectName)
	prev.cancel()
	<-prev.done
}

func (s *Service) command(ctx context.Context, dir, projectName string) *exec.Cmd {
	args := make([]string, len(s.opts.Command))
	r := strings.NewReplacer("{{dir}}", dir, "{{project}}", projectName)
	for i, a := range s.opts.Command {
		args[i] = r.Replace(a)
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), s.opts.Env...)
	cmd.WaitDelay = 2 * time.Second
	return cmd
}

// writeWorkspace lays the project out as <runID>/<project>/src/<name><ext>,
// one file per class, and returns the project directory.
func (s *Service) writeWorkspace(runID string, st projectrepo.State) (string, error) {
	root, err := safeio.NewSafeFS(s.opts.WorkspaceDir)
	if err != nil {
		return "", err
	}
	files := map[string]string{st.ProjectName: st.MainSource}
	for _, c := range st.Classes {
		files[c.Name] = c.Source
	}
	for name, source := range files {
		p := filepath.Join(runID, st.ProjectName, "src", name+s.opts.SourceExt)
		if err := root.SafeWriteFile(p, []byte(source), 0o644); err != nil {
			return "", err
		}
	}
	return root.Path(filepath.Join(runID, st.ProjectName))
}

func (s *Service) cleanup(runID string) {
	root, err := safeio.NewSafeFS(s.opts.WorkspaceDir)
	if err == nil {
		err = root.SafeRemoveAll(runID)
	}
	if err != nil {
		glog.Warningf("[run] cleanup %s: %v", runID, err)
	}
}

func (s *Service) publish(projectName, method string, params any) {
	if s.events == nil {
		return
	}
	s.events.Publish(projectName, run.Event{Method: method, Params: params})
}

// logBuffer keeps the first max bytes of output and notes the truncation.
type logBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newLogBuffer(max int) *logBuffer {
	return &logBuffer{max: max}
}

func (b *logBuffer) WriteLine(line string) {
	if b.truncated {
		return
	}
	if b.buf.Len()+len(line)+1 > b.max {
		b.truncated = true
		b.buf.WriteString("[output truncated]\n")
		return
	}
	b.buf.WriteString(line)
	b.buf.WriteByte('\n')
}

func (b *logBuffer) Bytes() []byte { return b.buf.Bytes() }
