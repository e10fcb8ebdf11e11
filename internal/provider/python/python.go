package python

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/lacquerai/sentiment/internal/provider"
	"github.com/lacquerai/sentiment/internal/sentiment"
	"github.com/rs/zerolog/log"
)

//go:embed worker.py
var workerScript string

const readyLine = "READY"

var versionPattern = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)

// lineBreaks are the separators python's universal newline mode splits on
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// ErrWorkerExited is returned when the worker process is gone
var ErrWorkerExited = errors.New("python worker exited")

// Config contains configuration for the Python provider
type Config struct {
	// Interpreter is the python executable. When empty python3 and python are tried.
	Interpreter string `yaml:"interpreter"`
	// MinVersion is the lowest interpreter version accepted
	MinVersion string `yaml:"min_version"`
	// Script replaces the embedded worker script
	Script string `yaml:"script"`
	// Command runs a custom worker instead of the interpreter. It must speak
	// the same line protocol.
	Command         []string      `yaml:"command"`
	Env             []string      `yaml:"env"`
	Device          int           `yaml:"device"`
	Truncation      bool          `yaml:"truncation"`
	LoadTimeout     time.Duration `yaml:"load_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		MinVersion:      "3.8",
		Device:          -1,
		LoadTimeout:     10 * time.Minute,
		ShutdownTimeout: 5 * time.Second,
	}
}

// workerResponse is one line written by the worker after READY
type workerResponse struct {
	Label string   `json:"label"`
	Score *float64 `json:"score"`
	Error string   `json:"error"`
}

// Provider runs a transformers pipeline in a long-lived Python child process.
type Provider struct {
	name   string
	model  string
	config *Config

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	quit   chan struct{}
	done   chan struct{}
	readMu sync.Mutex
	// pending counts responses still owed for requests that were abandoned
	pending int

	stderrMu   sync.Mutex
	stderrTail string

	closeOnce sync.Once
	closeErr  error
}

// NewProvider starts the worker for model and blocks until it reports READY.
func NewProvider(ctx context.Context, model string, config *Config) (*Provider, error) {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.MinVersion == "" {
		config.MinVersion = defaults.MinVersion
	}
	if config.LoadTimeout == 0 {
		config.LoadTimeout = defaults.LoadTimeout
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	if model == "" {
		return nil, errors.New("model name is required")
	}

	args, err := workerCommand(ctx, model, config)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		name:   "python",
		model:  model,
		config: config,
		lines:  make(chan string),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	if err := p.start(args); err != nil {
		return nil, err
	}

	if err := p.waitReady(ctx); err != nil {
		p.kill()
		return nil, err
	}

	log.Info().
		Str("model", model).
		Int("pid", p.cmd.Process.Pid).
		Msg("Python worker ready")

	return p, nil
}

// workerCommand builds the argv of the worker process
func workerCommand(ctx context.Context, model string, config *Config) ([]string, error) {
	if len(config.Command) > 0 {
		return append(append([]string{}, config.Command...), "--model", model), nil
	}

	interpreter, version, err := FindInterpreter(ctx, config.Interpreter, config.MinVersion)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("interpreter", interpreter).
		Str("version", version.String()).
		Msg("Using Python interpreter")

	args := []string{interpreter, "-u"}
	if config.Script != "" {
		args = append(args, config.Script)
	} else {
		args = append(args, "-c", workerScript)
	}
	args = append(args, "--model", model, "--device", strconv.Itoa(config.Device))
	if config.Truncation {
		args = append(args, "--truncation")
	}

	return args, nil
}

// FindInterpreter locates a python executable satisfying ">= minVersion".
func FindInterpreter(ctx context.Context, interpreter, minVersion string) (string, *semver.Version, error) {
	constraint, err := semver.NewConstraint(">= " + minVersion)
	if err != nil {
		return "", nil, fmt.Errorf("invalid minimum python version %q: %w", minVersion, err)
	}

	candidates := []string{"python3", "python"}
	if interpreter != "" {
		candidates = []string{interpreter}
	}

	var lastErr error
	for _, candidate := range candidates {
		path, err := exec.LookPath(candidate)
		if err != nil {
			lastErr = err
			continue
		}

		out := bytes.Buffer{}
		cmd := exec.CommandContext(ctx, path, "--version")
		cmd.Stdout = &out
		cmd.Stderr = &out
		if err := cmd.Run(); err != nil {
			lastErr = fmt.Errorf("%s --version: %w", candidate, err)
			continue
		}

		version, err := ParseVersion(out.String())
		if err != nil {
			lastErr = err
			continue
		}

		if !constraint.Check(version) {
			lastErr = fmt.Errorf("%s is version %s, need >= %s", candidate, version, minVersion)
			continue
		}

		return path, version, nil
	}

	return "", nil, fmt.Errorf("no usable python interpreter found: %w", lastErr)
}

// ParseVersion extracts the version from `python --version` output, e.g.
// "Python 3.11.5" or "Python 3.13.0rc1".
func ParseVersion(output string) (*semver.Version, error) {
	match := versionPattern.FindString(output)
	if match == "" {
		return nil, fmt.Errorf("unrecognized python version output %q", strings.TrimSpace(output))
	}
	return semver.NewVersion(match)
}

func (p *Provider) start(args []string) error {
	cmd := exec.Command(args[0], args[1:]...) // #nosec G204 - interpreter and script come from local configuration
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8", "PYTHONUNBUFFERED=1")
	cmd.Env = append(cmd.Env, p.config.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("failed to start python worker: %w", err)
	}

	p.cmd = cmd
	p.stdin = stdin

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.readStdout(stdout)
	}()
	go func() {
		defer wg.Done()
		p.drainStderr(stderr)
	}()
	go func() {
		wg.Wait()
		close(p.done)
	}()

	return nil
}

func (p *Provider) readStdout(r io.Reader) {
	defer close(p.lines)

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			select {
			case p.lines <- line:
			case <-p.quit:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *Provider) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		log.Debug().Str("stream", "stderr").Msg(line)

		p.stderrMu.Lock()
		p.stderrTail = line
		p.stderrMu.Unlock()
	}
}

func (p *Provider) lastStderr() string {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()
	return p.stderrTail
}

func (p *Provider) exitedError() error {
	// stderr may still be draining the worker's last words
	select {
	case <-p.done:
	case <-time.After(time.Second):
	}

	if tail := p.lastStderr(); tail != "" {
		return fmt.Errorf("%w: %s", ErrWorkerExited, tail)
	}
	return ErrWorkerExited
}

func (p *Provider) waitReady(ctx context.Context) error {
	timer := time.NewTimer(p.config.LoadTimeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return fmt.Errorf("worker exited before ready: %w", p.exitedError())
			}
			if line == readyLine {
				return nil
			}
			if !isRecord(line) {
				log.Debug().Str("stream", "stdout").Msg(line)
				continue
			}

			var resp workerResponse
			if err := json.Unmarshal([]byte(line), &resp); err == nil && resp.Error != "" {
				return errors.New(resp.Error)
			}
			return fmt.Errorf("unexpected worker output before ready: %q", line)
		case <-timer.C:
			return fmt.Errorf("model %s did not load within %s", p.model, p.config.LoadTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// isRecord filters out stray prints from libraries sharing the worker's stdout
func isRecord(line string) bool {
	return strings.HasPrefix(line, "{")
}

// Classify sends text to the worker and waits for its answer. If ctx ends
// first the answer is discarded when it eventually arrives.
func (p *Provider) Classify(ctx context.Context, text string) (*sentiment.Classification, error) {
	// the worker decodes stdin strictly and dies on invalid utf-8
	text = strings.TrimSpace(lineBreaks.Replace(strings.ToValidUTF8(text, "\uFFFD")))
	if text == "" {
		return nil, sentiment.ErrEmptyText
	}

	p.readMu.Lock()
	defer p.readMu.Unlock()

	if _, err := io.WriteString(p.stdin, text+"\n"); err != nil {
		return nil, fmt.Errorf("failed to write to worker: %w", p.exitedError())
	}

	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return nil, p.exitedError()
			}
			if !isRecord(line) {
				log.Debug().Str("stream", "stdout").Msg(line)
				continue
			}
			if p.pending > 0 {
				p.pending--
				log.Debug().Str("line", line).Msg("Discarding stale worker response")
				continue
			}
			return decodeResponse(line)
		case <-ctx.Done():
			p.pending++
			return nil, ctx.Err()
		}
	}
}

func decodeResponse(line string) (*sentiment.Classification, error) {
	var resp workerResponse
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, fmt.Errorf("invalid worker response %q: %w", line, err)
	}

	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	if resp.Score == nil {
		return nil, fmt.Errorf("worker response has no score: %q", line)
	}

	return &sentiment.Classification{
		Label:      sentiment.Label(resp.Label),
		Confidence: *resp.Score,
	}, nil
}

// GetName returns the provider name
func (p *Provider) GetName() string {
	return p.name
}

// IsLocal reports that the model is loaded by the provider itself
func (p *Provider) IsLocal() bool {
	return true
}

// ListModels reports the loaded model
func (p *Provider) ListModels(ctx context.Context) ([]provider.Info, error) {
	return []provider.Info{{
		ID:          p.model,
		Name:        p.model,
		Provider:    p.name,
		Description: "transformers pipeline in a local python process",
		Features:    []string{"text-classification"},
	}}, nil
}

// Close closes the worker's stdin and waits for it to exit, killing it
// after ShutdownTimeout.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()
		close(p.quit)

		select {
		case <-p.done:
		case <-time.After(p.config.ShutdownTimeout):
			log.Warn().
				Int("pid", p.cmd.Process.Pid).
				Msg("Python worker did not exit, killing it")
			_ = p.cmd.Process.Kill()
			<-p.done
		}

		p.closeErr = p.cmd.Wait()
	})
	return p.closeErr
}

func (p *Provider) kill() {
	p.closeOnce.Do(func() {
		close(p.quit)
		_ = p.stdin.Close()
		_ = p.cmd.Process.Kill()
		<-p.done
		_ = p.cmd.Wait()
	})
}
