// Package renderer invokes the external receipt renderer and enforces its
// contract: exit status 0 and every declared artifact written by this run.
package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/m3rciful/receiptbot/core/logger"
	"github.com/m3rciful/receiptbot/internal/flows"
)

// Gateway turns a completed payload into artifact paths ordered as the flow declares them.
type Gateway interface {
	Render(ctx context.Context, payload flows.Payload, flow *flows.Flow) ([]string, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, payload flows.Payload, flow *flows.Flow) ([]string, error)

// Render calls f.
func (f GatewayFunc) Render(ctx context.Context, payload flows.Payload, flow *flows.Flow) ([]string, error) {
	return f(ctx, payload, flow)
}

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxStderr = 16 * 1024
	waitDelay        = 2 * time.Second
)

// Options configures a Subprocess gateway.
type Options struct {
	// Command is an already resolved executable, see Resolve.
	Command        string
	ScriptsDir     string
	Timeout        time.Duration
	MaxStderrBytes int
	// Env is appended to the parent environment.
	Env []string
	// StageDir, when set, receives a private copy of every successful render's
	// artifacts so a later render of the same flow cannot overwrite them.
	// Callers release staged files with Cleanup.
	StageDir string
}

// Subprocess runs `<command> <scripts_dir>/<script> <json payload>` in the script's directory.
// Renders of the same flow are serialised because they write the same files.
type Subprocess struct {
	opts  Options
	locks sync.Map // flow key -> chan struct{}
}

// NewSubprocess validates opts and returns a gateway.
func NewSubprocess(opts Options) (*Subprocess, error) {
	if strings.TrimSpace(opts.Command) == "" {
		return nil, &Error{Kind: KindLaunchError, Message: "renderer command is empty"}
	}
	dir, err := filepath.Abs(opts.ScriptsDir)
	if err != nil {
		return nil, fmt.Errorf("renderer: scripts dir: %w", err)
	}
	opts.ScriptsDir = dir
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxStderrBytes <= 0 {
		opts.MaxStderrBytes = defaultMaxStderr
	}
	return &Subprocess{opts: opts}, nil
}

// ScriptPath returns the absolute path of the flow's script.
func (s *Subprocess) ScriptPath(flow *flows.Flow) string {
	return filepath.Join(s.opts.ScriptsDir, flow.Script)
}

// CheckScripts verifies that every flow's script exists.
func (s *Subprocess) CheckScripts(catalog *flows.Catalog) error {
	_, err := s.MissingScripts(catalog)
	return err
}

// MissingScripts returns the ids of flows whose script is absent, in catalog
// order, with the reasons joined in err.
func (s *Subprocess) MissingScripts(catalog *flows.Catalog) ([]string, error) {
	var (
		ids  []string
		errs []error
	)
	for _, id := range catalog.IDs() {
		flow, err := catalog.Lookup(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := checkScript(s.ScriptPath(flow)); err != nil {
			ids = append(ids, id)
			errs = append(errs, fmt.Errorf("flow %s: script %s: %w", id, s.ScriptPath(flow), err))
		}
	}
	return ids, errors.Join(errs...)
}

// Render runs the flow's script with payload and returns its artifacts.
func (s *Subprocess) Render(ctx context.Context, payload flows.Payload, flow *flows.Flow) ([]string, error) {
	start := time.Now()
	paths, err := s.render(ctx, payload, flow)
	logResult(ctx, flow, paths, err, time.Since(start))
	return paths, err
}

func (s *Subprocess) render(ctx context.Context, payload flows.Payload, flow *flows.Flow) ([]string, error) {
	script := s.ScriptPath(flow)
	workDir := filepath.Dir(script)
	if err := checkScript(script); err != nil {
		return nil, &Error{Kind: KindLaunchError, Message: "script " + script, Err: err}
	}

	arg, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindLaunchError, Message: "encode payload", Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	unlock, err := s.lock(runCtx, workDir+"\x00"+flow.ID)
	if err != nil {
		return nil, timeoutError(runCtx, s.opts.Timeout)
	}
	defer unlock()

	var stderr, stdout bytes.Buffer
	cmd := exec.CommandContext(runCtx, s.opts.Command, script, string(arg))
	cmd.Dir = workDir
	if len(s.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), s.opts.Env...)
	}
	cmd.Stdout = &limitedWriter{w: &stdout, max: int64(s.opts.MaxStderrBytes)}
	cmd.Stderr = &limitedWriter{w: &stderr, max: int64(s.opts.MaxStderrBytes)}
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	if err := clearArtifacts(workDir, flow.Artifacts); err != nil {
		return nil, &Error{Kind: KindLaunchError, Message: "clear previous artifacts", Err: err}
	}
	logger.Debug(ctx, logger.CompRenderer, "render.start",
		slog.String("flow_id", flow.ID),
		slog.String("script", flow.Script),
	)

	runErr := cmd.Run()
	if runCtx.Err() != nil {
		return nil, timeoutError(runCtx, s.opts.Timeout)
	}
	if runErr != nil && !waitDelayOnly(runErr, cmd) {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = exitErr.Error()
			}
			return nil, &Error{Kind: KindRendererError, Message: msg, ExitCode: exitErr.ExitCode(), Err: runErr}
		}
		return nil, &Error{Kind: KindLaunchError, Message: "start " + s.opts.Command, Err: runErr}
	}

	if out := strings.TrimSpace(stdout.String()); out != "" && logger.ShouldSampleDebug() {
		logger.Debug(ctx, logger.CompRenderer, "render.stdout",
			slog.String("flow_id", flow.ID),
			slog.String("payload", logger.SanitizeLimit(out, 256)),
		)
	}
	paths, err := collectArtifacts(workDir, flow.Artifacts)
	if err != nil || s.opts.StageDir == "" {
		return paths, err
	}
	return stage(s.opts.StageDir, flow.ID, paths)
}

// clearArtifacts removes the previous run's outputs so that only files written
// by this run are collected. Runs under the flow lock.
func clearArtifacts(dir string, names []string) error {
	for _, name := range names {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func collectArtifacts(dir string, names []string) ([]string, error) {
	paths := make([]string, 0, len(names))
	var missing []string
	for _, name := range names {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			missing = append(missing, name)
			continue
		}
		paths = append(paths, p)
	}
	if len(missing) > 0 {
		return nil, &Error{
			Kind:    KindMissingArtifact,
			Message: fmt.Sprintf("%d of %d artifacts not written: %s", len(missing), len(names), strings.Join(missing, ", ")),
			Missing: missing,
		}
	}
	return paths, nil
}

const stagePrefix = "receipt-render-"

// stage copies paths into a fresh directory under dir. Runs under the flow lock.
func stage(dir, flowID string, paths []string) ([]string, error) {
	tmp, err := os.MkdirTemp(dir, stagePrefix+flowID+"-")
	if err != nil {
		return nil, &Error{Kind: KindMissingArtifact, Message: "stage artifacts", Err: err}
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		dst := filepath.Join(tmp, filepath.Base(p))
		if err := copyFile(p, dst); err != nil {
			_ = os.RemoveAll(tmp)
			return nil, &Error{Kind: KindMissingArtifact, Message: "stage " + filepath.Base(p), Missing: []string{filepath.Base(p)}, Err: err}
		}
		out = append(out, dst)
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Cleanup removes the staging directory of paths returned by a staging gateway.
// Paths outside a staging directory are left untouched.
func Cleanup(paths []string) error {
	seen := make(map[string]struct{}, 1)
	var errs []error
	for _, p := range paths {
		dir := filepath.Dir(p)
		if !strings.HasPrefix(filepath.Base(dir), stagePrefix) {
			continue
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Subprocess) lock(ctx context.Context, key string) (func(), error) {
	v, _ := s.locks.LoadOrStore(key, make(chan struct{}, 1))
	sem := v.(chan struct{})
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func timeoutError(ctx context.Context, budget time.Duration) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: fmt.Sprintf("exceeded %s", budget), Err: err}
	}
	return &Error{Kind: KindTimeout, Message: "cancelled", Err: err}
}

// waitDelayOnly reports a clean exit whose pipes were held open by a leftover descendant.
func waitDelayOnly(err error, cmd *exec.Cmd) bool {
	return errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success()
}

func logResult(ctx context.Context, flow *flows.Flow, paths []string, err error, took time.Duration) {
	attrs := []slog.Attr{
		slog.String("flow_id", flow.ID),
		slog.Duration("duration", logger.RoundMS(took)),
	}
	if err == nil {
		attrs = append(attrs,
			slog.String("status", "ok"),
			slog.String("outcome", "ok"),
			slog.Int("artifacts", len(paths)),
		)
		logger.Info(ctx, logger.CompRenderer, "render.done", attrs...)
		return
	}
	attrs = append(attrs,
		slog.String("status", "fail"),
		slog.String("outcome", "fail"),
		slog.String("err", logger.SanitizeLimit(err.Error(), 512)),
	)
	var re *Error
	if errors.As(err, &re) {
		attrs = append(attrs, slog.String("kind", string(re.Kind)))
		if re.Kind == KindRendererError {
			attrs = append(attrs, slog.Int("exit_code", re.ExitCode))
		}
		if len(re.Missing) > 0 {
			attrs = append(attrs, slog.String("missing", strings.Join(re.Missing, ",")))
		}
	}
	logger.Warn(ctx, logger.CompRenderer, "render.done", attrs...)
}

// limitedWriter keeps the first max bytes and discards the rest.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	remaining := lw.max - lw.written
	if remaining <= 0 {
		lw.discarded += int64(n)
		return n, nil
	}
	if int64(n) > remaining {
		lw.discarded += int64(n) - remaining
		p = p[:remaining]
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	if err != nil {
		return written, err
	}
	return n, nil
}
