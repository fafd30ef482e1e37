package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"c3ffi/internal/logger"
	"c3ffi/internal/toolchain"
	"c3ffi/internal/trace"
)

// ToolchainProvider yields the toolchain for a compile. toolchain.Session is
// the production implementation.
type ToolchainProvider interface {
	Toolchain(ctx context.Context, preferred string) (toolchain.Info, error)
}

// ProcessRunner executes one invocation. Executor is the production
// implementation.
type ProcessRunner interface {
	Run(ctx context.Context, inv Invocation) (*ExecutionResult, error)
}

// CompiledOutput is the result of a successful compile.
type CompiledOutput struct {
	Artifact Artifact

	// Linkage is nil for object files.
	Linkage *Linkage

	// Diagnostics holds non-fatal warnings and notes.
	Diagnostics []Diagnostic

	// Sources are the resolved inputs in argument order.
	Sources []string

	// CacheHit is true when the runner was skipped.
	CacheHit bool

	Duration   time.Duration
	Invocation Invocation
}

// Compiler runs compile requests within one build session.
//
// The flow for each request:
//  1. Validate the request
//  2. Look up the toolchain (memoized by the provider)
//  3. Claim the output path
//  4. Resolve sources
//  5. Build the invocation
//  6. Consult the cache, if any; on a hit restore the artifact and stop
//  7. Remove any previous output and run the toolchain
//  8. Classify diagnostics
//  9. On exit 0 with the artifact present: register it and store it in the cache.
//     Otherwise remove any partial output and fail with ErrCompilationFailed.
//
// A Compiler is safe for concurrent use.
type Compiler struct {
	// SessionID tags log lines from this session.
	SessionID string

	Toolchains ToolchainProvider
	Runner     ProcessRunner
	Registry   *Registry

	// Cache is optional. Its failures are logged and otherwise ignored.
	Cache    Cache
	Hasher   *KeyHasher
	Replayer *Replayer

	// Trace receives pipeline events. Nil disables tracing.
	Trace trace.Sink
}

// NewCompiler creates a Compiler with a fresh registry and session ID.
// toolchains may not be nil; cache may be.
func NewCompiler(toolchains ToolchainProvider, cache Cache) *Compiler {
	return &Compiler{
		SessionID:  uuid.NewString(),
		Toolchains: toolchains,
		Runner:     NewExecutor(nil),
		Registry:   NewRegistry(),
		Cache:      cache,
		Hasher:     NewKeyHasher(),
		Replayer:   NewReplayer(),
	}
}

// Compile runs req to completion.
//
// Errors are *CompileError values; match the kind with errors.Is.
func (c *Compiler) Compile(ctx context.Context, req Request) (*CompiledOutput, error) {
	start := time.Now()
	log := logger.With("session", c.SessionID, "name", req.Name)

	req, tc, outPath, err := c.plan(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Target != "" && !tc.SupportsTarget(req.Target) {
		log.Warn("target not in the known target list, passing through", "target", req.Target)
	}

	release, err := c.Registry.Claim(outPath)
	if err != nil {
		return nil, err
	}
	defer release()

	c.record(trace.Event{Kind: trace.EventToolchainLocated, Output: outPath, Detail: tc.Version.String()})

	sources, err := NewSourceResolver(req.BaseDir, req.Exclude).Resolve(req.Sources)
	if err != nil {
		c.record(trace.Event{Kind: trace.EventFailed, Output: outPath, Detail: errorKindName(err)})
		return nil, err
	}
	logger.LogSources(outPath, len(sources))
	c.record(trace.Event{Kind: trace.EventSourcesResolved, Output: outPath, Sources: sources})

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, spawnError("creating output directory", err)
	}

	inv := BuildInvocation(req, sources, tc)

	var key CacheKey
	if c.Cache != nil {
		if key, err = c.Hasher.Key(inv); err != nil {
			logger.LogCacheError("key", err)
			key = ""
		}
	}
	if key != "" {
		if out, ok := c.fromCache(ctx, req, inv, key, start); ok {
			return out, nil
		}
	}

	// The output check after a zero exit must only see this run's file.
	if err := os.Remove(outPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.record(trace.Event{Kind: trace.EventFailed, Output: outPath, Detail: ErrSpawn.Error()})
		return nil, spawnError("removing previous output", err)
	}

	logger.LogInvocation(inv.Executable, inv.Args)
	res, err := c.Runner.Run(ctx, inv)
	if err != nil {
		c.discard(outPath)
		c.record(trace.Event{Kind: trace.EventFailed, Output: outPath, Detail: ErrSpawn.Error()})
		var ce *CompileError
		if !errors.As(err, &ce) {
			err = spawnError(inv.Executable, err)
		}
		return nil, err
	}

	diags := append(ParseDiagnostics(string(res.Stdout)), ParseDiagnostics(string(res.Stderr))...)
	for _, d := range diags {
		logger.LogDiagnostic(string(d.Severity), d.File, d.Line, d.Message)
	}
	c.record(trace.Event{Kind: trace.EventExecuted, Output: outPath, Detail: fmt.Sprintf("exit %d", res.ExitCode)})

	if res.ExitCode != 0 {
		c.discard(outPath)
		if !HasErrors(diags) {
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Message:  fmt.Sprintf("%s exited with status %d", filepath.Base(inv.Executable), res.ExitCode),
			})
		}
		c.record(trace.Event{Kind: trace.EventFailed, Output: outPath, Detail: ErrCompilationFailed.Error()})
		logger.LogCompileComplete(outPath, false, time.Since(start).String())
		return nil, compilationFailed(fmt.Sprintf("%s (exit status %d)", req.Name, res.ExitCode), diags)
	}

	info, err := os.Stat(outPath)
	if err != nil || info.IsDir() {
		c.Registry.Forget(outPath)
		diags = append(diags, Diagnostic{
			Severity: SeverityError,
			File:     outPath,
			Message:  "toolchain reported success but produced no artifact",
		})
		c.record(trace.Event{Kind: trace.EventFailed, Output: outPath, Detail: ErrCompilationFailed.Error()})
		return nil, compilationFailed(fmt.Sprintf("%s: missing output", req.Name), diags)
	}

	artifact := Artifact{
		Name:     req.Name,
		Kind:     req.Kind,
		Path:     outPath,
		Size:     info.Size(),
		CacheKey: key,
		Request:  req,
	}
	c.Registry.Register(artifact)
	c.record(trace.Event{Kind: trace.EventArtifactRegistered, Output: outPath})

	if key != "" {
		c.store(ctx, key, artifact, res)
	}

	out := &CompiledOutput{
		Artifact:    artifact,
		Linkage:     linkageFor(artifact),
		Diagnostics: diags,
		Sources:     sources,
		Duration:    time.Since(start),
		Invocation:  inv,
	}
	logger.LogCompileComplete(outPath, true, out.Duration.String())
	return out, nil
}

// plan validates req and computes its declared output path.
func (c *Compiler) plan(ctx context.Context, req Request) (Request, toolchain.Info, string, error) {
	if err := req.Validate(); err != nil {
		return req, toolchain.Info{}, "", err
	}
	req = req.normalized()

	tc, err := c.Toolchains.Toolchain(ctx, req.Compiler)
	if err != nil {
		return req, toolchain.Info{}, "", toolchainError(err)
	}
	if req.OutputDir, err = c.absDir(req.BaseDir, req.OutputDir); err != nil {
		return req, toolchain.Info{}, "", invalidf("output directory: %v", err)
	}
	return req, tc, OutputPath(req, tc), nil
}

// CompileAll compiles independent requests in parallel. Results are returned
// in request order; a failed request leaves a nil slot and contributes to
// the joined error.
//
// Requests declaring the same output path are rejected up front: the first
// one compiles, later ones fail with ErrDuplicateOutputPath.
func (c *Compiler) CompileAll(ctx context.Context, reqs []Request) ([]*CompiledOutput, error) {
	outs := make([]*CompiledOutput, len(reqs))
	errs := make([]error, len(reqs))

	owners := make(map[string]string, len(reqs))
	for i, req := range reqs {
		_, _, outPath, err := c.plan(ctx, req)
		if err != nil {
			// Compile reports it.
			continue
		}
		k := registryKey(outPath)
		if first, ok := owners[k]; ok {
			errs[i] = fmt.Errorf("%s: %w", req.Name, &CompileError{
				Kind: ErrDuplicateOutputPath,
				Msg:  fmt.Sprintf("%s (also produced by %s)", outPath, first),
			})
			continue
		}
		owners[k] = req.Name
	}

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range reqs {
		if errs[i] != nil {
			continue
		}
		i := i
		g.Go(func() error {
			outs[i], errs[i] = c.Compile(ctx, reqs[i])
			if errs[i] != nil {
				errs[i] = fmt.Errorf("%s: %w", reqs[i].Name, errs[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return outs, errors.Join(errs...)
}

// Artifacts lists every artifact registered in this session.
func (c *Compiler) Artifacts() []Artifact {
	return c.Registry.Artifacts()
}

func (c *Compiler) fromCache(ctx context.Context, req Request, inv Invocation, key CacheKey, start time.Time) (*CompiledOutput, bool) {
	entry, err := c.Cache.Get(ctx, key)
	if err != nil {
		logger.LogCacheError("get", err)
		return nil, false
	}
	if entry == nil || entry.OutputPath != inv.OutputPath {
		return nil, false
	}
	if _, err := c.Replayer.Restore(entry); err != nil {
		logger.LogCacheError("restore", err)
		return nil, false
	}

	logger.LogCacheHit(inv.OutputPath, key.String())
	c.record(trace.Event{Kind: trace.EventCacheHit, Output: inv.OutputPath})

	artifact := Artifact{
		Name:     req.Name,
		Kind:     req.Kind,
		Path:     inv.OutputPath,
		Size:     int64(len(entry.Content)),
		CacheKey: key,
		Request:  req,
	}
	c.Registry.Register(artifact)
	c.record(trace.Event{Kind: trace.EventArtifactRegistered, Output: inv.OutputPath})

	diags := append(ParseDiagnostics(string(entry.Stdout)), ParseDiagnostics(string(entry.Stderr))...)
	return &CompiledOutput{
		Artifact:    artifact,
		Linkage:     linkageFor(artifact),
		Diagnostics: diags,
		Sources:     inv.Sources,
		CacheHit:    true,
		Duration:    time.Since(start),
		Invocation:  inv,
	}, true
}

func (c *Compiler) store(ctx context.Context, key CacheKey, a Artifact, res *ExecutionResult) {
	content, err := os.ReadFile(a.Path)
	if err != nil {
		logger.LogCacheError("read artifact", err)
		return
	}
	entry := &CacheEntry{
		Key:        key,
		OutputPath: a.Path,
		Kind:       a.Kind,
		Stdout:     bytes.Clone(res.Stdout),
		Stderr:     bytes.Clone(res.Stderr),
		Content:    content,
	}
	if err := c.Cache.Put(ctx, entry); err != nil {
		logger.LogCacheError("put", err)
	}
}

// discard removes a partial artifact and any stale registration for it.
func (c *Compiler) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("removing partial output", "path", path, "err", err)
	}
	c.Registry.Forget(path)
}

func (c *Compiler) record(e trace.Event) {
	trace.SafeRecord(c.Trace, e)
}

func (c *Compiler) absDir(base, dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir), nil
	}
	if base != "" {
		dir = filepath.Join(base, dir)
	}
	return filepath.Abs(dir)
}

func linkageFor(a Artifact) *Linkage {
	if !a.Kind.IsLibrary() {
		return nil
	}
	return &Linkage{
		SearchDir: filepath.Dir(a.Path),
		LibName:   a.Name,
		Static:    a.Kind == KindStatic,
	}
}

// errorKindName returns the sentinel text of err's kind for trace details.
func errorKindName(err error) string {
	var ce *CompileError
	if errors.As(err, &ce) && ce.Kind != nil {
		return ce.Kind.Error()
	}
	return "error"
}
