// Package shell exposes filesystem and shell access as tools: execute
// commands, read and write files, list directories, and inspect the
// environment. Paths are relative to a configured root; the command
// tool is dangerous and requires a policy allow-list entry.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/toolcall"
	"github.com/effective-security/toolgate/tools"
)

const (
	// MaxReadSize caps read_file contents.
	MaxReadSize = 100 * 1024
	// DefaultCommandTimeout bounds execute_command when the caller does
	// not pass one.
	DefaultCommandTimeout = 30 * time.Second
)

// Config for the shell tool set.
type Config struct {
	// Root is the directory all relative paths resolve under.
	// Empty means the process working directory.
	Root string `json:"root,omitempty" yaml:"root,omitempty" toml:"root"`
}

type provider struct {
	root string
}

// Tools returns the shell tool set.
func Tools(cfg Config) ([]tools.ITool, error) {
	root := cfg.Root
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}
	p := &provider{root: root}

	execTool, err := tools.NewFunc("execute_command", "Execute a shell command.", p.executeCommand)
	if err != nil {
		return nil, err
	}
	execTool.WithSideEffect(tools.SideEffectDangerous).WithActionArg("command")

	readTool, err := tools.NewFunc("read_file", "Read file contents (max 100KB).", p.readFile)
	if err != nil {
		return nil, err
	}
	readTool.WithIdempotent(true)

	writeTool, err := tools.NewFunc("write_file", "Write content to file (creates or overwrites).", p.writeFile)
	if err != nil {
		return nil, err
	}
	writeTool.WithSideEffect(tools.SideEffectMutating)

	listTool, err := tools.NewFunc("list_directory", "List directory contents with metadata.", p.listDirectory)
	if err != nil {
		return nil, err
	}
	listTool.WithIdempotent(true)

	envTool, err := tools.NewFunc("get_environment", "Get the working directory, runtime version, and OS info.", p.getEnvironment)
	if err != nil {
		return nil, err
	}
	envTool.WithIdempotent(true)

	return []tools.ITool{execTool, readTool, writeTool, listTool, envTool}, nil
}

// validPath accepts only relative paths that stay inside the root.
func validPath(path string) bool {
	if path == "" {
		return false
	}
	if filepath.IsAbs(path) {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

func (p *provider) resolve(path string) (string, error) {
	if !validPath(path) {
		return "", toolcall.NewError("invalid path: %s", path)
	}
	return filepath.Join(p.root, path), nil
}

type ExecuteCommandInput struct {
	Command    string `json:"command" yaml:"command" jsonschema:"description=Shell command to execute."`
	WorkingDir string `json:"working_dir,omitempty" yaml:"working_dir,omitempty" jsonschema:"description=Working directory for the command (default: .)."`
	Timeout    int    `json:"timeout,omitempty" yaml:"timeout,omitempty" jsonschema:"description=Command timeout in seconds (default: 30)."`
}

type ExecuteCommandOutput struct {
	Stdout     string `json:"stdout" yaml:"stdout"`
	Stderr     string `json:"stderr" yaml:"stderr"`
	ReturnCode int    `json:"returncode" yaml:"returncode"`
}

func (p *provider) executeCommand(ctx context.Context, req *ExecuteCommandInput) (*ExecuteCommandOutput, error) {
	if req.Command == "" {
		return nil, toolcall.NewError("invalid request: empty command")
	}

	workingDir := req.WorkingDir
	if workingDir == "" {
		workingDir = "."
	}
	dir := p.root
	if workingDir != "." {
		var err error
		dir, err = p.resolve(workingDir)
		if err != nil {
			return nil, err
		}
	}

	timeout := DefaultCommandTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", req.Command)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ExecuteCommandOutput{
			Stderr:     fmt.Sprintf("command timed out after %s", timeout),
			ReturnCode: 124,
		}, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExecuteCommandOutput{
				Stdout:     stdout.String(),
				Stderr:     stderr.String(),
				ReturnCode: exitErr.ExitCode(),
			}, nil
		}
		return nil, toolcall.NewError("command execution failed: %s", err.Error())
	}

	return &ExecuteCommandOutput{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ReturnCode: 0,
	}, nil
}

type ReadFileInput struct {
	Path string `json:"path" yaml:"path" jsonschema:"description=File path to read."`
}

type ReadFileOutput struct {
	Content string `json:"content" yaml:"content"`
}

func (p *provider) readFile(ctx context.Context, req *ReadFileInput) (*ReadFileOutput, error) {
	path, err := p.resolve(req.Path)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, toolcall.NewError("file not found: %s", req.Path)
		}
		return nil, toolcall.NewError("read failed: %s", err.Error())
	}
	if fi.IsDir() {
		return nil, toolcall.NewError("path is not a file: %s", req.Path)
	}
	if fi.Size() > MaxReadSize {
		return nil, toolcall.NewError("file too large: %d bytes (max %d)", fi.Size(), MaxReadSize)
	}

	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, toolcall.NewError("read failed: %s", err.Error())
	}
	if !utf8.Valid(bs) {
		return nil, toolcall.NewError("file is not valid UTF-8 text: %s", req.Path)
	}
	return &ReadFileOutput{Content: string(bs)}, nil
}

type WriteFileInput struct {
	Path    string `json:"path" yaml:"path" jsonschema:"description=File path to write."`
	Content string `json:"content" yaml:"content" jsonschema:"description=Content to write."`
}

type WriteFileOutput struct {
	Success bool   `json:"success" yaml:"success"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

func (p *provider) writeFile(ctx context.Context, req *WriteFileInput) (*WriteFileOutput, error) {
	path, err := p.resolve(req.Path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, toolcall.NewError("write failed: %s", err.Error())
	}
	if err := os.WriteFile(path, []byte(req.Content), 0o644); err != nil {
		return nil, toolcall.NewError("write failed: %s", err.Error())
	}
	return &WriteFileOutput{Success: true, Path: path}, nil
}

type ListDirectoryInput struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty" jsonschema:"description=Directory path (default: .)."`
}

type DirEntry struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Size     int64  `json:"size,omitempty" yaml:"size,omitempty"`
	Modified string `json:"modified,omitempty" yaml:"modified,omitempty"`
}

type ListDirectoryOutput struct {
	Path    string     `json:"path" yaml:"path"`
	Entries []DirEntry `json:"entries" yaml:"entries"`
}

func (p *provider) listDirectory(ctx context.Context, req *ListDirectoryInput) (*ListDirectoryOutput, error) {
	rel := req.Path
	if rel == "" {
		rel = "."
	}
	path := p.root
	if rel != "." {
		var err error
		path, err = p.resolve(rel)
		if err != nil {
			return nil, err
		}
	}

	items, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, toolcall.NewError("directory not found: %s", rel)
		}
		return nil, toolcall.NewError("list failed: %s", err.Error())
	}

	entries := make([]DirEntry, 0, len(items))
	for _, item := range items {
		entry := DirEntry{
			Name: item.Name(),
			Type: "file",
		}
		if item.IsDir() {
			entry.Type = "dir"
		}
		if fi, err := item.Info(); err == nil {
			if !item.IsDir() {
				entry.Size = fi.Size()
			}
			entry.Modified = fi.ModTime().UTC().Format(time.RFC3339)
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	return &ListDirectoryOutput{Path: path, Entries: entries}, nil
}

type GetEnvironmentInput struct{}

type GetEnvironmentOutput struct {
	Cwd       string `json:"cwd" yaml:"cwd"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	OS        string `json:"os" yaml:"os"`
	Arch      string `json:"arch" yaml:"arch"`
}

func (p *provider) getEnvironment(ctx context.Context, req *GetEnvironmentInput) (*GetEnvironmentOutput, error) {
	return &GetEnvironmentOutput{
		Cwd:       p.root,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}, nil
}
