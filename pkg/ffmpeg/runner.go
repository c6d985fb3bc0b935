package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Result 一次子进程执行的结果
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner 执行 ffmpeg 命令。
// 非零退出码时同时返回 Result 和 *ExitError；context 取消时子进程会被杀掉，返回 context 的错误。
type Runner interface {
	Run(ctx context.Context, args ...string) (*Result, error)
}

// ExitError 子进程以非零状态退出
type ExitError struct {
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if len(msg) > 512 {
		msg = msg[len(msg)-512:]
	}
	if msg == "" {
		return fmt.Sprintf("ffmpeg exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("ffmpeg exited with status %d: %s", e.ExitCode, msg)
}

// ExecRunner 基于 os/exec 的 Runner
type ExecRunner struct {
	path string
	// WaitDelay 进程被杀后等待输出管道关闭的上限
	WaitDelay time.Duration
	log       *logrus.Entry
}

// NewExecRunner 创建 Runner，path 为 ffmpeg 可执行文件路径
func NewExecRunner(path string) *ExecRunner {
	return &ExecRunner{
		path:      path,
		WaitDelay: 2 * time.Second,
		log:       logrus.WithField("component", "ffmpeg"),
	}
}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.log.Debugf("执行: %s %s", r.path, strings.Join(args, " "))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.WaitDelay

	err := cmd.Run()
	res := &Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}
	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ExitError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
	}
	return res, fmt.Errorf("failed to run %s: %w", r.path, err)
}
