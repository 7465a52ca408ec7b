package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gompi/gompi/log"
	"github.com/gompi/gompi/utils/iostream"
	"github.com/gompi/gompi/utils/xterm"
)

type localRunner struct {
	name          string
	color         xterm.Color
	logFilePrefix string
	verboseLog    bool
}

func (r localRunner) run(ctx context.Context, cmd *exec.Cmd) error {
	var wg sync.WaitGroup
	if stdout, err := cmd.StdoutPipe(); err == nil {
		wg.Add(1)
		go func() { r.streamPipe("stdout", stdout); wg.Done() }()
	} else {
		return err
	}
	if stderr, err := cmd.StderrPipe(); err == nil {
		wg.Add(1)
		go func() { r.streamPipe("stderr", stderr); wg.Done() }()
	} else {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan error)
	go func() {
		err := cmd.Wait()
		wg.Wait()
		done <- err
	}()
	select {
	case <-ctx.Done():
		cmd.Process.Kill()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (r localRunner) streamPipe(name string, in io.Reader) error {
	var ws []io.Writer
	if r.verboseLog {
		rName := r.name
		if r.color != nil {
			rName = r.color.S(rName)
		}
		ws = append(ws, xtermWriter{prefix: rName + "::" + name})
	}
	filename := name + ".log"
	if len(r.logFilePrefix) > 0 {
		filename = r.logFilePrefix + "-" + filename
	}
	ws = append(ws, iostream.NewLazyFile(filename))
	return iostream.Tee(in, ws...)
}

type xtermWriter struct {
	prefix string
}

func (x xtermWriter) Write(bs []byte) (int, error) {
	fmt.Fprintf(os.Stderr, "[%s] %s", x.prefix, string(bs))
	return len(bs), nil
}

// LocalRunAll runs all procs on this host, canceling the rest when one
// of them fails.
func LocalRunAll(ctx context.Context, ps []Proc, verboseLog bool, logDir string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	var fail int32
	for i, proc := range ps {
		wg.Add(1)
		go func(i int, proc Proc) {
			defer wg.Done()
			r := localRunner{
				name:          proc.Name,
				color:         xterm.BasicColors.Choose(i),
				verboseLog:    verboseLog,
				logFilePrefix: path.Join(logDir, strings.Replace(proc.Name, "/", "-", -1)),
			}
			if err := r.run(ctx, proc.Cmd()); err != nil {
				log.Errorf("%s #%s exited with error: %v", xterm.Warn.S("[E]"), proc.Name, err)
				atomic.AddInt32(&fail, 1)
				cancel()
				return
			}
			log.Infof("%s #%s finished successfully", xterm.Green.S("[I]"), proc.Name)
		}(i, proc)
	}
	wg.Wait()
	if fail != 0 {
		return fmt.Errorf("%d peers failed", fail)
	}
	return nil
}
