package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/agusx1211/hitlctl/model"
	"github.com/agusx1211/hitlctl/render"
	"github.com/agusx1211/hitlctl/session"
	"github.com/spf13/cobra"
)

const settlePollInterval = 20 * time.Millisecond

func newChatCmd(cfgPath func() string) *cobra.Command {
	var (
		threadID     string
		forceColor   bool
		forceNoColor bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive session on a new or existing thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if forceColor && forceNoColor {
				return errors.New("--color and --no-color cannot be used together")
			}
			cfg, err := loadConfig(cfgPath())
			if err != nil {
				return err
			}
			deps, err := buildDeps(cfg, cfg.Relay.Enabled)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			p := render.NewPrinter(out, render.Width(out), resolveColorChoice(out, forceColor, forceNoColor))
			return chat(cmd.Context(), deps, threadID, cmd.InOrStdin(), p, cmd.ErrOrStderr())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&threadID, "thread", "", "thread to resume (empty starts a new one)")
	flags.BoolVar(&forceColor, "color", false, "force colored output")
	flags.BoolVar(&forceNoColor, "no-color", false, "disable colored output")
	return cmd
}

func resolveColorChoice(out io.Writer, force, disable bool) bool {
	switch {
	case force:
		return true
	case disable:
		return false
	}
	return render.ShouldUseColor(out)
}

func chat(parent context.Context, deps *runtimeDeps, threadID string, in io.Reader, p *render.Printer, errOut io.Writer) error {
	ctx, cancel := context.WithCancel(parent)
	var wg sync.WaitGroup
	defer shutdown(deps, cancel, &wg, errOut)
	watchSignals(ctx, cancel, errOut)

	if deps.relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := deps.relay.Start(ctx); err != nil {
				log.Printf("[hitlctl] relay stopped: %v", err)
			}
		}()
	}

	sess, err := deps.registry.Open(ctx, threadID)
	if err != nil {
		return fmt.Errorf("open thread: %w", err)
	}
	p.Line("thread %s", sess.ThreadID())
	p.Entries(sess.Entries())

	events, unsub := sess.Events().Subscribe()
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for ev := range events {
			renderEvent(p, ev)
		}
	}()

	lines := readLines(in)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				waitSettled(ctx, sess)
				break loop
			}
			if handleLine(ctx, sess, p, line) {
				break loop
			}
		}
	}
	unsub()
	<-rendered
	return nil
}

// handleLine applies one line of input and reports whether the operator quit.
func handleLine(ctx context.Context, sess *session.Session, p *render.Printer, line string) bool {
	c, err := parseCommand(line)
	if err != nil {
		p.Error(err)
		return false
	}
	switch c.kind {
	case cmdSend:
		err = sess.Send(ctx, c.text)
	case cmdApprove:
		err = sess.Approve(ctx)
	case cmdReject:
		err = sess.Reject(ctx, c.text)
	case cmdEdit:
		err = sess.Edit(ctx, c.toolCallID, c.args)
	case cmdHistory:
		p.Entries(sess.Entries())
	case cmdState:
		p.State(sess.State())
		p.Pending(sess.Pending())
	case cmdHelp:
		p.Line("%s", chatHelp)
	case cmdQuit:
		return true
	}
	if err != nil {
		p.Error(err)
	}
	return false
}

func renderEvent(p *render.Printer, ev session.Event) {
	switch ev.Type {
	case session.EventEntry:
		if ev.Entry != nil {
			p.Entry(*ev.Entry)
		}
	case session.EventPending:
		p.Pending(ev.Pending)
	case session.EventState:
		if ev.State.Approval == model.StateIdle {
			p.State(ev.State)
		}
	case session.EventError:
		if ev.Err != nil {
			p.Error(ev.Err)
		}
	}
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

// waitSettled blocks while a run is streaming so piped input sees its answer.
func waitSettled(ctx context.Context, sess *session.Session) {
	t := time.NewTicker(settlePollInterval)
	defer t.Stop()
	for sess.State().Approval == model.StateRunning {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// watchSignals cancels ctx on the first SIGINT/SIGTERM; a second one forces
// an exit.
func watchSignals(ctx context.Context, cancel context.CancelFunc, errOut io.Writer) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			fmt.Fprintln(errOut, "shutting down")
			cancel()
			stop := watchSecondSignal(sigCh, errOut)
			time.Sleep(shutdownTimeout)
			stop()
		case <-ctx.Done():
		}
	}()
}
