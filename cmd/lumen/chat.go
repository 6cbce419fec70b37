package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"lumen-agent/internal/adapter/tui/theme"
	"lumen-agent/internal/adapter/tui/uxerror"
	"lumen-agent/internal/domain"
	"lumen-agent/internal/usecase"
)

func buildChatCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat in the terminal.

Type a message and press enter. Ctrl-C stops a running answer; at the
prompt it exits. Lines starting with / are commands, see /help.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, *configPath)
		},
	}
}

func runChat(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	a.watchSkills(ctx)
	if err := a.startScheduler(ctx, nil); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	r := newREPL(a, cmd.OutOrStdout())
	return r.run(ctx, cmd.InOrStdin(), sigs)
}

// repl is one terminal conversation.
type repl struct {
	app         *app
	out         io.Writer
	session     *usecase.Session
	attachments *usecase.MemoryAttachmentStore
	lastTurn    string

	// midLine is set while streamed output has not ended with a newline.
	midLine bool
	status  domain.Status
}

func newREPL(a *app, out io.Writer) *repl {
	return &repl{
		app:         a,
		out:         out,
		session:     usecase.NewSession(),
		attachments: usecase.NewMemoryAttachmentStore(),
	}
}

func (r *repl) run(ctx context.Context, in io.Reader, sigs <-chan os.Signal) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintf(r.out, "%s %s\n", theme.BotLabel.Render(theme.SymbolBot), theme.Dim.Render("ready. /help lists commands."))
	for {
		r.prompt()
		select {
		case <-ctx.Done():
			return nil
		case <-sigs:
			fmt.Fprintln(r.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				if quit := r.command(line); quit {
					return nil
				}
				continue
			}
			r.send(ctx, line, sigs)
		}
	}
}

func (r *repl) prompt() {
	fmt.Fprintf(r.out, "%s ", theme.UserLabel.Render(theme.SymbolUser+" "+theme.SymbolArrowR))
}

// send runs one turn. An interrupt while it runs stops the turn instead of
// leaving the REPL.
func (r *repl) send(ctx context.Context, text string, sigs <-chan os.Signal) {
	history := append(r.session.Messages(), domain.Message{Role: domain.RoleUser, Content: text})
	r.midLine, r.status = false, ""

	type outcome struct {
		res *usecase.TurnResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.app.agent.RunTurn(ctx, usecase.TurnRequest{
			Messages:    history,
			Tools:       r.app.toolContext(r.attachments),
			Recent:      r.session.RecentSkills(),
			OnText:      r.onText,
			OnReasoning: r.onReasoning,
			OnStatus:    r.onStatus,
		})
		done <- outcome{res, err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-sigs:
		r.app.agent.Stop()
		o = <-done
	}
	r.finish(text, o.res, o.err)
}

func (r *repl) onText(fragment string) {
	if !r.midLine {
		fmt.Fprintf(r.out, "%s ", theme.BotLabel.Render(theme.SymbolBot+":"))
	}
	fmt.Fprint(r.out, fragment)
	r.midLine = !strings.HasSuffix(fragment, "\n")
}

func (r *repl) onReasoning(fragment string) {
	fmt.Fprint(r.out, theme.Reasoning.Render(fragment))
	r.midLine = !strings.HasSuffix(fragment, "\n")
}

func (r *repl) onStatus(s domain.Status) {
	if s == r.status || s == domain.StatusIdle || s == domain.StatusGenerating {
		r.status = s
		return
	}
	r.status = s
	r.endLine()
	fmt.Fprintln(r.out, theme.StatusStyle(s).Render(theme.SymbolInfo+" "+string(s)+theme.SymbolEllipsis))
}

func (r *repl) endLine() {
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
}

func (r *repl) finish(text string, res *usecase.TurnResult, err error) {
	r.endLine()
	if res == nil {
		fmt.Fprintln(r.out, theme.TextError.Render(uxerror.Humanize(err).Render()))
		return
	}
	r.lastTurn = res.TurnID

	if res.Status != domain.TurnCancelled {
		r.session.AddMessage(domain.Message{Role: domain.RoleUser, Content: text})
		r.session.Record(res)
		if n := r.app.cfg.Agent.MaxHistoryMessages; n > 0 {
			r.session.Truncate(n)
		}
	}

	meta := fmt.Sprintf("%s %s %s %d round(s) %s %s",
		res.Agent, theme.SymbolBullet, res.Status, res.Iterations, theme.SymbolBullet, res.Duration.Round(time.Millisecond))
	if len(res.Skills) > 0 {
		meta += " " + theme.SymbolBullet + " skills: " + strings.Join(res.Skills, ", ")
	}
	fmt.Fprintln(r.out, theme.TurnStatusStyle(res.Status).Render(meta))
	for _, run := range res.ToolRuns {
		mark := theme.TextSuccess.Render(theme.SymbolSuccess)
		if !run.Result.Success {
			mark = theme.TextError.Render(theme.SymbolError)
		}
		fmt.Fprintf(r.out, "  %s %s\n", mark, theme.ToolLabel.Render(string(run.Call.Tool)))
	}
	if res.Warning != "" {
		fmt.Fprintln(r.out, theme.TextWarning.Render(theme.SymbolWarning+" "+res.Warning))
	}
	if err != nil && !errors.Is(err, domain.ErrTurnCancelled) {
		fmt.Fprintln(r.out, theme.Dim.Render(uxerror.Humanize(err).Render()))
	}
}

const replHelp = `/reset          forget the conversation
/good, /bad     rate the last answer
/attach <path>  attach an image or file for the next turns
/skills         list indexed skills
/scores         show learned routing scores
/exit           quit`

// command handles a slash command and reports whether the REPL should exit.
func (r *repl) command(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/exit", "/quit":
		return true
	case "/help":
		fmt.Fprintln(r.out, theme.Dim.Render(replHelp))
	case "/reset":
		r.session.Reset()
		r.attachments.Clear()
		r.lastTurn = ""
		r.ok("conversation cleared")
	case "/good", "/bad":
		if r.lastTurn == "" {
			r.fail(errors.New("nothing to rate yet"))
			break
		}
		if err := r.app.agent.RecordFeedback(r.lastTurn, name == "/good"); err != nil {
			r.fail(err)
			break
		}
		r.ok("feedback recorded")
	case "/attach":
		att, err := readAttachment(arg)
		if err != nil {
			r.fail(err)
			break
		}
		r.attachments.Set(att)
		r.ok(fmt.Sprintf("attached %s (%s, id %s)", att.Name, att.MimeType, att.ID))
	case "/skills":
		printSkillList(r.out, r.app.indexedSkills())
	case "/scores":
		printScores(r.out, r.app.router.Profiles(), r.app.router.Scores())
	default:
		r.fail(fmt.Errorf("unknown command %s, try /help", name))
	}
	return false
}

func (r *repl) ok(msg string) {
	fmt.Fprintln(r.out, theme.TextSuccess.Render(theme.SymbolSuccess)+" "+msg)
}

func (r *repl) fail(err error) {
	fmt.Fprintln(r.out, theme.TextError.Render(theme.SymbolError)+" "+err.Error())
}

const maxAttachmentBytes = 20 << 20

func readAttachment(path string) (domain.Attachment, error) {
	if path == "" {
		return domain.Attachment{}, fmt.Errorf("%w: /attach needs a file path", domain.ErrInvalidInput)
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.Attachment{}, err
	}
	if info.IsDir() || info.Size() > maxAttachmentBytes {
		return domain.Attachment{}, fmt.Errorf("%w: %s is not a file under %d MB", domain.ErrInvalidInput, path, maxAttachmentBytes>>20)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Attachment{}, err
	}
	mt := mime.TypeByExtension(filepath.Ext(path))
	if mt == "" {
		mt = "application/octet-stream"
	}
	return domain.Attachment{
		ID:       ulid.Make().String(),
		Name:     filepath.Base(path),
		MimeType: mt,
		Data:     data,
	}, nil
}
