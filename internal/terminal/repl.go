// Package terminal is an interactive line-oriented presenter for one
// session. Lines starting with ':' are REPL commands; anything else is
// sent to the analysis engine.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/user/vernacular/internal/delivery"
	"github.com/user/vernacular/internal/gateway"
	"github.com/user/vernacular/internal/identity"
	"github.com/user/vernacular/internal/logging"
	"github.com/user/vernacular/internal/preview"
	"github.com/user/vernacular/internal/render"
	"github.com/user/vernacular/internal/session"
	"github.com/user/vernacular/internal/types"
)

const helpText = `:load <path>     add a CSV file to the data context
:drop <name>     remove a data source
:sources         list loaded sources
:preview <name>  show the first rows of a source
:status          show the session state
:logout          end the session
:quit            exit`

// Gateway is the part of gateway.Gateway the REPL needs.
type Gateway interface {
	Session() (*session.Orchestrator, error)
	Login(ctx context.Context, email, credential string) (*types.Identity, error)
	Logout(ctx context.Context) error
	Mode() identity.Mode
}

// REPL reads commands from in and writes the transcript to out.
type REPL struct {
	gw       Gateway
	previews *preview.Parser
	in       *bufio.Scanner
	styles   Styles
	log      *zap.Logger
	readFile func(string) ([]byte, error)

	mu      sync.Mutex
	out     io.Writer
	printed map[types.SessionID]int
}

// New creates a REPL.
func New(gw Gateway, previews *preview.Parser, in io.Reader, out io.Writer, logger *zap.Logger) *REPL {
	if previews == nil {
		previews = preview.New(preview.DefaultRows, logger)
	}
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &REPL{
		gw:       gw,
		previews: previews,
		in:       sc,
		styles:   NewStyles(out),
		log:      logging.Named(logger, "terminal"),
		readFile: os.ReadFile,
		out:      out,
		printed:  make(map[types.SessionID]int),
	}
}

// Run loops until :quit, end of input or ctx cancellation. While nobody is
// logged in it prompts for credentials.
func (r *REPL) Run(ctx context.Context) error {
	r.println(r.styles.Title.Render("VERNACULAR OPS"))
	if r.gw.Mode() == identity.ModeSimulated {
		r.println(r.styles.Muted.Render("mock auth mode: any email with an @ and a non-empty password works"))
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		sess, err := r.gw.Session()
		if errors.Is(err, gateway.ErrNoSession) {
			ok, err := r.login(ctx)
			if err != nil || !ok {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		r.flush(sess)
		line, ok := r.prompt("> ")
		if !ok {
			return nil
		}
		if line == "" {
			continue
		}
		if quit := r.dispatch(ctx, sess, line); quit {
			return nil
		}
	}
}

// Celebrate prints a celebration line. It is registered as a delivery
// handler.
func (r *REPL) Celebrate(_ context.Context, n delivery.Notification) error {
	r.println(r.styles.Accent.Render(fmt.Sprintf("*** strong %s insight, confidence %d%% ***",
		strings.ToLower(string(n.InsightType)), n.Confidence)))
	return nil
}

func (r *REPL) login(ctx context.Context) (bool, error) {
	email, ok := r.prompt("email: ")
	if !ok {
		return false, nil
	}
	password, ok := r.prompt("password: ")
	if !ok {
		return false, nil
	}

	if _, err := r.gw.Login(ctx, email, password); err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		r.log.Debug("login rejected", zap.Error(err))
		r.println(r.styles.Error.Render(identity.UserMessage(identity.CodeOf(err))))
	}
	return true, nil
}

func (r *REPL) dispatch(ctx context.Context, sess *session.Orchestrator, line string) bool {
	if !strings.HasPrefix(line, ":") {
		if !sess.Submit(ctx, line) {
			r.println(r.styles.Error.Render("still analyzing the previous command"))
		}
		return false
	}

	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "quit", "q":
		return true
	case "help":
		r.println(r.styles.Muted.Render(helpText))
	case "logout":
		if err := r.gw.Logout(ctx); err != nil {
			r.println(r.styles.Error.Render("logout failed: " + err.Error()))
		}
	case "load":
		r.load(sess, arg)
	case "drop":
		if !sess.Evict(arg) {
			r.println(r.styles.Error.Render(fmt.Sprintf("no source named %q", arg)))
		}
	case "sources":
		r.sources(sess.Snapshot())
	case "preview":
		r.preview(sess, arg)
	case "status":
		r.status(sess.Snapshot())
	default:
		r.println(r.styles.Error.Render("unknown command :" + cmd))
		r.println(r.styles.Muted.Render(helpText))
	}
	return false
}

func (r *REPL) load(sess *session.Orchestrator, path string) {
	if path == "" {
		r.println(r.styles.Error.Render("usage: :load <path>"))
		return
	}
	data, err := r.readFile(path)
	if err != nil {
		r.println(r.styles.Error.Render(err.Error()))
		return
	}
	content := string(data)
	if err := sess.Ingest(filepath.Base(path), content, r.previews.Count(content)); err != nil {
		r.println(r.styles.Error.Render(err.Error()))
	}
}

func (r *REPL) sources(snap session.Snapshot) {
	if len(snap.Sources) == 0 {
		r.println(r.styles.Muted.Render(preview.EmptyState))
		return
	}
	rows := make([][]string, len(snap.Sources))
	for i, s := range snap.Sources {
		rows[i] = []string{s.Name, fmt.Sprint(s.RecordCount)}
	}
	r.print(table(r.styles, []string{"source", "rows"}, rows))
}

func (r *REPL) preview(sess *session.Orchestrator, name string) {
	raw, err := sess.Source(name)
	if err != nil {
		r.println(r.styles.Error.Render(fmt.Sprintf("no source named %q", name)))
		return
	}
	tbl, err := r.previews.Parse(raw)
	if err != nil {
		r.println(r.styles.Error.Render(preview.Unparseable))
		return
	}
	r.print(RenderPreview(r.styles, tbl))
}

// RenderPreview lays out a parsed preview with its footer.
func RenderPreview(s Styles, tbl *preview.Table) string {
	rows := make([][]string, len(tbl.Rows))
	for i := range tbl.Rows {
		row := make([]string, len(tbl.Headers))
		for j, h := range tbl.Headers {
			row[j] = tbl.Cell(i, h)
		}
		rows[i] = row
	}
	footer := fmt.Sprintf("%s  %d records", tbl.Footer(), tbl.RecordCount)
	return table(s, tbl.Headers, rows) + s.Muted.Render(footer) + "\n"
}

func (r *REPL) status(snap session.Snapshot) {
	st := snap.State
	r.println(fmt.Sprintf("%s %s  %s %s  %s %d  %s %s (%d%%)",
		r.styles.Muted.Render("STATUS"), r.styles.Badge.Render(string(st.Status)),
		r.styles.Muted.Render("DATA LAYER"), r.styles.Badge.Render(snap.DataLayer()),
		r.styles.Muted.Render("RECORDS"), st.RecordsLoaded,
		r.styles.Muted.Render("INSIGHT"), st.InsightType, st.ConfidenceScore))
	if st.Message != "" {
		r.println(r.styles.System.Render(st.Message))
	}
}

// flush prints transcript entries not yet shown for sess.
func (r *REPL) flush(sess *session.Orchestrator) {
	msgs := sess.Transcript()

	r.mu.Lock()
	from := r.printed[sess.ID()]
	r.printed[sess.ID()] = len(msgs)
	r.mu.Unlock()

	for _, m := range msgs[min(from, len(msgs)):] {
		r.message(m)
	}
}

func (r *REPL) message(m types.TranscriptMessage) {
	ts := r.styles.Muted.Render(m.Timestamp.Format("15:04:05"))
	switch {
	case m.Sender == types.SenderUser:
		// echoed by the terminal already
		return
	case strings.HasPrefix(m.Text, "ERROR:"):
		r.println(ts + " " + r.styles.Error.Render(m.Text))
	default:
		r.println(ts + " " + r.styles.System.Render(m.Text))
	}

	if points := render.Chart(m.ChartData); len(points) > 0 {
		top := render.MaxValue(points)
		var sb strings.Builder
		for _, p := range points {
			fmt.Fprintf(&sb, "%-14s %12.2f %s\n", p.Name, p.Value, r.styles.User.Render(render.Bar(p.Value, top, 24)))
		}
		r.print(sb.String())
	}
	if headers, rows := render.Table(m.TableData); len(headers) > 0 {
		r.print(table(r.styles, headers, rows))
	}
}

func (r *REPL) prompt(p string) (string, bool) {
	r.print(r.styles.User.Render(p))
	if !r.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(r.in.Text()), true
}

func (r *REPL) print(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, s)
}

func (r *REPL) println(s string) {
	r.print(s + "\n")
}
