package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/srg/edad/internal/eda"
	"github.com/srg/edad/internal/gatt"
	"github.com/srg/edad/internal/peripheral"
	"github.com/srg/edad/internal/publisher"
	"golang.org/x/term"
)

// Color modes accepted by --color
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// stepInfo describes one played scenario step.
type stepInfo struct {
	N      int
	Action string
	Peer   string
	Conn   gatt.ConnHandle
	Arg    string // level or wait duration for steps without a peer
}

// recorder receives what a simulation does.
type recorder interface {
	header(name string)
	step(s stepInfo)
	delivery(d peripheral.Delivery)
	failure(err error)
	finish(stats publisher.Stats, deliveries int) error
}

// transcript prints one line per step or delivery.
type transcript struct {
	out io.Writer

	title  *color.Color
	action *color.Color
	notify *color.Color
	fail   *color.Color
	faint  *color.Color
}

func newTranscript(out io.Writer, mode string) (*transcript, error) {
	var enabled bool
	switch mode {
	case ColorAlways:
		enabled = true
	case ColorNever:
	case ColorAuto, "":
		if f, ok := out.(*os.File); ok {
			enabled = term.IsTerminal(int(f.Fd()))
		}
	default:
		return nil, fmt.Errorf("invalid color mode: %s (must be auto, always, or never)", mode)
	}

	t := &transcript{
		out:    out,
		title:  color.New(color.Bold),
		action: color.New(color.FgCyan),
		notify: color.New(color.FgGreen),
		fail:   color.New(color.FgRed),
		faint:  color.New(color.Faint),
	}
	for _, c := range []*color.Color{t.title, t.action, t.notify, t.fail, t.faint} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t, nil
}

func (t *transcript) header(name string) {
	if name == "" {
		name = "unnamed"
	}
	fmt.Fprintf(t.out, "%s\n", t.title.Sprintf("Scenario: %s", name))
}

func (t *transcript) step(s stepInfo) {
	detail := s.Arg
	if s.Peer != "" {
		detail = peerLabel(s.Peer, s.Conn)
	}
	fmt.Fprintf(t.out, "[%02d] %s %s\n", s.N, t.action.Sprintf("%-11s", s.Action), detail)
}

func (t *transcript) delivery(d peripheral.Delivery) {
	level := "?"
	if l, err := eda.DecodeLevel(d.Data); err == nil {
		level = fmt.Sprint(l)
	}
	fmt.Fprintf(t.out, "     %s %s level=%s\n",
		t.notify.Sprint("notify ->"), peerLabel(d.Peer, d.Conn), level)
}

func (t *transcript) failure(err error) {
	fmt.Fprintf(t.out, "     %s %v\n", t.fail.Sprint("error:"), err)
}

func (t *transcript) finish(stats publisher.Stats, deliveries int) error {
	_, err := fmt.Fprintf(t.out, "%s\n", t.faint.Sprintf(
		"published=%d failed=%d replayed=%d deliveries=%d",
		stats.Published, stats.Failed, stats.Replayed, deliveries))
	return err
}

func peerLabel(peer string, conn gatt.ConnHandle) string {
	return fmt.Sprintf("%s (conn %v)", peer, conn)
}

type reportDelivery struct {
	Peer  string `json:"peer"`
	Conn  string `json:"conn"`
	Level int    `json:"level"`
}

type reportStep struct {
	Step       int              `json:"step"`
	Action     string           `json:"action"`
	Peer       string           `json:"peer,omitempty"`
	Conn       string           `json:"conn,omitempty"`
	Arg        string           `json:"arg,omitempty"`
	Deliveries []reportDelivery `json:"deliveries"`
	Error      string           `json:"error,omitempty"`
}

type reportStats struct {
	Published  int64 `json:"published"`
	Failed     int64 `json:"failed"`
	Replayed   int64 `json:"replayed"`
	Deliveries int   `json:"deliveries"`
}

// jsonReport collects the run and writes it as one JSON document at the end.
type jsonReport struct {
	out io.Writer
	doc struct {
		Scenario string       `json:"scenario"`
		Steps    []reportStep `json:"steps"`
		Stats    reportStats  `json:"stats"`
	}
}

func newJSONReport(out io.Writer) *jsonReport {
	return &jsonReport{out: out}
}

func (r *jsonReport) header(name string) { r.doc.Scenario = name }

func (r *jsonReport) step(s stepInfo) {
	st := reportStep{Step: s.N, Action: s.Action, Arg: s.Arg, Deliveries: []reportDelivery{}}
	if s.Peer != "" {
		st.Peer, st.Conn = s.Peer, s.Conn.String()
	}
	r.doc.Steps = append(r.doc.Steps, st)
}

func (r *jsonReport) current() *reportStep {
	if len(r.doc.Steps) == 0 {
		r.doc.Steps = append(r.doc.Steps, reportStep{Deliveries: []reportDelivery{}})
	}
	return &r.doc.Steps[len(r.doc.Steps)-1]
}

func (r *jsonReport) delivery(d peripheral.Delivery) {
	level := -1
	if l, err := eda.DecodeLevel(d.Data); err == nil {
		level = int(l)
	}
	cur := r.current()
	cur.Deliveries = append(cur.Deliveries, reportDelivery{Peer: d.Peer, Conn: d.Conn.String(), Level: level})
}

func (r *jsonReport) failure(err error) { r.current().Error = err.Error() }

func (r *jsonReport) finish(stats publisher.Stats, deliveries int) error {
	r.doc.Stats = reportStats{
		Published:  stats.Published,
		Failed:     stats.Failed,
		Replayed:   stats.Replayed,
		Deliveries: deliveries,
	}
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.doc); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
