package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/movewatch/movewatch/internal/dom"
	"github.com/hazyhaar/movewatch/movewatch/internal/dom/domtest"
	"github.com/hazyhaar/movewatch/movewatch/internal/engine"
	"github.com/hazyhaar/movewatch/movewatch/internal/stream"
)

type fakeEngine struct {
	status    string
	statusErr error
	startErr  error
	calls     []string
}

func (f *fakeEngine) Status(context.Context) (string, error) {
	f.calls = append(f.calls, "status")
	return f.status, f.statusErr
}

func (f *fakeEngine) Start(context.Context) error {
	f.calls = append(f.calls, "start")
	if f.startErr == nil {
		f.status = engine.Running
	}
	return f.startErr
}

func (f *fakeEngine) Stop(context.Context) error {
	f.calls = append(f.calls, "stop")
	f.status = engine.Stopped
	return nil
}

func inline(fn func()) { fn() }

func mount(t *testing.T, eng Engine) (*domtest.Document, *Panel) {
	t.Helper()
	doc := domtest.MustNew(domtest.Page(""))
	p, err := New(Config{Surface: doc, Engine: eng, Host: "#board-layout-main", Async: inline})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Ensure(context.Background(), anchor(t, doc)); err != nil {
		t.Fatal(err)
	}
	return doc, p
}

func anchor(t *testing.T, doc *domtest.Document) dom.Node {
	t.Helper()
	n, err := doc.Query(context.Background(), "#board-layout-chessboard")
	if err != nil || n == nil {
		t.Fatalf("anchor missing: %v", err)
	}
	return n
}

func TestMarkup(t *testing.T) {
	m := Markup()
	for _, want := range []string{
		`id="chess-engine-output"`,
		`style="background-color: #000; color: #fff; padding: 10px; font-size: 16px; text-align: center; box-sizing: border-box; z-index: 9999"`,
		`<span id="engine-output-depth" style="padding: 5px 10px">Depth 0</span>`,
		`>-- --</span>`,
		`<button id="toggleEngine" style="padding: 5px 10px; font-size: 14px; cursor: pointer">Start / Stop</button>`,
		`>Check Status</button>`,
		`flex-direction: column; gap: 5px`,
	} {
		if !strings.Contains(m, want) {
			t.Errorf("markup missing %q\n%s", want, m)
		}
	}
}

func TestKebab(t *testing.T) {
	cases := map[string]string{
		"backgroundColor": "background-color",
		"zIndex":          "z-index",
		"color":           "color",
	}
	for in, want := range cases {
		if got := kebab(in); got != want {
			t.Errorf("kebab(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnsure_MountsOnceAndLabelsToggle(t *testing.T) {
	eng := &fakeEngine{status: engine.Running}
	doc, p := mount(t, eng)

	if doc.Text(IDDepth) != InitialDepth || doc.Text(IDPV) != InitialPV {
		t.Errorf("initial texts: depth=%q pv=%q", doc.Text(IDDepth), doc.Text(IDPV))
	}
	if doc.Text(IDToggle) != LabelStop {
		t.Errorf("toggle label = %q, want %q", doc.Text(IDToggle), LabelStop)
	}

	// Second Ensure: panel already present.
	if err := p.Ensure(context.Background(), anchor(t, doc)); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(doc.HTML(), `id="chess-engine-output"`); n != 1 {
		t.Errorf("panels = %d, want 1", n)
	}
	if key, ok := p.Mounted(); !ok || key == "" {
		t.Errorf("Mounted = %q, %v", key, ok)
	}
}

func TestEnsure_RemountAfterTeardown(t *testing.T) {
	doc, p := mount(t, nil)
	first, _ := p.Mounted()

	doc.Remove("#board-layout-main")
	doc.Append("body", `<div id="board-layout-main"><div id="board-layout-chessboard"></div></div>`)
	if err := p.Ensure(context.Background(), anchor(t, doc)); err != nil {
		t.Fatal(err)
	}
	second, _ := p.Mounted()
	if second == first {
		t.Error("remount recorded the old anchor")
	}
	if doc.Text(IDScore) != InitialScore {
		t.Error("panel not remounted")
	}
}

func TestEnsure_AdoptsExistingPanel(t *testing.T) {
	doc, _ := mount(t, &fakeEngine{status: engine.Stopped})

	eng := &fakeEngine{status: engine.Stopped}
	p, err := New(Config{Surface: doc, Engine: eng, Host: "#board-layout-main", Async: inline})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Ensure(context.Background(), anchor(t, doc)); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(doc.HTML(), `id="chess-engine-output"`); n != 1 {
		t.Errorf("panels = %d, want 1", n)
	}
	if _, ok := p.Mounted(); !ok {
		t.Fatal("existing panel not adopted")
	}

	p.HandleStream(line("info depth 7 cp 10 pv d4"))
	if got := doc.Text(IDDepth); got != "Depth 7" {
		t.Errorf("depth = %q", got)
	}
	doc.Click(IDToggle)
	if got := strings.Join(eng.calls, ","); got != "status,start,status" {
		t.Errorf("calls on the adopting panel = %s", got)
	}
}

func TestSetHost(t *testing.T) {
	doc := domtest.MustNew(`<html><body><div id="board-layout-chessboard"></div><div id="side"></div></body></html>`)
	p, _ := New(Config{Surface: doc, Host: "#board-layout-main"})
	if err := p.Ensure(context.Background(), anchor(t, doc)); err == nil {
		t.Fatal("mounted into a missing host")
	}
	if err := p.SetHost("#side"); err != nil {
		t.Fatal(err)
	}
	if err := p.Ensure(context.Background(), anchor(t, doc)); err != nil {
		t.Fatal(err)
	}
	if n, _ := doc.Query(context.Background(), "#side #chess-engine-output"); n == nil {
		t.Error("panel not under the new host")
	}
	if err := p.SetHost(""); err == nil {
		t.Error("empty host accepted")
	}
	if p.Host() != "#side" {
		t.Errorf("Host = %q", p.Host())
	}
}

func TestEnsure_HostMissing(t *testing.T) {
	doc := domtest.MustNew(`<html><body><div id="board-layout-chessboard"></div></body></html>`)
	p, _ := New(Config{Surface: doc, Host: "#board-layout-main"})
	if err := p.Ensure(context.Background(), anchor(t, doc)); err == nil {
		t.Fatal("expected error without host element")
	}
	if _, ok := p.Mounted(); ok {
		t.Error("marked mounted without a host")
	}
}

func TestToggle(t *testing.T) {
	eng := &fakeEngine{status: engine.Stopped}
	doc, _ := mount(t, eng)
	if doc.Text(IDToggle) != LabelStart {
		t.Fatalf("label = %q", doc.Text(IDToggle))
	}

	if !doc.Click(IDToggle) {
		t.Fatal("toggle not bound")
	}
	if doc.Text(IDToggle) != LabelStop {
		t.Errorf("after start label = %q", doc.Text(IDToggle))
	}
	doc.Click(IDToggle)
	if doc.Text(IDToggle) != LabelStart {
		t.Errorf("after stop label = %q", doc.Text(IDToggle))
	}
	want := "status,start,status,stop,status"
	if got := strings.Join(eng.calls, ","); got != want {
		t.Errorf("calls = %s, want %s", got, want)
	}
}

func TestToggle_FailureAlerts(t *testing.T) {
	eng := &fakeEngine{status: engine.Stopped, startErr: errors.New("refused")}
	doc, _ := mount(t, eng)
	doc.Click(IDToggle)
	alerts := doc.Alerts()
	if len(alerts) != 1 || alerts[0] != MsgToggleFailed {
		t.Errorf("alerts = %v", alerts)
	}
}

func TestCheckState(t *testing.T) {
	eng := &fakeEngine{status: engine.Running}
	doc, _ := mount(t, eng)
	doc.Click(IDCheck)

	eng.statusErr = errors.New("down")
	doc.Click(IDCheck)

	alerts := doc.Alerts()
	want := []string{"Engine is currently running", MsgCheckFailed}
	if len(alerts) != len(want) {
		t.Fatalf("alerts = %v", alerts)
	}
	for i := range want {
		if alerts[i] != want[i] {
			t.Errorf("alert %d = %q, want %q", i, alerts[i], want[i])
		}
	}
}

func TestRefresh_FailureKeepsLabel(t *testing.T) {
	doc, _ := mount(t, &fakeEngine{statusErr: errors.New("down")})
	if doc.Text(IDToggle) != InitialToggle {
		t.Errorf("label = %q, want %q", doc.Text(IDToggle), InitialToggle)
	}
	if len(doc.Alerts()) != 0 {
		t.Error("passive refresh failure alerted the user")
	}
}

func line(s string) stream.Message {
	data, _ := json.Marshal(s)
	return stream.Message{Event: stream.EventEngineOutputSingle, Data: data}
}

func TestHandleStream_RenderAndClear(t *testing.T) {
	doc, p := mount(t, nil)

	p.HandleStream(line("info depth 12 cp 35 pv e4 e5 Nf3"))
	if got := doc.Text(IDDepth); got != "Depth 12" {
		t.Errorf("depth = %q", got)
	}
	if got := doc.Text(IDScore); got != "0.35" {
		t.Errorf("score = %q", got)
	}
	if got := doc.Text(IDPV); got != "e4 e5 Nf3" {
		t.Errorf("pv = %q", got)
	}
	if p.Last().Depth != "12" {
		t.Errorf("Last = %+v", p.Last())
	}

	p.HandleStream(stream.Message{Event: stream.EventClearOutput})
	if doc.Text(IDDepth) != InitialDepth || doc.Text(IDScore) != InitialScore || doc.Text(IDPV) != InitialPV {
		t.Error("clear_output did not reset the panel")
	}
}

func TestHandleStream_BeforeMountIgnored(t *testing.T) {
	doc := domtest.MustNew(domtest.Page(""))
	p, _ := New(Config{Surface: doc, Host: "#board-layout-main"})
	p.HandleStream(line("info depth 3 cp 10 pv d4"))
	if strings.Contains(doc.HTML(), "Depth 3") {
		t.Error("rendered before mount")
	}
}

func TestHandleStream_UnknownAndBadData(t *testing.T) {
	doc, p := mount(t, nil)
	p.HandleStream(stream.Message{Event: "engine_output", Data: json.RawMessage(`["x"]`)})
	p.HandleStream(stream.Message{Event: stream.EventEngineOutputSingle, Data: json.RawMessage(`42`)})
	if doc.Text(IDDepth) != InitialDepth {
		t.Error("panel changed on ignored messages")
	}
}
