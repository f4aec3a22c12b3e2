package main

import (
	"errors"
	"testing"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"stockpane/internal/app"
	"stockpane/internal/util"
)

func TestPadOrTrunc(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"abc", 5, "abc  "},
		{"abcdef", 4, "abcd"},
		{"Price↑", 6, "Price↑"},
		{"Price↑ x", 6, "Price↑"},
		{"Price↑", 8, "Price↑  "},
	}
	for _, tt := range tests {
		got := padOrTrunc(tt.in, tt.width)
		if got != tt.want {
			t.Errorf("padOrTrunc(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("padOrTrunc(%q, %d) produced invalid UTF-8", tt.in, tt.width)
		}
	}
	// Cutting inside the arrow must not split it.
	for w := 0; w <= 7; w++ {
		if got := padOrTrunc(" Sym↓ Price", w); !utf8.ValidString(got) {
			t.Errorf("width %d: invalid UTF-8 %q", w, got)
		}
	}
}

func TestChartURL(t *testing.T) {
	if got := chartURL("AAPL"); got != "https://finance.yahoo.com/chart/AAPL" {
		t.Errorf("chartURL(AAPL) = %q", got)
	}
	if got := chartURL("^TWII"); got != "https://finance.yahoo.com/chart/%5ETWII" {
		t.Errorf("chartURL(^TWII) = %q", got)
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func testModel() model {
	return model{logger: util.Discard()}
}

func TestConfirmYesDispatches(t *testing.T) {
	m := testModel()
	m.confirm(app.DeletePortfolio{Portfolio: "tech.txt"}, "delete portfolio tech?")

	next, cmd := m.updateInput(key("y"))
	got := next.(model)
	if cmd == nil {
		t.Fatal("y should dispatch the pending command")
	}
	if got.mode != inputNone || got.pending != nil {
		t.Errorf("mode = %v, pending = %v after answer", got.mode, got.pending)
	}
	if got.busy != 1 {
		t.Errorf("busy = %d, want 1", got.busy)
	}
}

func TestConfirmOtherKeyCancels(t *testing.T) {
	for _, k := range []tea.KeyMsg{key("n"), key("x"), {Type: tea.KeyEsc}} {
		m := testModel()
		m.confirm(app.RemoveSymbol{Portfolio: "tech.txt", Symbol: "AAPL"}, "remove AAPL?")

		next, cmd := m.updateInput(k)
		got := next.(model)
		if cmd != nil {
			t.Errorf("%q: command dispatched, want cancel", k.String())
		}
		if got.mode != inputNone || got.pending != nil || got.busy != 0 {
			t.Errorf("%q: state after cancel = mode %v, pending %v, busy %d", k.String(), got.mode, got.pending, got.busy)
		}
	}
}

func TestCopyAndOpenChart(t *testing.T) {
	origCopy, origOpen := writeClipboard, openBrowser
	t.Cleanup(func() { writeClipboard, openBrowser = origCopy, origOpen })

	var copied, opened string
	writeClipboard = func(s string) error { copied = s; return nil }
	openBrowser = func(u string) error { opened = u; return nil }

	if msg := copySymbol("MSFT")().(actionMsg); msg.err != nil || copied != "MSFT" {
		t.Errorf("copy: msg = %+v, clipboard = %q", msg, copied)
	}
	if msg := openChart("MSFT")().(actionMsg); msg.err != nil || opened != chartURL("MSFT") {
		t.Errorf("open: msg = %+v, url = %q", msg, opened)
	}

	boom := errors.New("no display")
	writeClipboard = func(string) error { return boom }
	if msg := copySymbol("MSFT")().(actionMsg); !errors.Is(msg.err, boom) {
		t.Errorf("copy failure err = %v, want %v", msg.err, boom)
	}
}
