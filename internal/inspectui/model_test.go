package inspectui

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/dt5202fix/internal/dump"
	"github.com/verte-zerg/dt5202fix/internal/fixer"
	"github.com/verte-zerg/dt5202fix/internal/outlier"
	"github.com/verte-zerg/dt5202fix/internal/validity"
)

func analyzed(t *testing.T) *fixer.Result {
	t.Helper()
	var b strings.Builder
	b.WriteString(dump.HeaderDelimiter + "\n" + dump.HeaderDelimiter + "\n")
	trgIDs := []int{1, 2, 3, 4, 5, 6, 7, 8, 100000000}
	for i, id := range trgIDs {
		fmt.Fprintf(&b, "Board 0\nTrgID=%d\nTS=%d.0 us\nCH\n00 12\n%s\n", id, (i+1)*10, dump.FrameDivider)
	}
	parsed, err := dump.Parse(context.Background(), strings.NewReader(b.String()), dump.Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	res := &fixer.Result{Parse: parsed}
	res.Summary.Frames = parsed.Table.Len()
	res.Reclassify(outlier.DefaultConfig(), validity.DefaultPolicy())
	return res
}

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sized(t *testing.T) *Model {
	t.Helper()
	m := NewModel(analyzed(t), outlier.DefaultConfig())
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m
}

func TestViewNeedsWindowSize(t *testing.T) {
	m := NewModel(analyzed(t), outlier.DefaultConfig())
	if m.View() != "" {
		t.Fatalf("expected empty view before the first resize")
	}
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	view := m.View()
	for _, want := range []string{"Overview", "exclude=iqr", "valid=8/9"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestPolicyKeyCyclesAndReclassifies(t *testing.T) {
	m := sized(t)
	m.Update(runeKey("p"))
	if !m.res.Policy.ExcludeIQR || !m.res.Policy.ExcludeDiff {
		t.Fatalf("expected iqr,diff policy, got %+v", m.res.Policy)
	}
	if !strings.Contains(m.View(), "exclude=iqr,diff") {
		t.Fatalf("settings line not updated")
	}
	for i := 0; i < 3; i++ {
		m.Update(runeKey("p"))
	}
	if m.res.Policy != validity.DefaultPolicy() {
		t.Fatalf("cycle should wrap to the default policy, got %+v", m.res.Policy)
	}
}

func TestRejectedTabListsReasons(t *testing.T) {
	m := sized(t)
	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	if m.activeTab != tabRejected {
		t.Fatalf("expected rejected tab, got %d", m.activeTab)
	}
	if !strings.Contains(m.View(), "trgid-iqr") {
		t.Fatalf("rejected tab missing reason:\n%s", m.View())
	}
	m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	if m.activeTab != tabSequences {
		t.Fatalf("tabs should wrap, got %d", m.activeTab)
	}
}

func TestThresholdForm(t *testing.T) {
	m := sized(t)
	m.Update(runeKey("/"))
	if !m.filterMode {
		t.Fatalf("expected threshold form")
	}
	m.filterInputs[0].SetValue("abc")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !m.filterMode || m.filterError == "" {
		t.Fatalf("invalid input should keep the form open with an error")
	}

	m.filterInputs[0].SetValue("3e7")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.filterMode {
		t.Fatalf("form should close on valid input: %s", m.filterError)
	}
	if m.detect.IQRMultiplier != 3e7 {
		t.Fatalf("unexpected detect config: %+v", m.detect)
	}
	if m.res.Summary.ValidFrames != 9 || len(m.res.Rejected) != 0 {
		t.Fatalf("wide fence should keep every frame, got %d valid", m.res.Summary.ValidFrames)
	}
}

func TestQuit(t *testing.T) {
	m := sized(t)
	_, cmd := m.Update(runeKey("q"))
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit message")
	}
}

func TestNextPolicyUnknownFallsBack(t *testing.T) {
	if got := policyLabel(nextPolicy(validity.Policy{ExcludeIQR: true})); got != "iqr,diff" {
		t.Fatalf("unexpected next policy %q", got)
	}
	if got := policyLabel(nextPolicy(validity.Policy{})); got != "iqr" {
		t.Fatalf("unexpected wrap %q", got)
	}
}
