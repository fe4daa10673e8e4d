package episodelog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"pitchsim.ai/internal/sim/match"
)

func readBack(t *testing.T, dir string) [][]byte {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl.zst"))
	if err != nil || len(matches) == 0 {
		t.Fatalf("no log files in %s (err=%v)", dir, err)
	}
	var lines [][]byte
	for _, p := range matches {
		f, err := os.Open(p)
		if err != nil {
			t.Fatal(err)
		}
		dec, err := zstd.NewReader(f)
		if err != nil {
			t.Fatalf("zstd reader: %v", err)
		}
		sc := bufio.NewScanner(dec)
		sc.Buffer(make([]byte, 1024*1024), 1024*1024)
		for sc.Scan() {
			lines = append(lines, append([]byte(nil), sc.Bytes()...))
		}
		dec.Close()
		_ = f.Close()
		if err := sc.Err(); err != nil {
			t.Fatalf("scan: %v", err)
		}
	}
	return lines
}

func TestEpisodeLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewEpisodeLogger(dir)

	want := []match.EpisodeResult{
		{Episode: 1, Scenario: "kickoff", Steps: 42, EndTick: 42, Outcome: "goal_team0", TeamReward: [2]float32{0.9, -1}, Scorer: "T0P2"},
		{Episode: 2, Scenario: "kickoff", Steps: 500, EndTick: 542, Outcome: "step_limit"},
	}
	for _, r := range want {
		if err := l.WriteEpisode(r); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := readBack(t, filepath.Join(dir, "episodes"))
	if len(lines) != len(want) {
		t.Fatalf("lines = %d, want %d", len(lines), len(want))
	}
	for i, line := range lines {
		var got match.EpisodeResult
		if err := json.Unmarshal(line, &got); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if got != want[i] {
			t.Fatalf("line %d = %+v, want %+v", i, got, want[i])
		}
	}
}

func TestTickLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)

	entry := match.TickLogEntry{
		Tick:  7,
		Step:  7,
		Phase: "CONTESTED",
		Actions: []match.RecordedAction{
			{AgentID: "T0P1", Action: [3]int{1, 0, 0}},
		},
		Events: []match.TickEvent{{Kind: "OUT_OF_BOUNDS", Detail: "type=THROW_IN"}},
		Digest: "deadbeefdeadbeef",
	}
	if err := l.WriteTick(entry); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := readBack(t, filepath.Join(dir, "ticks"))
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	var got match.TickLogEntry
	if err := json.Unmarshal(lines[0], &got); err != nil {
		t.Fatal(err)
	}
	if got.Tick != entry.Tick || got.Phase != entry.Phase || got.Digest != entry.Digest {
		t.Fatalf("entry = %+v", got)
	}
	if len(got.Actions) != 1 || got.Actions[0].AgentID != "T0P1" {
		t.Fatalf("actions = %+v", got.Actions)
	}
}

func TestWriter_ReopenAppends(t *testing.T) {
	dir := t.TempDir()

	w := NewJSONLZstdWriter(dir, "stream")
	if err := w.Write(map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	// A second writer within the same hour appends a new zstd frame to the
	// same file; the decoder reads both.
	w = NewJSONLZstdWriter(dir, "stream")
	if err := w.Write(map[string]int{"a": 2}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	lines := readBack(t, dir)
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
}
