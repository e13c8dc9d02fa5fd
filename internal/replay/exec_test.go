package replay

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// TestHelperProcess stands in for the decoder program.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("REPLAY_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	live := len(args) > 1 && args[0] == "--live"
	path := args[len(args)-1]
	switch {
	case strings.HasSuffix(path, "broken.slp"):
		fmt.Fprint(os.Stderr, "unexpected end of file")
		os.Exit(3)
	case strings.HasSuffix(path, "garbage.slp"):
		fmt.Print("not json")
	default:
		frame := 600
		if live {
			frame = 12
		}
		fmt.Printf(`{"settings":{"stageId":31,"players":[{"playerIndex":0,"connectCode":"A#1"},{"playerIndex":1,"connectCode":"B#2"}]},"lastFrame":{"frame":%d}}`, frame)
	}
	os.Exit(0)
}

func helperParser() *ExecParser {
	return &ExecParser{
		Command: []string{os.Args[0], "-test.run=TestHelperProcess", "--"},
		Env:     []string{"REPLAY_HELPER_PROCESS=1"},
		logger:  zerolog.Nop(),
	}
}

func TestExecParserModes(t *testing.T) {
	p := helperParser()

	full, err := p.Parse(context.Background(), "/r/Game_1.slp", Full)
	if err != nil {
		t.Fatalf("full parse: %v", err)
	}
	if !full.ValidPlayers() || full.LastFrame.Frame != 600 {
		t.Errorf("unexpected full decode: %+v", full.Replay)
	}

	live, err := p.Parse(context.Background(), "/r/Game_1.slp", Live)
	if err != nil {
		t.Fatalf("live parse: %v", err)
	}
	if live.LastFrame.Frame != 12 {
		t.Errorf("live frame = %d, want 12", live.LastFrame.Frame)
	}
}

func TestExecParserErrors(t *testing.T) {
	p := helperParser()

	_, err := p.Parse(context.Background(), "/r/broken.slp", Full)
	if err == nil || !strings.Contains(err.Error(), "unexpected end of file") {
		t.Errorf("expected stderr in error, got %v", err)
	}

	if _, err := p.Parse(context.Background(), "/r/garbage.slp", Full); err == nil {
		t.Error("expected invalid output error")
	}

	if _, err := (&ExecParser{}).Parse(context.Background(), "/r/a.slp", Full); err == nil {
		t.Error("expected error without a command")
	}
}
