package genai

import (
	"context"
	"strings"
	"testing"

	"github.com/BubblyOak/PingPal/internal/models"
)

func TestParseOutput(t *testing.T) {
	valid := `{"reply":{"text":"hi","send_gif":true,"gif_tag":"cat"},"planning":{"action":"append","items":[{"send_at":"2026-03-10T18:00:00","text":"ping","confidence":0.9}]}}`

	cases := []struct {
		name    string
		content string
		wantOK  bool
	}{
		{"plain JSON", valid, true},
		{"code fenced", "```json\n" + valid + "\n```", true},
		{"surrounded by prose", "Here you go:\n" + valid + "\nHope that helps!", true},
		{"empty", "", false},
		{"no object", "sure thing", false},
		{"broken JSON", `{"reply":{"text":`, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out, ok := parseOutput(c.content)
			if ok != c.wantOK {
				t.Fatalf("parseOutput ok = %v, want %v", ok, c.wantOK)
			}
			if !ok {
				return
			}
			if out.Reply.Text != "hi" || !out.Reply.SendGif || out.Reply.GifTag != "cat" {
				t.Errorf("unexpected reply: %+v", out.Reply)
			}
			if out.Planning.Action != models.PlanningActionAppend || len(out.Planning.Items) != 1 {
				t.Errorf("unexpected planning: %+v", out.Planning)
			}
			if out.Planning.Items[0].Confidence != 0.9 {
				t.Errorf("unexpected confidence: %v", out.Planning.Items[0].Confidence)
			}
		})
	}
}

func TestUnconfiguredClientEchoes(t *testing.T) {
	client := NewClient()
	out, err := client.GenerateResponse(context.Background(), Context{IncomingText: "  hello there  "})
	if err != nil {
		t.Fatalf("GenerateResponse failed: %v", err)
	}
	if out.Reply.Text != "(dummy) hello there" {
		t.Errorf("unexpected echo reply: %q", out.Reply.Text)
	}
	if out.Reply.SendGif {
		t.Error("echo fallback must not request a gif")
	}
	if out.Planning.Action != models.PlanningActionNone || len(out.Planning.Items) != 0 {
		t.Errorf("echo fallback must not plan anything: %+v", out.Planning)
	}
}

func TestUnconfiguredClientEchoesDefaultText(t *testing.T) {
	client := NewClient()
	out, err := client.GenerateResponse(context.Background(), Context{IncomingText: "   "})
	if err != nil {
		t.Fatalf("GenerateResponse failed: %v", err)
	}
	if out.Reply.Text != "(dummy) Got it." {
		t.Errorf("unexpected default reply: %q", out.Reply.Text)
	}
}

func TestBuildUserPromptIncludesContext(t *testing.T) {
	prompt, err := buildUserPrompt(Context{
		IncomingText: "remind me tonight",
		Timezone:     "America/New_York",
		Summary:      "user likes reminders",
	})
	if err != nil {
		t.Fatalf("buildUserPrompt failed: %v", err)
	}
	for _, fragment := range []string{`"schema"`, `"incoming_text":"remind me tonight"`, `"timezone":"America/New_York"`, `"summary":"user likes reminders"`} {
		if !strings.Contains(prompt, fragment) {
			t.Errorf("prompt missing %s", fragment)
		}
	}
}
