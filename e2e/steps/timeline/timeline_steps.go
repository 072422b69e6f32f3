package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

// TestContext defines the methods needed from the main test context.
type TestContext interface {
	PostLines(path string, lines []string) error
	GET(path string) error
	Body() []byte
}

// RegisterSteps registers export-building and timeline steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &timelineSteps{tc: tc, suffix: func() string { return suffixOf(tc) }}
	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		steps.reset()
		return ctx, nil
	})

	ctx.Step(`^"([^"]*)" registers handle "([^"]*)" at minute (\d+)$`, steps.registers)
	ctx.Step(`^"([^"]*)" switches to handle "([^"]*)" at minute (\d+)$`, steps.switches)
	ctx.Step(`^"([^"]*)" is tombstoned at minute (\d+)$`, steps.tombstoned)
	ctx.Step(`^the operations are uploaded$`, steps.upload)
	ctx.Step(`^I request the timeline of "([^"]*)"$`, steps.requestTimeline)

	ctx.Step(`^the timeline should have (\d+) entries$`, steps.entryCount)
	ctx.Step(`^entry (\d+) should belong to "([^"]*)" and be (open|closed)$`, steps.entryState)
	ctx.Step(`^the current owner should be "([^"]*)"$`, steps.currentOwner)
	ctx.Step(`^the handle should have no current owner$`, steps.noCurrentOwner)
}

type suffixed interface {
	Suffix() string
}

// suffixOf reads the scenario suffix when the context exposes one.
func suffixOf(tc TestContext) string {
	if s, ok := tc.(suffixed); ok {
		return s.Suffix()
	}
	return ""
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type timelineSteps struct {
	tc     TestContext
	suffix func() string

	pending []string
	heads   map[string]string
	seq     int
}

func (s *timelineSteps) reset() {
	s.pending = nil
	s.heads = map[string]string{}
	s.seq = 0
}

func (s *timelineSteps) did(name string) string {
	return fmt.Sprintf("did:plc:%s-%s", name, s.suffix())
}

func (s *timelineSteps) handle(name string) string {
	return fmt.Sprintf("%s-%s.test", name, s.suffix())
}

func (s *timelineSteps) nextCID(name string) string {
	s.seq++
	return fmt.Sprintf("bafy-%s-%s-%d", name, s.suffix(), s.seq)
}

func (s *timelineSteps) queue(name string, minute int, op map[string]any) {
	cid := s.nextCID(name)
	line, _ := json.Marshal(map[string]any{
		"did":       s.did(name),
		"cid":       cid,
		"nullified": false,
		"createdAt": epoch.Add(time.Duration(minute) * time.Minute).Format(time.RFC3339),
		"operation": op,
	})
	s.pending = append(s.pending, string(line))
	s.heads[name] = cid
}

func (s *timelineSteps) registers(ctx context.Context, name, handle string, minute int) error {
	s.queue(name, minute, map[string]any{
		"type":        "create",
		"sig":         "sig",
		"prev":        nil,
		"handle":      s.handle(handle),
		"service":     "https://pds.example",
		"signingKey":  "did:key:signing",
		"recoveryKey": "did:key:recovery",
	})
	return nil
}

func (s *timelineSteps) switches(ctx context.Context, name, handle string, minute int) error {
	prev, ok := s.heads[name]
	if !ok {
		return fmt.Errorf("%s has no operations yet", name)
	}
	s.queue(name, minute, map[string]any{
		"type":                "plc_operation",
		"sig":                 "sig",
		"prev":                prev,
		"services":            map[string]any{"atproto_pds": map[string]any{"type": "AtprotoPersonalDataServer", "endpoint": "https://pds.example"}},
		"alsoKnownAs":         []string{"at://" + s.handle(handle)},
		"rotationKeys":        []string{"did:key:recovery"},
		"verificationMethods": map[string]any{"atproto": "did:key:signing"},
	})
	return nil
}

func (s *timelineSteps) tombstoned(ctx context.Context, name string, minute int) error {
	prev, ok := s.heads[name]
	if !ok {
		return fmt.Errorf("%s has no operations yet", name)
	}
	s.queue(name, minute, map[string]any{"type": "plc_tombstone", "sig": "sig", "prev": prev})
	return nil
}

func (s *timelineSteps) upload(ctx context.Context) error {
	lines := s.pending
	s.pending = nil
	return s.tc.PostLines("/operations", lines)
}

func (s *timelineSteps) requestTimeline(ctx context.Context, handle string) error {
	return s.tc.GET("/handles/" + s.handle(handle))
}

type timelineBody struct {
	Current *struct {
		DID string `json:"did"`
	} `json:"current"`
	Operations []struct {
		DID   string  `json:"did"`
		Until *string `json:"until"`
	} `json:"operations"`
}

func (s *timelineSteps) decode() (*timelineBody, error) {
	var body timelineBody
	if err := json.Unmarshal(s.tc.Body(), &body); err != nil {
		return nil, fmt.Errorf("decode timeline: %w: %s", err, s.tc.Body())
	}
	return &body, nil
}

func (s *timelineSteps) entryCount(ctx context.Context, n int) error {
	body, err := s.decode()
	if err != nil {
		return err
	}
	if len(body.Operations) != n {
		return fmt.Errorf("expected %d entries, got %d", n, len(body.Operations))
	}
	return nil
}

func (s *timelineSteps) entryState(ctx context.Context, index int, name, state string) error {
	body, err := s.decode()
	if err != nil {
		return err
	}
	if index < 1 || index > len(body.Operations) {
		return fmt.Errorf("no entry %d in %d entries", index, len(body.Operations))
	}
	entry := body.Operations[index-1]
	if entry.DID != s.did(name) {
		return fmt.Errorf("entry %d belongs to %s, want %s", index, entry.DID, s.did(name))
	}
	if open := entry.Until == nil; open != (state == "open") {
		return fmt.Errorf("entry %d: expected %s", index, state)
	}
	return nil
}

func (s *timelineSteps) currentOwner(ctx context.Context, name string) error {
	body, err := s.decode()
	if err != nil {
		return err
	}
	if body.Current == nil || body.Current.DID != s.did(name) {
		return fmt.Errorf("expected current owner %s, got %+v", s.did(name), body.Current)
	}
	return nil
}

func (s *timelineSteps) noCurrentOwner(ctx context.Context) error {
	body, err := s.decode()
	if err != nil {
		return err
	}
	if body.Current != nil {
		return fmt.Errorf("expected no current owner, got %s", body.Current.DID)
	}
	return nil
}
