// Package slackadapter implements the Slack source Adapter for C3, using
// the Socket Mode client so no public HTTP endpoint is required.
package slackadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/kalambet/hivemind/internal/adapter"
)

// Adapter connects to Slack over Socket Mode and emits RawEvent-shaped
// messages for channel activity.
type Adapter struct {
	api    *slack.Client
	client *socketmode.Client
	events chan adapter.Event
	cancel context.CancelFunc
}

// New builds a Slack Adapter authenticated with a bot token and an
// app-level token (required for Socket Mode).
func New(botToken, appToken string) *Adapter {
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	client := socketmode.New(api)
	return &Adapter{
		api:    api,
		client: client,
		events: make(chan adapter.Event, 64),
	}
}

func (a *Adapter) Connect(ctx context.Context) error {
	_, err := a.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	return nil
}

func (a *Adapter) Disconnect(ctx context.Context) error { return nil }

func (a *Adapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go a.readLoop(runCtx)
	go a.client.RunContext(runCtx)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}

func (a *Adapter) HealthCheck(ctx context.Context) adapter.Status {
	if _, err := a.api.AuthTestContext(ctx); err != nil {
		return adapter.Status{State: adapter.StateError, LastError: err}
	}
	return adapter.Status{State: adapter.StateConnected}
}

func (a *Adapter) Events() <-chan adapter.Event { return a.events }

func (a *Adapter) readLoop(ctx context.Context) {
	defer close(a.events)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.client.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			a.client.Ack(*evt.Request)

			if ev := toRawEvent(eventsAPI); ev != nil {
				select {
				case a.events <- *ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func toRawEvent(eventsAPI slackevents.EventsAPIEvent) *adapter.Event {
	inner, ok := eventsAPI.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return nil
	}
	// Skip message-changed/deleted subtypes and bot echoes; the runtime
	// filters by author id, but message subtype noise is Slack-specific
	// and belongs here.
	if inner.SubType != "" {
		return nil
	}

	ts, err := parseSlackTimestamp(inner.TimeStamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	return &adapter.Event{
		Source:     "slack",
		EventType:  "message",
		ExternalID: fmt.Sprintf("%s.%s", inner.Channel, inner.TimeStamp),
		Payload: map[string]any{
			"text":    inner.Text,
			"channel": inner.Channel,
			"user":    inner.User,
		},
		Metadata: map[string]any{
			"author": inner.User,
			"thread_ts": inner.ThreadTimeStamp,
		},
		Timestamp: ts,
	}
}

func parseSlackTimestamp(ts string) (time.Time, error) {
	var sec, nsec int64
	if _, err := fmt.Sscanf(ts, "%d.%d", &sec, &nsec); err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, nsec*1000).UTC(), nil
}
