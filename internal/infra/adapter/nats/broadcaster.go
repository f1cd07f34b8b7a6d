package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"feed-monitor/internal/usecase/events"
)

const (
	SubjectFetchCompleted   = "feedmonitor.events.fetch.completed"
	SubjectItemCreated      = "feedmonitor.events.item.created"
	SubjectItemScraped      = "feedmonitor.events.item.scraped"
	SubjectItemStateChanged = "feedmonitor.events.item.state"
)

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Broadcaster republishes bus events as JSON on NATS subjects so that
// out-of-process observers can follow the pipelines.
type Broadcaster struct {
	pub Publisher
}

func NewBroadcaster(pub Publisher) *Broadcaster {
	return &Broadcaster{pub: pub}
}

type fetchCompletedMessage struct {
	SourceID    int64      `json:"source_id"`
	Outcome     string     `json:"outcome,omitempty"`
	Skipped     bool       `json:"skipped"`
	Forced      bool       `json:"forced"`
	Created     int        `json:"created"`
	Updated     int        `json:"updated"`
	Failed      int        `json:"failed"`
	ErrorClass  string     `json:"error_class,omitempty"`
	Retry       bool       `json:"retry,omitempty"`
	CircuitOpen bool       `json:"circuit_open,omitempty"`
	NextAttempt *time.Time `json:"next_attempt_at,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
}

type itemMessage struct {
	ItemID   int64     `json:"item_id"`
	SourceID int64     `json:"source_id,omitempty"`
	URL      string    `json:"url,omitempty"`
	Status   string    `json:"status,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at,omitzero"`
}

func (b *Broadcaster) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := b.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (b *Broadcaster) OnFetchCompleted(_ context.Context, ev events.FetchCompleted) error {
	msg := fetchCompletedMessage{
		Skipped:    ev.Skipped,
		Forced:     ev.Forced,
		StartedAt:  ev.StartedAt,
		FinishedAt: ev.FinishedAt,
	}
	if ev.Source != nil {
		msg.SourceID = ev.Source.ID
	}
	if r := ev.Result; r != nil {
		msg.Outcome = string(r.Outcome)
		msg.Created = r.Items.Created
		msg.Updated = r.Items.Updated
		msg.Failed = r.Items.Failed
		if d := r.Retry; d != nil {
			msg.ErrorClass = d.Class
			msg.Retry = d.Retry
			msg.CircuitOpen = d.OpenCircuit
			if d.Retry {
				next := ev.FinishedAt.Add(d.Wait)
				msg.NextAttempt = &next
			} else if d.CircuitUntil != nil {
				msg.NextAttempt = d.CircuitUntil
			}
		}
	}
	return b.publish(SubjectFetchCompleted, msg)
}

func (b *Broadcaster) OnItemCreated(_ context.Context, ev events.ItemCreated) error {
	if ev.Item == nil {
		return nil
	}
	return b.publish(SubjectItemCreated, itemMessage{
		ItemID:   ev.Item.ID,
		SourceID: ev.Item.SourceID,
		URL:      ev.Item.URL,
		At:       ev.Item.CreatedAt,
	})
}

func (b *Broadcaster) OnItemScraped(_ context.Context, ev events.ItemScraped) error {
	if ev.Item == nil {
		return nil
	}
	msg := itemMessage{
		ItemID:   ev.Item.ID,
		SourceID: ev.Item.SourceID,
		URL:      ev.Item.URL,
		Status:   string(ev.Status),
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	if ev.Item.ScrapedAt != nil {
		msg.At = *ev.Item.ScrapedAt
	}
	return b.publish(SubjectItemScraped, msg)
}

func (b *Broadcaster) OnItemStateChanged(_ context.Context, ev events.ItemStateChanged) error {
	return b.publish(SubjectItemStateChanged, itemMessage{
		ItemID: ev.ItemID,
		Status: string(ev.To),
		At:     ev.At,
	})
}
