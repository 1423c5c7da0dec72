package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/flashpath/arbbot/internal/domain"
)

// Archiver periodically writes daily outcome reports to the object store so
// journal rows can be aged out of Postgres.
type Archiver struct {
	client *Client
	store  domain.OutcomeStore
	logger *slog.Logger
}

func NewArchiver(client *Client, store domain.OutcomeStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		client: client,
		store:  store,
		logger: logger.With("component", "archiver"),
	}
}

// report is the archived JSON document: one day of outcomes plus totals.
type report struct {
	Day       string                    `json:"day"`
	Generated time.Time                 `json:"generated_at"`
	Committed int                       `json:"committed"`
	Reverted  int                       `json:"reverted"`
	TimedOut  int                       `json:"timed_out"`
	Rejected  int                       `json:"rejected"`
	Outcomes  []domain.ExecutionOutcome `json:"outcomes"`
}

// ArchiveDay collects the outcomes of the given day and uploads them as a
// single JSON object under reports/YYYY/MM/DD.json.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) error {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	outcomes, err := a.store.ListSince(ctx, start)
	if err != nil {
		return fmt.Errorf("s3blob: listing outcomes: %w", err)
	}
	end := start.AddDate(0, 0, 1)

	rep := report{
		Day:       start.Format("2006-01-02"),
		Generated: time.Now().UTC(),
	}
	for _, o := range outcomes {
		if !o.ResolvedAt.Before(end) {
			continue
		}
		rep.Outcomes = append(rep.Outcomes, o)
		switch o.Status {
		case domain.OutcomeCommitted:
			rep.Committed++
		case domain.OutcomeReverted:
			rep.Reverted++
		case domain.OutcomeTimedOut:
			rep.TimedOut++
		case domain.OutcomeNotSubmitted:
			rep.Rejected++
		}
	}

	body, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: encoding report: %w", err)
	}
	key := fmt.Sprintf("reports/%s.json", start.Format("2006/01/02"))
	_, err = a.client.S3().PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.client.Bucket()),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: uploading %s: %w", key, err)
	}
	a.logger.Info("daily report archived",
		"key", key, "outcomes", len(rep.Outcomes))
	return nil
}

// Run archives yesterday's report shortly after each midnight until ctx is
// cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 5, 0, 0, now.Location()).AddDate(0, 0, 1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}
		yesterday := time.Now().AddDate(0, 0, -1)
		if err := a.ArchiveDay(ctx, yesterday); err != nil {
			a.logger.Error("archiving failed", "error", err)
		}
	}
}
