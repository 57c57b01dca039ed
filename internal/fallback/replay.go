package fallback

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type Replayer struct {
	outbox *Outbox
	remote Remote
	batch  int
	log    *logrus.Entry
}

func NewReplayer(outbox *Outbox, remote Remote, batch int, log *logrus.Entry) *Replayer {
	if batch <= 0 {
		batch = 100
	}
	return &Replayer{outbox: outbox, remote: remote, batch: batch, log: log}
}

// Run drains the outbox every interval until ctx is cancelled.
func (r *Replayer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.Drain(ctx)
			if err != nil {
				r.log.WithError(err).Warn("outbox replay stopped early")
			}
			if n > 0 {
				r.log.WithField("replayed", n).Info("outbox entries replayed")
			}
		}
	}
}

// Drain replays one batch in order and stops at the first remote failure,
// so later documents never overtake earlier ones.
func (r *Replayer) Drain(ctx context.Context) (int, error) {
	entries, err := r.outbox.Oldest(ctx, r.batch)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, e := range entries {
		var doc bson.D
		if err := bson.UnmarshalExtJSON(e.Document, true, &doc); err != nil {
			// a corrupt entry would block the queue forever
			r.log.WithError(err).WithField("outbox_id", e.ID).Error("dropping undecodable outbox entry")
			if err := r.outbox.Delete(ctx, e.ID); err != nil {
				return replayed, err
			}
			continue
		}

		insertErr := r.remote.InsertOne(ctx, e.Collection, doc)
		if insertErr != nil && !mongo.IsDuplicateKeyError(insertErr) {
			if err := r.outbox.MarkFailed(ctx, e.ID, insertErr.Error()); err != nil {
				return replayed, err
			}
			return replayed, fmt.Errorf("replay of outbox entry %d failed: %w", e.ID, insertErr)
		}

		if err := r.outbox.Delete(ctx, e.ID); err != nil {
			return replayed, err
		}
		replayed++
	}

	return replayed, nil
}
