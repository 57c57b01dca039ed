package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Remote is the primary store the outbox protects.
type Remote interface {
	InsertOne(ctx context.Context, collection string, document interface{}) error
}

// MongoRemote inserts into collections of one database.
type MongoRemote struct {
	DB *mongo.Database
}

func (m MongoRemote) InsertOne(ctx context.Context, collection string, document interface{}) error {
	_, err := m.DB.Collection(collection).InsertOne(ctx, document)
	return err
}

// Writer inserts into the remote store and queues the document locally when
// the failure looks transient.
type Writer struct {
	remote Remote
	outbox *Outbox
	log    *logrus.Entry
}

func NewWriter(remote Remote, outbox *Outbox, log *logrus.Entry) *Writer {
	return &Writer{remote: remote, outbox: outbox, log: log}
}

// Insert returns queued=true when the document went to the outbox instead of the remote store.
// Documents must carry their final _id before calling, otherwise replay would create duplicates.
func (w *Writer) Insert(ctx context.Context, collection string, document interface{}) (bool, error) {
	err := w.remote.InsertOne(ctx, collection, document)
	if err == nil {
		return false, nil
	}
	if !IsTransient(err) || w.outbox == nil {
		return false, err
	}

	payload, merr := bson.MarshalExtJSON(document, true, false)
	if merr != nil {
		return false, fmt.Errorf("failed to encode document for outbox: %w", merr)
	}

	// the request context may be the one that just expired
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	id, qerr := w.outbox.Enqueue(qctx, collection, payload)
	if qerr != nil {
		return false, errors.Join(err, qerr)
	}

	w.log.WithFields(logrus.Fields{
		"collection": collection,
		"outbox_id":  id,
		"cause":      err.Error(),
	}).Warn("remote insert failed, document queued in local outbox")

	return true, nil
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	return strings.Contains(err.Error(), "server selection error")
}
