package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/avdeenko/docqa/internal/core/ports"
)

const (
	documentPrefix = "doc:"
	queryPrefix    = "query:"
)

// Log is an append-only activity log backed by an embedded Badger store.
// Records are keyed by timestamp so listings come back in insertion order.
type Log struct {
	db *badger.DB
}

func Open(path string) (*Log, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Log{db: db}, nil
}

func (l *Log) Close() error {
	return l.db.Close()
}

func (l *Log) LogDocument(_ context.Context, url string, docID int64) error {
	record := ports.AuditDocument{URL: url, DocID: docID, LoggedAt: time.Now().UTC()}
	key := fmt.Sprintf("%s%d:%s", documentPrefix, record.LoggedAt.UnixNano(), uuid.NewString())
	return l.append(key, record)
}

func (l *Log) LogQuery(_ context.Context, docID int64, question, answer string) error {
	record := ports.AuditQuery{DocID: docID, Question: question, Answer: answer, LoggedAt: time.Now().UTC()}
	key := fmt.Sprintf("%s%d:%s", queryPrefix, record.LoggedAt.UnixNano(), uuid.NewString())
	return l.append(key, record)
}

func (l *Log) append(key string, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), payload)
	})
	if err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

func (l *Log) ListDocuments(_ context.Context) ([]ports.AuditDocument, error) {
	var out []ports.AuditDocument
	err := l.scan(documentPrefix, func(val []byte) error {
		var record ports.AuditDocument
		if err := json.Unmarshal(val, &record); err != nil {
			return err
		}
		out = append(out, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Log) ListQueries(_ context.Context, docID *int64) ([]ports.AuditQuery, error) {
	var out []ports.AuditQuery
	err := l.scan(queryPrefix, func(val []byte) error {
		var record ports.AuditQuery
		if err := json.Unmarshal(val, &record); err != nil {
			return err
		}
		if docID != nil && record.DocID != *docID {
			return nil
		}
		out = append(out, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Log) scan(prefix string, visit func(val []byte) error) error {
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if err := it.Item().Value(visit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan audit log: %w", err)
	}
	return nil
}
