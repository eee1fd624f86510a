package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
)

var bucketEvaluations = []byte("evaluations")

// JournalReporter keeps the latest evaluation per rule and resource in a
// local bbolt file. Like AWS Config, it ignores a record whose ordering
// timestamp is older than the one already stored.
type JournalReporter struct {
	db  *bbolt.DB
	log zerolog.Logger
}

// OpenJournal opens (or creates) the journal at path.
func OpenJournal(path string, log zerolog.Logger) (*JournalReporter, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open journal %q: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvaluations)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal %q: %w", path, err)
	}
	return &JournalReporter{db: db, log: log}, nil
}

// Close releases the journal file lock.
func (j *JournalReporter) Close() error {
	return j.db.Close()
}

// RequiresResultToken implements Reporter. The journal is local and needs
// no token.
func (j *JournalReporter) RequiresResultToken() bool { return false }

// Report implements Reporter.
func (j *JournalReporter) Report(_ context.Context, rec models.EvaluationRecord, _ string) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return reportError(rec, err)
	}

	stale := false
	err = j.db.Update(func(tx *bbolt.Tx) error {
		rules, err := tx.Bucket(bucketEvaluations).CreateBucketIfNotExists([]byte(rec.RuleID))
		if err != nil {
			return err
		}
		key := journalKey(rec)
		if prev := rules.Get(key); prev != nil {
			var stored models.EvaluationRecord
			if err := json.Unmarshal(prev, &stored); err == nil && rec.OrderingTimestamp.Before(stored.OrderingTimestamp) {
				stale = true
				return nil
			}
		}
		return rules.Put(key, value)
	})
	if err != nil {
		return reportError(rec, err)
	}

	if stale {
		j.log.Debug().
			Str("rule", rec.RuleID).
			Str("resource_id", rec.ResourceID).
			Time("ordering_timestamp", rec.OrderingTimestamp).
			Msg("journal kept newer evaluation")
	}
	return nil
}

// List returns every stored record sorted by rule, resource type and
// resource id.
func (j *JournalReporter) List() ([]models.EvaluationRecord, error) {
	var out []models.EvaluationRecord
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEvaluations).ForEachBucket(func(ruleID []byte) error {
			return tx.Bucket(bucketEvaluations).Bucket(ruleID).ForEach(func(_, v []byte) error {
				var rec models.EvaluationRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					return fmt.Errorf("decode record in %s: %w", ruleID, err)
				}
				out = append(out, rec)
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].RuleID != out[b].RuleID {
			return out[a].RuleID < out[b].RuleID
		}
		if out[a].ResourceType != out[b].ResourceType {
			return out[a].ResourceType < out[b].ResourceType
		}
		return out[a].ResourceID < out[b].ResourceID
	})
	return out, nil
}

func journalKey(rec models.EvaluationRecord) []byte {
	return []byte(string(rec.ResourceType) + "|" + rec.ResourceID)
}
