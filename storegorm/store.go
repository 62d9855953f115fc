// Package storegorm is the gorm-backed TxStore: a transaction's arbitrary
// participant set is JSON-marshaled into a single column and updated
// atomically under SELECT ... FOR UPDATE.
package storegorm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/demdxx/gocast"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/brnsampaio/tcc-coordinator/txerr"
	"github.com/brnsampaio/tcc-coordinator/txstore"
)

// record is the row shape: gorm.Model for id/timestamps, the mutable
// columns as plain strings carrying JSON.
type record struct {
	gorm.Model
	Status              string `gorm:"column:status;index"`
	ParticipantStatuses string `gorm:"column:participant_statuses"`
	Metadata            string `gorm:"column:metadata"`
}

func (record) TableName() string { return "tcc_transactions" }

// Store is a gorm-backed TxStore.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if necessary) a sqlite-backed store at dsn and
// migrates its schema. A non-sqlite *gorm.DB can be substituted by calling
// NewWithDB directly — driver selection is an adapter concern, not the
// core's.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("storegorm: open %s: %w", dsn, err)
	}
	return NewWithDB(db)
}

// NewWithDB wraps an already-open *gorm.DB, migrating the transaction table
// if needed.
func NewWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("storegorm: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateTx(ctx context.Context, participantIDs []string, metadata map[string]string) (string, error) {
	statuses := make(map[string]*txstore.ParticipantEntry, len(participantIDs))
	for _, id := range participantIDs {
		statuses[id] = &txstore.ParticipantEntry{
			ParticipantID: id,
			TryStatus:     txstore.TryHanging,
		}
	}
	statusBody, err := json.Marshal(statuses)
	if err != nil {
		return "", txerr.NewStorageError("CreateTx", err)
	}
	metaBody, err := json.Marshal(metadata)
	if err != nil {
		return "", txerr.NewStorageError("CreateTx", err)
	}

	row := &record{
		Status:              string(txstore.TxHanging),
		ParticipantStatuses: string(statusBody),
		Metadata:            string(metaBody),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return "", txerr.NewStorageError("CreateTx", err)
	}
	return gocast.ToString(row.ID), nil
}

// lockAndDo opens a transaction, row-locks the record by id (SELECT ... FOR
// UPDATE inside a gorm.Transaction), and hands it to do for a
// read-modify-write.
func (s *Store) lockAndDo(ctx context.Context, txID string, do func(tx *gorm.DB, row *record) error) error {
	id := parseID(txID)

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &record{}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(row, id).Error; err != nil {
			return err
		}
		return do(tx, row)
	})
	if errors.Is(txErr, gorm.ErrRecordNotFound) {
		return txerr.ErrTransactionNotFound
	}
	return txErr
}

func (s *Store) TXUpdateComponentStatus(ctx context.Context, txID string, participantID string, accept bool) error {
	err := s.lockAndDo(ctx, txID, func(tx *gorm.DB, row *record) error {
		statuses := make(map[string]*txstore.ParticipantEntry)
		if err := json.Unmarshal([]byte(row.ParticipantStatuses), &statuses); err != nil {
			return err
		}
		entry, ok := statuses[participantID]
		if !ok {
			return fmt.Errorf("participant %q not part of transaction %s", participantID, txID)
		}

		target := txstore.TryFailure
		if accept {
			target = txstore.TrySuccessful
		}
		// first-writer-wins: a late Try update after the entry already
		// moved out of Hanging must not overwrite it.
		if entry.TryStatus != txstore.TryHanging {
			return nil
		}
		entry.TryStatus = target

		body, err := json.Marshal(statuses)
		if err != nil {
			return err
		}
		return tx.Model(&record{}).Where("id = ?", row.ID).
			Update("participant_statuses", string(body)).Error
	})
	if err != nil && !errors.Is(err, txerr.ErrTransactionNotFound) {
		return txerr.NewStorageError("TXUpdateComponentStatus", err)
	}
	return err
}

func (s *Store) TXSubmit(ctx context.Context, txID string, success bool) error {
	err := s.lockAndDo(ctx, txID, func(tx *gorm.DB, row *record) error {
		want := txstore.TxFailure
		if success {
			want = txstore.TxSuccessful
		}
		if row.Status == string(want) {
			return nil // idempotent no-op
		}
		if row.Status != string(txstore.TxHanging) {
			return txerr.ErrInvalidTransactionState
		}
		return tx.Model(&record{}).Where("id = ?", row.ID).
			Update("status", string(want)).Error
	})
	if err != nil && !errors.Is(err, txerr.ErrTransactionNotFound) && !errors.Is(err, txerr.ErrInvalidTransactionState) {
		return txerr.NewStorageError("TXSubmit", err)
	}
	return err
}

func (s *Store) GetHangingTXs(ctx context.Context) ([]*txstore.Transaction, error) {
	var rows []*record
	err := s.db.WithContext(ctx).Model(&record{}).
		Where("status = ?", string(txstore.TxHanging)).
		Order("created_at asc").
		Limit(100).
		Find(&rows).Error
	if err != nil {
		return nil, txerr.NewStorageError("GetHangingTXs", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })

	txs := make([]*txstore.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := toTransaction(row)
		if err != nil {
			return nil, txerr.NewStorageError("GetHangingTXs", err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (s *Store) GetTX(ctx context.Context, txID string) (*txstore.Transaction, error) {
	id := parseID(txID)
	row := &record{}
	if err := s.db.WithContext(ctx).First(row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, txerr.ErrTransactionNotFound
		}
		return nil, txerr.NewStorageError("GetTX", err)
	}
	return toTransaction(row)
}

// Store implements txstore.Log. It does not implement Lock/Unlock itself:
// the distributed lock is a separate advisory primitive (see redislock),
// composed with a Store via txstore.Combine to produce a full
// txstore.TxStore — see cmd/coordinatordurable.

func toTransaction(row *record) (*txstore.Transaction, error) {
	statuses := make(map[string]*txstore.ParticipantEntry)
	if err := json.Unmarshal([]byte(row.ParticipantStatuses), &statuses); err != nil {
		return nil, err
	}
	var metadata map[string]string
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &metadata); err != nil {
			return nil, err
		}
	}
	return &txstore.Transaction{
		ID:                  gocast.ToString(row.ID),
		Status:              txstore.TxStatus(row.Status),
		ParticipantStatuses: statuses,
		CreatedAt:           row.CreatedAt,
		Metadata:            metadata,
	}, nil
}

// parseID uses a loose cast rather than strconv: a malformed id casts to
// zero, which simply never matches a row, so callers see
// txerr.ErrTransactionNotFound via the ordinary not-found path instead of a
// separate parse-error branch.
func parseID(txID string) uint {
	return gocast.ToUint(txID)
}
