package models

import (
	"context"
	"sync"

	"github.com/mmdatafocus/ims_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func init() {
	// The wire format carries money as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Collection names an observable set of records.
type Collection string

const (
	CollectionProducts     Collection = "products"
	CollectionAdjustments  Collection = "adjustments"
	CollectionTransactions Collection = "transactions"
	CollectionSyncMetadata Collection = "sync_metadata"
	CollectionAuditLogs    Collection = "audit_logs"
	CollectionUsers        Collection = "users"
)

// Change is delivered to observers after the atomic unit that produced it commits.
type Change struct {
	Collection Collection
	EntityId   int
	Action     AuditAction
}

type Observer func(Change)

// Store is the Entity Store handle. Construct one per database; nothing is global.
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() int64

	// single writer per atomic unit
	writeMu sync.Mutex

	obsMu     sync.RWMutex
	observers map[Collection]map[int]Observer
	nextObsId int
}

func NewStore(db *gorm.DB, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		db:        db,
		logger:    logger,
		now:       utils.NowMillis,
		observers: make(map[Collection]map[int]Observer),
	}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Logger() *logrus.Logger {
	return s.logger
}

// Now returns the store clock in epoch milliseconds.
func (s *Store) Now() int64 {
	return s.now()
}

// SetClock replaces the store clock.
func (s *Store) SetClock(now func() int64) {
	s.now = now
}

// Tx is one atomic unit in progress.
type Tx struct {
	*gorm.DB
	store   *Store
	changes []Change
}

// Now returns the clock of the owning store.
func (tx *Tx) Now() int64 {
	return tx.store.now()
}

// Notify queues a change notification, delivered only if the unit commits.
func (tx *Tx) Notify(collection Collection, entityId int, action AuditAction) {
	tx.changes = append(tx.changes, Change{Collection: collection, EntityId: entityId, Action: action})
}

// Atomic runs fn as one atomic unit: store writes, audit appends and dirty
// marks commit together or not at all. Units are serialized per Store.
func (s *Store) Atomic(ctx context.Context, fn func(tx *Tx) error) error {
	tx := &Tx{store: s}
	s.writeMu.Lock()
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		tx.DB = gtx
		return fn(tx)
	})
	s.writeMu.Unlock()
	if err != nil {
		return err
	}
	s.publish(tx.changes)
	return nil
}

// Subscribe registers fn for changes in collection. The returned func unregisters it.
func (s *Store) Subscribe(collection Collection, fn Observer) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.nextObsId++
	id := s.nextObsId
	if s.observers[collection] == nil {
		s.observers[collection] = make(map[int]Observer)
	}
	s.observers[collection][id] = fn
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers[collection], id)
	}
}

func (s *Store) publish(changes []Change) {
	if len(changes) == 0 {
		return
	}
	s.obsMu.RLock()
	var pending []func()
	for _, c := range changes {
		for _, fn := range s.observers[c.Collection] {
			fn, c := fn, c
			pending = append(pending, func() { fn(c) })
		}
	}
	s.obsMu.RUnlock()
	for _, call := range pending {
		call()
	}
}

func actingUserId(ctx context.Context) *int {
	if ctx == nil {
		return nil
	}
	if id, ok := utils.GetUserIdFromContext(ctx); ok && id > 0 {
		return &id
	}
	return nil
}
