package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tidemark/internal/engine"
	"tidemark/internal/news"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// pauseStateModel persists one news pause per symbol. Writes go through an
// upsert so a state is either fully replaced or untouched.
type pauseStateModel struct {
	Symbol      string `gorm:"primaryKey;size:32"`
	Kind        string `gorm:"size:8;not null"`
	ExpiresAtMs int64  `gorm:"not null"`
	Score       float64
	Reason      string `gorm:"size:512"`
	UpdatedAt   time.Time
}

func (pauseStateModel) TableName() string { return "pause_states" }

// decisionModel is the append-only decision log.
type decisionModel struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	TraceID       string `gorm:"size:40;index"`
	SlotID        int64  `gorm:"index:idx_slot_symbol,unique"`
	Symbol        string `gorm:"size:32;index:idx_slot_symbol,unique"`
	Action        string `gorm:"size:8;not null"`
	TargetWeight  float64
	RejectedBy    string `gorm:"size:24"`
	ExitAuthority string `gorm:"size:24"`
	Reason        string `gorm:"size:512"`
	Price         float64
	Payload       datatypes.JSON
	CreatedAt     time.Time `gorm:"index"`
}

func (decisionModel) TableName() string { return "decisions" }

// Store backs pause persistence and the decision log with Gorm + SQLite.
type Store struct {
	db *gorm.DB
}

var (
	_ news.PauseStore = (*Store)(nil)
	_ engine.Sink     = (*Store)(nil)
)

// New opens (or creates) the database at path with WAL enabled.
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	// The DSN uses modernc-style _pragma parameters; route the dialector to
	// the cgo-free "sqlite" driver registered by modernc.org/sqlite, since
	// the default "sqlite3" driver is a stub under CGO_ENABLED=0.
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&pauseStateModel{}, &decisionModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for concurrent HTTP reads while
	// keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadPauseStates returns every persisted pause keyed by symbol, expired
// entries included; the caller decides what expiry means.
func (s *Store) LoadPauseStates(ctx context.Context) (map[string]news.PauseState, error) {
	var rows []pauseStateModel
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load pause states: %w", err)
	}
	out := make(map[string]news.PauseState, len(rows))
	for _, row := range rows {
		kind, err := news.ParsePauseKind(row.Kind)
		if err != nil {
			return nil, fmt.Errorf("pause state %s: %w", row.Symbol, err)
		}
		out[row.Symbol] = news.PauseState{
			Kind:      kind,
			ExpiresAt: time.UnixMilli(row.ExpiresAtMs).UTC(),
			Score:     row.Score,
			Reason:    row.Reason,
		}
	}
	return out, nil
}

// SavePauseState upserts the state for a symbol in one statement.
func (s *Store) SavePauseState(ctx context.Context, symbol string, st news.PauseState) error {
	row := pauseStateModel{
		Symbol:      symbol,
		Kind:        st.Kind.String(),
		ExpiresAtMs: st.ExpiresAt.UnixMilli(),
		Score:       st.Score,
		Reason:      st.Reason,
		UpdatedAt:   time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save pause state %s: %w", symbol, err)
	}
	return nil
}

// AppendDecision writes one decision record. The unique (slot, symbol) index
// makes duplicate emission a hard error rather than a silent overwrite.
func (s *Store) AppendDecision(ctx context.Context, d engine.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	row := decisionModel{
		TraceID:       d.TraceID,
		SlotID:        d.SlotID,
		Symbol:        d.Symbol,
		Action:        string(d.Action),
		TargetWeight:  d.TargetWeight,
		RejectedBy:    d.RejectedBy,
		ExitAuthority: d.ExitAuthority,
		Reason:        d.Reason,
		Price:         d.Price,
		Payload:       datatypes.JSON(payload),
		CreatedAt:     d.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append decision %s slot %d: %w", d.Symbol, d.SlotID, err)
	}
	return nil
}

// RecentDecisions returns the newest records first.
func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]engine.Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []decisionModel
	err := s.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent decisions: %w", err)
	}
	return decodeDecisions(rows)
}

// DecisionsBySlot returns the full record set for one slot in symbol order.
func (s *Store) DecisionsBySlot(ctx context.Context, slotID int64) ([]engine.Decision, error) {
	var rows []decisionModel
	err := s.db.WithContext(ctx).
		Where("slot_id = ?", slotID).
		Order("symbol ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("decisions for slot %d: %w", slotID, err)
	}
	return decodeDecisions(rows)
}

func decodeDecisions(rows []decisionModel) ([]engine.Decision, error) {
	out := make([]engine.Decision, 0, len(rows))
	for _, row := range rows {
		var d engine.Decision
		if len(row.Payload) > 0 {
			if err := json.Unmarshal(row.Payload, &d); err != nil {
				return nil, fmt.Errorf("decode decision %d: %w", row.ID, err)
			}
		} else {
			d = engine.Decision{
				TraceID:       row.TraceID,
				SlotID:        row.SlotID,
				Symbol:        row.Symbol,
				Action:        engine.Action(row.Action),
				TargetWeight:  row.TargetWeight,
				RejectedBy:    row.RejectedBy,
				ExitAuthority: row.ExitAuthority,
				Reason:        row.Reason,
				Price:         row.Price,
				CreatedAt:     row.CreatedAt,
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
