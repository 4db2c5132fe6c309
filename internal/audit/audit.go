// Package audit registra eventos de auditoría del flujo de callback:
// estructurados via logger siempre, y best-effort en postgres cuando hay
// un pool configurado.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/idpgate/internal/observability/logger"
)

// Event kinds.
const (
	KindCallbackDecision = "idp.callback.decision"
	KindLinkCreated      = "idp.link.created"
	KindUserAutoCreated  = "idp.user.autocreated"
)

// Event es un evento de auditoría.
type Event struct {
	ID        string
	Kind      string
	Provider  string
	IntentID  string
	UserID    string
	OrgID     string
	Outcome   string
	RequestID string
	At        time.Time
}

// Recorder persiste eventos. Con pool nil solo loguea.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder abre un pool de postgres si dsn no es vacío.
func NewRecorder(ctx context.Context, dsn string) (*Recorder, error) {
	if dsn == "" {
		return &Recorder{}, nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Recorder{pool: pool}, nil
}

// Pool expone el pool subyacente (para métricas). Puede ser nil.
func (r *Recorder) Pool() *pgxpool.Pool {
	if r == nil {
		return nil
	}
	return r.pool
}

// Close cierra el pool si existe.
func (r *Recorder) Close() {
	if r != nil && r.pool != nil {
		r.pool.Close()
	}
}

// Record registra un evento. El insert en postgres es best-effort: un fallo
// se loguea pero nunca afecta al request.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	log := logger.From(ctx).With(logger.Component("audit"))
	log.Info(ev.Kind,
		logger.String("audit_id", ev.ID),
		logger.Provider(ev.Provider),
		logger.IntentID(ev.IntentID),
		logger.UserID(ev.UserID),
		logger.OrgID(ev.OrgID),
		logger.Outcome(ev.Outcome),
		logger.RequestID(ev.RequestID),
	)

	if r == nil || r.pool == nil {
		return
	}
	const q = `INSERT INTO audit_events
		(id, kind, provider, intent_id, user_id, org_id, outcome, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.pool.Exec(ctx, q,
		ev.ID, ev.Kind, ev.Provider, ev.IntentID, ev.UserID, ev.OrgID, ev.Outcome, ev.RequestID, ev.At,
	); err != nil {
		log.Warn("audit insert failed", logger.Err(err))
	}
}
