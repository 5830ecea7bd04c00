package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/jinhwansong/konnect-back-sub000/internal/models"
	"github.com/jinhwansong/konnect-back-sub000/internal/repository"
)

var seoul = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}()

// fixedNow is Monday 2026-03-02 09:00 in Seoul.
var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, seoul)

const (
	testSessionID = "session-1"
	testMentorID  = "mentor-1"
	testMenteeID  = "mentee-1"
	testPrice     = int64(30000)
)

var (
	mentee      = models.Actor{UserID: testMenteeID, Role: models.RoleMentee}
	otherMentee = models.Actor{UserID: "mentee-2", Role: models.RoleMentee}
	mentor      = models.Actor{UserID: testMentorID, Role: models.RoleMentor}
	otherMentor = models.Actor{UserID: "mentor-2", Role: models.RoleMentor}
	admin       = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
)

type stubSessions map[string]*models.MentoringSession

func (s stubSessions) FindByID(ctx context.Context, id string) (*models.MentoringSession, error) {
	if session, ok := s[id]; ok {
		cp := *session
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func defaultSessions() stubSessions {
	return stubSessions{testSessionID: {ID: testSessionID, MentorID: testMentorID, Title: "Go code review", Price: testPrice, Duration: 60}}
}

type stubUsers map[string]bool

func (s stubUsers) Exists(ctx context.Context, id string) (bool, error) {
	return s[id], nil
}

// memStore backs reservations and payments in memory. It enforces the same
// slot and settlement uniqueness the database indexes do.
type memStore struct {
	mu           sync.Mutex
	seq          int
	reservations map[string]*models.ReservationDetail
	payments     []*models.Payment
	sessions     stubSessions

	createConflict     bool
	markConfirmedFails bool
	err                error
}

func newMemStore(sessions stubSessions) *memStore {
	return &memStore{reservations: make(map[string]*models.ReservationDetail), sessions: sessions}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) put(res models.Reservation) *models.ReservationDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putLocked(res)
}

func (m *memStore) putLocked(res models.Reservation) *models.ReservationDetail {
	if res.ID == "" {
		res.ID = m.nextID("res")
	}
	detail := &models.ReservationDetail{Reservation: res}
	if session, ok := m.sessions[res.SessionID]; ok {
		detail.MentorID = session.MentorID
		detail.SessionTitle = session.Title
		detail.Price = session.Price
	}
	m.reservations[res.ID] = detail
	return detail
}

func (m *memStore) status(id string) models.ReservationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservations[id].Status
}

func (m *memStore) Create(ctx context.Context, res *models.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.createConflict {
		return repository.ErrSlotConflict
	}
	for _, d := range m.reservations {
		if d.Status.HoldsSlot() && d.Slot() == res.Slot() {
			return repository.ErrSlotConflict
		}
	}
	stored := m.putLocked(*res)
	res.ID = stored.ID
	return nil
}

func (m *memStore) FindActiveBySlot(ctx context.Context, slot models.Slot) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.reservations {
		if d.Status.HoldsSlot() && d.Slot() == slot {
			cp := d.Reservation
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) ListTaken(ctx context.Context, sessionID, date string) ([]models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reservation
	for _, d := range m.reservations {
		if d.SessionID == sessionID && d.DateString() == date && d.Status.HoldsSlot() {
			out = append(out, d.Reservation)
		}
	}
	return out, nil
}

func (m *memStore) FindByID(ctx context.Context, id string) (*models.ReservationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.reservations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) ListByMentee(ctx context.Context, filter models.ReservationFilter) ([]models.ReservationDetail, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReservationDetail
	for _, d := range m.reservations {
		if d.MenteeID == filter.MenteeID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memStore) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from []models.ReservationStatus, next models.ReservationStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.reservations[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if d.Status == s {
			d.Status = next
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Reject(ctx context.Context, id, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.reservations[id]
	if !ok || d.Status != models.ReservationPending {
		return false, nil
	}
	d.Status = models.ReservationRejected
	d.RejectReason = &reason
	return true, nil
}

func (m *memStore) AttachRoom(ctx context.Context, id, roomID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.reservations[id]
	if !ok || d.RoomID != nil {
		return false, nil
	}
	d.RoomID = &roomID
	return true, nil
}

func (m *memStore) MarkConfirmed(ctx context.Context, exec sqlx.ExtContext, id string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.reservations[id]
	if !ok || m.markConfirmedFails || d.Status != models.ReservationPending {
		return false, nil
	}
	d.Status = models.ReservationConfirmed
	d.PaidAt = &paidAt
	return true, nil
}

func (m *memStore) Insert(ctx context.Context, exec sqlx.ExtContext, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Status == models.PaymentSuccess || p.Status == models.PaymentRefunded {
		for _, existing := range m.payments {
			if existing.ReservationID == p.ReservationID && (existing.Status == models.PaymentSuccess || existing.Status == models.PaymentRefunded) {
				return repository.ErrDuplicatePayment
			}
		}
	}
	if p.ID == "" {
		p.ID = m.nextID("pay")
	}
	cp := *p
	m.payments = append(m.payments, &cp)
	return nil
}

func (m *memStore) FindSuccessByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.OrderID == orderID && p.Status == models.PaymentSuccess {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) FindByPaymentKey(ctx context.Context, paymentKey string) (*models.PaymentWithOwner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.Payment
	for _, p := range m.payments {
		if p.PaymentKey != paymentKey {
			continue
		}
		if found == nil || p.Status == models.PaymentSuccess {
			found = p
		}
	}
	if found == nil {
		return nil, sql.ErrNoRows
	}
	res := m.reservations[found.ReservationID]
	return &models.PaymentWithOwner{Payment: *found, MenteeID: res.MenteeID, ReservationStatus: res.Status}, nil
}

func (m *memStore) MarkRefunded(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ID == id && p.Status == models.PaymentSuccess {
			p.Status = models.PaymentRefunded
			p.RefundedAt = &at
			return true, nil
		}
	}
	return false, nil
}

// ExpireHolds mirrors the repository sweep: PENDING and past expires_at.
func (m *memStore) ExpireHolds(ctx context.Context, now time.Time) ([]string, error) {
	return m.sweep(models.ReservationExpired, func(d *models.ReservationDetail) bool {
		return d.HoldExpired(now)
	})
}

// StartSessions mirrors the repository sweep: CONFIRMED and now inside the window.
func (m *memStore) StartSessions(ctx context.Context, now time.Time, loc *time.Location) ([]string, error) {
	return m.sweep(models.ReservationProgress, func(d *models.ReservationDetail) bool {
		return d.Status == models.ReservationConfirmed && !d.StartsAt(loc).After(now) && d.EndsAt(loc).After(now)
	})
}

// CompleteSessions mirrors the repository sweep: PROGRESS or CONFIRMED with the end passed.
func (m *memStore) CompleteSessions(ctx context.Context, now time.Time, loc *time.Location) ([]string, error) {
	return m.sweep(models.ReservationCompleted, func(d *models.ReservationDetail) bool {
		live := d.Status == models.ReservationProgress || d.Status == models.ReservationConfirmed
		return live && !d.EndsAt(loc).After(now)
	})
}

func (m *memStore) sweep(next models.ReservationStatus, match func(*models.ReservationDetail) bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var ids []string
	for id, d := range m.reservations {
		if match(d) {
			d.Status = next
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) paymentsFor(reservationID string) []models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if p.ReservationID == reservationID {
			out = append(out, *p)
		}
	}
	return out
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingEmitter) Emit(ctx context.Context, event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type sqlmockTx struct {
	db *sqlx.DB
}

func (t *sqlmockTx) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func newSQLMockTx(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &sqlmockTx{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func mustDate(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation(models.DateLayout, raw, seoul)
	require.NoError(t, err)
	return d
}
