package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/slotwise-api/internal/models"
	"github.com/slotwise/slotwise-api/internal/repository"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
)

type fakeBookingRepo struct {
	reserveBooking *models.Booking
	reserveErr     error
	reservedWith   struct {
		slotID     string
		consumerID string
		paymentRef *string
	}
	byID        *models.Booking
	byIDErr     error
	bySlot      *models.Booking
	bySlotErr   error
	list        []models.BookingDetail
	listErr     error
	releasedID  string
	releaseErr  error
	released    int
	releasedErr error
	cutoff      time.Time
}

func (f *fakeBookingRepo) Reserve(_ context.Context, slotID, consumerID string, paymentRef *string) (*models.Booking, error) {
	f.reservedWith.slotID = slotID
	f.reservedWith.consumerID = consumerID
	f.reservedWith.paymentRef = paymentRef
	return f.reserveBooking, f.reserveErr
}

func (f *fakeBookingRepo) FindByID(context.Context, string) (*models.Booking, error) {
	return f.byID, f.byIDErr
}

func (f *fakeBookingRepo) FindBySlot(context.Context, string) (*models.Booking, error) {
	return f.bySlot, f.bySlotErr
}

func (f *fakeBookingRepo) Release(_ context.Context, bookingID string) error {
	f.releasedID = bookingID
	return f.releaseErr
}

func (f *fakeBookingRepo) ListByConsumer(context.Context, string) ([]models.BookingDetail, error) {
	return f.list, f.listErr
}

func (f *fakeBookingRepo) ReleaseExpired(_ context.Context, cutoff time.Time) (int, error) {
	f.cutoff = cutoff
	return f.released, f.releasedErr
}

type fakeSlotRepo struct {
	slot       *models.Slot
	findErr    error
	inserted   []models.Slot
	insertN    int
	insertErr  error
	openSlots  []models.SlotDetail
	openTotal  int
	openErr    error
	lastFilter models.SlotFilter
}

func (f *fakeSlotRepo) FindByID(context.Context, string) (*models.Slot, error) {
	return f.slot, f.findErr
}

func (f *fakeSlotRepo) InsertGeneration(_ context.Context, slots []models.Slot) (int, error) {
	f.inserted = slots
	return f.insertN, f.insertErr
}

func (f *fakeSlotRepo) ListOpen(_ context.Context, filter models.SlotFilter) ([]models.SlotDetail, int, error) {
	f.lastFilter = filter
	return f.openSlots, f.openTotal, f.openErr
}

type fakeInvalidator struct {
	patterns []string
	err      error
}

func (f *fakeInvalidator) DeleteByPattern(_ context.Context, pattern string) error {
	f.patterns = append(f.patterns, pattern)
	return f.err
}

func consumerClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleConsumer}
}

func TestBookingServiceReserveSuccess(t *testing.T) {
	bookings := &fakeBookingRepo{reserveBooking: &models.Booking{ID: "bk-1", SlotID: "slot-1", ConsumerID: "user-1"}}
	slots := &fakeSlotRepo{slot: &models.Slot{ID: "slot-1", ProviderID: "prov-1"}}
	invalidator := &fakeInvalidator{}
	svc := NewBookingService(bookings, slots, invalidator, nil, nil, time.Minute)

	booking, err := svc.Reserve(context.Background(), consumerClaims("user-1"), "slot-1")
	require.NoError(t, err)
	assert.Equal(t, "bk-1", booking.ID)
	assert.Equal(t, "user-1", bookings.reservedWith.consumerID)
	assert.Nil(t, bookings.reservedWith.paymentRef)
	assert.Equal(t, []string{"analytics:prov-1"}, invalidator.patterns)
}

func TestBookingServiceReserveConflict(t *testing.T) {
	bookings := &fakeBookingRepo{reserveErr: repository.ErrSlotTaken}
	slots := &fakeSlotRepo{slot: &models.Slot{ID: "slot-1", ProviderID: "prov-1"}}
	svc := NewBookingService(bookings, slots, nil, nil, nil, time.Minute)

	_, err := svc.Reserve(context.Background(), consumerClaims("user-1"), "slot-1")
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAlreadyBooked.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
}

func TestBookingServiceReserveUnknownSlot(t *testing.T) {
	slots := &fakeSlotRepo{findErr: sql.ErrNoRows}
	svc := NewBookingService(&fakeBookingRepo{}, slots, nil, nil, nil, time.Minute)

	_, err := svc.Reserve(context.Background(), consumerClaims("user-1"), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceReserveRequiresConsumerRole(t *testing.T) {
	svc := NewBookingService(&fakeBookingRepo{}, &fakeSlotRepo{}, nil, nil, nil, time.Minute)

	_, err := svc.Reserve(context.Background(), &models.JWTClaims{UserID: "user-1", Role: models.RoleProvider}, "slot-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceReserveRepositoryFailure(t *testing.T) {
	bookings := &fakeBookingRepo{reserveErr: errors.New("boom")}
	slots := &fakeSlotRepo{slot: &models.Slot{ID: "slot-1"}}
	svc := NewBookingService(bookings, slots, nil, nil, nil, time.Minute)

	_, err := svc.Reserve(context.Background(), consumerClaims("user-1"), "slot-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceList(t *testing.T) {
	bookings := &fakeBookingRepo{list: []models.BookingDetail{{Booking: models.Booking{ID: "bk-1"}}}}
	svc := NewBookingService(bookings, &fakeSlotRepo{}, nil, nil, nil, time.Minute)

	list, err := svc.List(context.Background(), consumerClaims("user-1"))
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// casBookingRepo mimics the database's compare-and-set reservation: the
// first Reserve for a slot wins under the lock, every later one loses.
type casBookingRepo struct {
	fakeBookingRepo
	mu    sync.Mutex
	taken map[string]string
}

func (f *casBookingRepo) Reserve(_ context.Context, slotID, consumerID string, _ *string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, booked := f.taken[slotID]; booked {
		return nil, repository.ErrSlotTaken
	}
	f.taken[slotID] = consumerID
	return &models.Booking{ID: "bk-" + consumerID, SlotID: slotID, ConsumerID: consumerID}, nil
}

func TestBookingServiceReserveConcurrentSingleWinner(t *testing.T) {
	repo := &casBookingRepo{taken: map[string]string{}}
	slots := &fakeSlotRepo{slot: &models.Slot{ID: "slot-1", ProviderID: "prov-1"}}
	svc := NewBookingService(repo, slots, nil, nil, nil, time.Minute)

	const attempts = 16
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), consumerClaims(fmt.Sprintf("user-%d", n)), "slot-1")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	winners, conflicts := 0, 0
	for err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.Equal(t, appErrors.ErrAlreadyBooked.Code, appErrors.FromError(err).Code)
		conflicts++
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, attempts-1, conflicts)
}

func TestBookingServiceCancelReleasesUnpaidHold(t *testing.T) {
	bookings := &fakeBookingRepo{byID: &models.Booking{ID: "bk-1", ConsumerID: "user-1"}}
	invalidator := &fakeInvalidator{}
	svc := NewBookingService(bookings, &fakeSlotRepo{}, invalidator, nil, nil, time.Minute)

	require.NoError(t, svc.Cancel(context.Background(), consumerClaims("user-1"), "bk-1"))
	assert.Equal(t, "bk-1", bookings.releasedID)
	assert.Equal(t, []string{"analytics:*"}, invalidator.patterns)
}

func TestBookingServiceCancelRefusesPaidBooking(t *testing.T) {
	bookings := &fakeBookingRepo{byID: &models.Booking{ID: "bk-1", ConsumerID: "user-1", IsPaid: true}}
	svc := NewBookingService(bookings, &fakeSlotRepo{}, nil, nil, nil, time.Minute)

	err := svc.Cancel(context.Background(), consumerClaims("user-1"), "bk-1")
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAlreadyPaid.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
	assert.Empty(t, bookings.releasedID)
}

func TestBookingServiceCancelConflictsWhenPaymentRaces(t *testing.T) {
	bookings := &fakeBookingRepo{
		byID:       &models.Booking{ID: "bk-1", ConsumerID: "user-1"},
		releaseErr: sql.ErrNoRows,
	}
	svc := NewBookingService(bookings, &fakeSlotRepo{}, nil, nil, nil, time.Minute)

	err := svc.Cancel(context.Background(), consumerClaims("user-1"), "bk-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotReleasable.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceCancelHidesForeignBooking(t *testing.T) {
	bookings := &fakeBookingRepo{byID: &models.Booking{ID: "bk-1", ConsumerID: "someone-else"}}
	svc := NewBookingService(bookings, &fakeSlotRepo{}, nil, nil, nil, time.Minute)

	err := svc.Cancel(context.Background(), consumerClaims("user-1"), "bk-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, bookings.releasedID)
}

func TestBookingServiceCancelUnknownBooking(t *testing.T) {
	bookings := &fakeBookingRepo{byIDErr: sql.ErrNoRows}
	svc := NewBookingService(bookings, &fakeSlotRepo{}, nil, nil, nil, time.Minute)

	err := svc.Cancel(context.Background(), consumerClaims("user-1"), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceSweepExpiredHolds(t *testing.T) {
	bookings := &fakeBookingRepo{released: 3}
	invalidator := &fakeInvalidator{}
	svc := NewBookingService(bookings, &fakeSlotRepo{}, invalidator, nil, nil, 30*time.Minute)

	before := time.Now().UTC().Add(-30 * time.Minute)
	released, err := svc.SweepExpiredHolds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, released)
	assert.Equal(t, []string{"analytics:*"}, invalidator.patterns)
	assert.WithinDuration(t, before, bookings.cutoff, 5*time.Second)
}

func TestBookingServiceSweepNoopWhenNothingExpired(t *testing.T) {
	invalidator := &fakeInvalidator{}
	svc := NewBookingService(&fakeBookingRepo{}, &fakeSlotRepo{}, invalidator, nil, nil, time.Minute)

	released, err := svc.SweepExpiredHolds(context.Background())
	require.NoError(t, err)
	assert.Zero(t, released)
	assert.Empty(t, invalidator.patterns)
}
