//go:build integration

package order_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/knowton/marketplace/internal/marketplace/models"
	"github.com/knowton/marketplace/internal/marketplace/store/order"
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
	"github.com/knowton/marketplace/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *order.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = order.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "marketplace_orders"))
}

func newTestOrder(tokenID uuid.UUID, side models.Side, price int64) *models.Order {
	return &models.Order{
		ID:        uuid.New(),
		TokenID:   tokenID,
		Owner:     "0xowner",
		Side:      side,
		Type:      models.TypeLimit,
		Price:     big.NewInt(price),
		Quantity:  big.NewInt(10),
		Remaining: big.NewInt(10),
		Status:    models.StatusOpen,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresStoreSuite) TestCreateAndGet() {
	ctx := context.Background()
	expiry := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)

	o := newTestOrder(uuid.New(), models.SideBuy, 1_000)
	o.ExpiresAt = &expiry
	s.Require().NoError(s.store.Create(ctx, o))

	got, err := s.store.Get(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(o.ID, got.ID)
	s.Equal(o.TokenID, got.TokenID)
	s.Equal(models.SideBuy, got.Side)
	s.Equal(models.TypeLimit, got.Type)
	s.Zero(o.Price.Cmp(got.Price))
	s.Zero(o.Remaining.Cmp(got.Remaining))
	s.Require().NotNil(got.ExpiresAt)
	s.True(expiry.Equal(*got.ExpiresAt))
}

func (s *PostgresStoreSuite) TestMarketOrderHasNoPrice() {
	ctx := context.Background()

	o := newTestOrder(uuid.New(), models.SideSell, 0)
	o.Type = models.TypeMarket
	o.Price = nil
	s.Require().NoError(s.store.Create(ctx, o))

	got, err := s.store.Get(ctx, o.ID)
	s.Require().NoError(err)
	s.Nil(got.Price)
	s.Nil(got.ExpiresAt)
}

func (s *PostgresStoreSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), uuid.New())
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *PostgresStoreSuite) TestUpdate() {
	ctx := context.Background()

	o := newTestOrder(uuid.New(), models.SideBuy, 500)
	s.Require().NoError(s.store.Create(ctx, o))

	o.Remaining = big.NewInt(3)
	o.Status = models.StatusPartiallyFilled
	s.Require().NoError(s.store.Update(ctx, o))

	got, err := s.store.Get(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPartiallyFilled, got.Status)
	s.Zero(big.NewInt(3).Cmp(got.Remaining))
}

func (s *PostgresStoreSuite) TestUpdateMissing() {
	o := newTestOrder(uuid.New(), models.SideBuy, 500)
	err := s.store.Update(context.Background(), o)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *PostgresStoreSuite) TestListOpenByToken() {
	ctx := context.Background()
	tokenID := uuid.New()

	first := newTestOrder(tokenID, models.SideBuy, 100)
	first.CreatedAt = time.Now().UTC().Add(-2 * time.Minute)
	second := newTestOrder(tokenID, models.SideSell, 200)
	second.CreatedAt = time.Now().UTC().Add(-time.Minute)
	filled := newTestOrder(tokenID, models.SideBuy, 150)
	filled.Status = models.StatusFilled
	other := newTestOrder(uuid.New(), models.SideBuy, 100)

	for _, o := range []*models.Order{first, second, filled, other} {
		s.Require().NoError(s.store.Create(ctx, o))
	}

	open, err := s.store.ListOpenByToken(ctx, tokenID)
	s.Require().NoError(err)
	s.Require().Len(open, 2)
	s.Equal(first.ID, open[0].ID)
	s.Equal(second.ID, open[1].ID)
}

func (s *PostgresStoreSuite) TestListOpenTokenIDs() {
	ctx := context.Background()
	tokenA := uuid.New()
	tokenB := uuid.New()

	s.Require().NoError(s.store.Create(ctx, newTestOrder(tokenA, models.SideBuy, 100)))
	s.Require().NoError(s.store.Create(ctx, newTestOrder(tokenA, models.SideSell, 200)))
	cancelled := newTestOrder(tokenB, models.SideBuy, 100)
	cancelled.Status = models.StatusCancelled
	s.Require().NoError(s.store.Create(ctx, cancelled))

	ids, err := s.store.ListOpenTokenIDs(ctx)
	s.Require().NoError(err)
	s.Require().Len(ids, 1)
	s.Equal(tokenA, ids[0])
}

func (s *PostgresStoreSuite) TestListByOwner() {
	ctx := context.Background()

	open := newTestOrder(uuid.New(), models.SideBuy, 100)
	done := newTestOrder(uuid.New(), models.SideSell, 200)
	done.Status = models.StatusFilled
	s.Require().NoError(s.store.Create(ctx, open))
	s.Require().NoError(s.store.Create(ctx, done))

	all, err := s.store.ListByOwner(ctx, "0xowner", false)
	s.Require().NoError(err)
	s.Len(all, 2)

	openOnly, err := s.store.ListByOwner(ctx, "0xowner", true)
	s.Require().NoError(err)
	s.Require().Len(openOnly, 1)
	s.Equal(open.ID, openOnly[0].ID)
}
