package db_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"payment-webhook-service/internal/db"
	"payment-webhook-service/internal/model"
	"payment-webhook-service/internal/webhook"
)

type RepositoryTestSuite struct {
	suite.Suite
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
	sut       *db.Repository
	ctx       context.Context
}

func (s *RepositoryTestSuite) SetupSuite() {
	time.Local = time.UTC

	s.ctx = context.Background()
	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("webhooks_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		log.Fatal(err)
	}
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	if err != nil {
		log.Fatal(err)
	}

	db.RunMigrations(connStr, "../../migrations")

	pool, err := db.GetPool(connStr)
	if err != nil {
		log.Fatal(err)
	}

	s.pool = pool
	s.sut = db.NewRepository(pool, "")
}

func (s *RepositoryTestSuite) TearDownSuite() {
	s.pool.Close()

	if err := s.container.Terminate(s.ctx); err != nil {
		log.Fatalf("error terminating postgres container: %s", err)
	}
}

func (s *RepositoryTestSuite) SetupTest() {
	for _, table := range []string{"webhook_event", "appointment", "payment", "payout"} {
		_, err := s.pool.Exec(s.ctx, "DELETE FROM "+table)
		if err != nil {
			log.Fatalf("error truncating %s table: %s", table, err)
		}
	}
}

func (s *RepositoryTestSuite) seedPayment(externalID string, status model.PaymentStatus) uuid.UUID {
	var id uuid.UUID
	err := s.pool.QueryRow(s.ctx,
		`INSERT INTO payment (external_id, amount, currency, status) VALUES ($1, 5000, 'usd', $2) RETURNING id`,
		externalID, status).Scan(&id)
	assert.NoError(s.T(), err)
	return id
}

func (s *RepositoryTestSuite) TestClaimEvent_FreshInsert() {
	t := s.T()

	err := s.sut.WithinTx(s.ctx, func(ctx context.Context, tx webhook.Tx) error {
		claim, err := tx.ClaimEvent(ctx, &model.WebhookEvent{
			ID:         "evt_fresh",
			Type:       "payment_intent.succeeded",
			Status:     model.EventStatusProcessing,
			ReceivedAt: time.Now(),
		})
		assert.NoError(t, err)
		assert.Equal(t, webhook.ClaimAcquired, claim)
		return tx.MarkEventProcessed(ctx, "evt_fresh", model.EventStatusApplied, time.Now())
	})
	assert.NoError(t, err)

	var status string
	err = s.pool.QueryRow(s.ctx, `SELECT status FROM webhook_event WHERE id = 'evt_fresh'`).Scan(&status)
	assert.NoError(t, err)
	assert.Equal(t, "applied", status)
}

func (s *RepositoryTestSuite) TestClaimEvent_DuplicateAfterApplied() {
	t := s.T()

	_, err := s.pool.Exec(s.ctx,
		`INSERT INTO webhook_event (id, type, status, received_at) VALUES ('evt_dup', 't', 'applied', now())`)
	assert.NoError(t, err)

	err = s.sut.WithinTx(s.ctx, func(ctx context.Context, tx webhook.Tx) error {
		claim, err := tx.ClaimEvent(ctx, &model.WebhookEvent{ID: "evt_dup", Type: "t", Status: model.EventStatusProcessing, ReceivedAt: time.Now()})
		assert.NoError(t, err)
		assert.Equal(t, webhook.ClaimDuplicate, claim)
		return nil
	})
	assert.NoError(t, err)
}

func (s *RepositoryTestSuite) TestClaimEvent_ReclaimsFailed() {
	t := s.T()

	_, err := s.pool.Exec(s.ctx,
		`INSERT INTO webhook_event (id, type, status, received_at, error) VALUES ('evt_retry', 't', 'failed', now(), 'boom')`)
	assert.NoError(t, err)

	err = s.sut.WithinTx(s.ctx, func(ctx context.Context, tx webhook.Tx) error {
		claim, err := tx.ClaimEvent(ctx, &model.WebhookEvent{ID: "evt_retry", Type: "t", Status: model.EventStatusProcessing, ReceivedAt: time.Now()})
		assert.NoError(t, err)
		assert.Equal(t, webhook.ClaimAcquired, claim)
		return tx.MarkEventProcessed(ctx, "evt_retry", model.EventStatusApplied, time.Now())
	})
	assert.NoError(t, err)

	var status string
	var procErr *string
	err = s.pool.QueryRow(s.ctx, `SELECT status, error FROM webhook_event WHERE id = 'evt_retry'`).Scan(&status, &procErr)
	assert.NoError(t, err)
	assert.Equal(t, "applied", status)
	assert.Nil(t, procErr)
}

func (s *RepositoryTestSuite) TestRollbackDiscardsClaimAndMutation() {
	t := s.T()

	s.seedPayment("pi_rb", model.PaymentStatusPending)

	err := s.sut.WithinTx(s.ctx, func(ctx context.Context, tx webhook.Tx) error {
		if _, err := tx.ClaimEvent(ctx, &model.WebhookEvent{ID: "evt_rb", Type: "t", Status: model.EventStatusProcessing, ReceivedAt: time.Now()}); err != nil {
			return err
		}
		payment, err := tx.PaymentByExternalID(ctx, "pi_rb")
		if err != nil {
			return err
		}
		payment.Status = model.PaymentStatusCompleted
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.Error(t, err)

	var count int
	err = s.pool.QueryRow(s.ctx, `SELECT count(*) FROM webhook_event WHERE id = 'evt_rb'`).Scan(&count)
	assert.NoError(t, err)
	assert.Equal(t, 0, count)

	var status string
	err = s.pool.QueryRow(s.ctx, `SELECT status FROM payment WHERE external_id = 'pi_rb'`).Scan(&status)
	assert.NoError(t, err)
	assert.Equal(t, "pending", status)
}

func (s *RepositoryTestSuite) TestMarkEventFailed_GuardsAppliedRows() {
	t := s.T()

	ev := &model.WebhookEvent{ID: "evt_guard", Type: "t", ReceivedAt: time.Now()}

	err := s.sut.MarkEventFailed(s.ctx, ev, "first failure")
	assert.NoError(t, err)

	var status string
	err = s.pool.QueryRow(s.ctx, `SELECT status FROM webhook_event WHERE id = 'evt_guard'`).Scan(&status)
	assert.NoError(t, err)
	assert.Equal(t, "failed", status)

	_, err = s.pool.Exec(s.ctx, `UPDATE webhook_event SET status = 'applied' WHERE id = 'evt_guard'`)
	assert.NoError(t, err)

	err = s.sut.MarkEventFailed(s.ctx, ev, "late failure")
	assert.NoError(t, err)

	err = s.pool.QueryRow(s.ctx, `SELECT status FROM webhook_event WHERE id = 'evt_guard'`).Scan(&status)
	assert.NoError(t, err)
	assert.Equal(t, "applied", status)
}

func (s *RepositoryTestSuite) TestPaymentRoundTrip() {
	t := s.T()

	id := s.seedPayment("pi_rt", model.PaymentStatusPending)

	err := s.sut.WithinTx(s.ctx, func(ctx context.Context, tx webhook.Tx) error {
		payment, err := tx.PaymentByExternalID(ctx, "pi_rt")
		assert.NoError(t, err)
		assert.NotNil(t, payment)
		assert.Equal(t, id, payment.ID)

		charge := "ch_rt"
		payment.Status = model.PaymentStatusCompleted
		payment.ChargeID = &charge
		return tx.UpdatePayment(ctx, payment)
	})
	assert.NoError(t, err)

	var status, chargeID string
	err = s.pool.QueryRow(s.ctx, `SELECT status, charge_id FROM payment WHERE external_id = 'pi_rt'`).Scan(&status, &chargeID)
	assert.NoError(t, err)
	assert.Equal(t, "completed", status)
	assert.Equal(t, "ch_rt", chargeID)
}

func (s *RepositoryTestSuite) TestPaymentByExternalID_Missing() {
	t := s.T()

	err := s.sut.WithinTx(s.ctx, func(ctx context.Context, tx webhook.Tx) error {
		payment, err := tx.PaymentByExternalID(ctx, "pi_nope")
		assert.NoError(t, err)
		assert.Nil(t, payment)
		return nil
	})
	assert.NoError(t, err)
}

func TestRepositoryTestSuite(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run testcontainers-backed tests")
	}
	suite.Run(t, new(RepositoryTestSuite))
}
