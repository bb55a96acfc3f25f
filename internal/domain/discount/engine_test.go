package discount

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	byCode map[string]*Discount
	byID   map[uuid.UUID]*Discount

	userUsage    map[string]int // userID -> prior redemptions
	userUsageErr error

	consumed    []string // userIDs passed to ConsumeUse
	consumeErr  error
	created     *Discount
	createErr   error
	deactivated []uuid.UUID
	deleted     []uuid.UUID
}

func newMockRepo(discounts ...*Discount) *mockRepo {
	m := &mockRepo{
		byCode:    make(map[string]*Discount),
		byID:      make(map[uuid.UUID]*Discount),
		userUsage: make(map[string]int),
	}
	for _, d := range discounts {
		m.byCode[d.Code] = d
		m.byID[d.ID] = d
	}
	return m
}

func (m *mockRepo) Create(_ context.Context, d *Discount) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.byCode[d.Code]; ok {
		return ErrCodeExists
	}
	m.created = d
	m.byCode[d.Code] = d
	m.byID[d.ID] = d
	return nil
}

func (m *mockRepo) FindByCode(_ context.Context, code string) (*Discount, error) {
	d, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (m *mockRepo) FindByID(_ context.Context, id uuid.UUID) (*Discount, error) {
	d, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (m *mockRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	d, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	d.Active = active
	m.deactivated = append(m.deactivated, id)
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockRepo) UserUsageCount(_ context.Context, _ uuid.UUID, userID string) (int, error) {
	if m.userUsageErr != nil {
		return 0, m.userUsageErr
	}
	return m.userUsage[userID], nil
}

func (m *mockRepo) ConsumeUse(_ context.Context, id uuid.UUID, userID string) error {
	if m.consumeErr != nil {
		return m.consumeErr
	}
	m.consumed = append(m.consumed, userID)
	if d, ok := m.byID[id]; ok {
		d.UsageCount++
	}
	return nil
}

func newTestEngine(repo Repository, now time.Time) *Engine {
	e := NewEngine(repo)
	e.now = func() time.Time { return now }
	return e
}

func TestEngine_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-24 * time.Hour)
	future := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name       string
		discount   *Discount
		code       string
		wantValid  bool
		wantReason string
	}{
		{
			name:       "unknown code",
			code:       "BOGUS",
			wantReason: ReasonNotFound,
		},
		{
			name: "active unrestricted code is valid",
			discount: &Discount{
				ID: uuid.New(), Code: "SAVE20", Type: TypePercentage,
				Value: dec("20"), Active: true,
			},
			code:      "save20",
			wantValid: true,
		},
		{
			name: "inactive code",
			discount: &Discount{
				ID: uuid.New(), Code: "RETIRED", Type: TypePercentage,
				Value: dec("10"), Active: false,
			},
			code:       "RETIRED",
			wantReason: ReasonInactive,
		},
		{
			name: "expired code",
			discount: &Discount{
				ID: uuid.New(), Code: "OLD", Type: TypePercentage,
				Value: dec("10"), Active: true, ExpiresAt: &past,
			},
			code:       "OLD",
			wantReason: ReasonExpired,
		},
		{
			name: "expired wins over every other constraint",
			discount: &Discount{
				ID: uuid.New(), Code: "DEAD", Type: TypePercentage,
				Value: dec("10"), Active: true, ExpiresAt: &past,
				MaxUsageCount: 5, UsageCount: 5,
			},
			code:       "DEAD",
			wantReason: ReasonExpired,
		},
		{
			name: "not yet started",
			discount: &Discount{
				ID: uuid.New(), Code: "SOON", Type: TypePercentage,
				Value: dec("10"), Active: true, StartsAt: &future,
			},
			code:       "SOON",
			wantReason: ReasonNotStarted,
		},
		{
			name: "inactive checked before expiry",
			discount: &Discount{
				ID: uuid.New(), Code: "OFFOLD", Type: TypePercentage,
				Value: dec("10"), Active: false, ExpiresAt: &past,
			},
			code:       "OFFOLD",
			wantReason: ReasonInactive,
		},
		{
			name: "global usage cap reached",
			discount: &Discount{
				ID: uuid.New(), Code: "LIMITED", Type: TypeFixedAmount,
				Value: dec("5"), Active: true, MaxUsageCount: 100, UsageCount: 100,
			},
			code:       "LIMITED",
			wantReason: ReasonUsageLimit,
		},
		{
			name: "usage under cap is valid",
			discount: &Discount{
				ID: uuid.New(), Code: "HASROOM", Type: TypeFixedAmount,
				Value: dec("5"), Active: true, MaxUsageCount: 100, UsageCount: 99,
			},
			code:      "HASROOM",
			wantValid: true,
		},
		{
			name: "no cap means unbounded usage",
			discount: &Discount{
				ID: uuid.New(), Code: "FOREVER", Type: TypeFixedAmount,
				Value: dec("5"), Active: true, UsageCount: 100000,
			},
			code:      "FOREVER",
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			if tt.discount != nil {
				repo = newMockRepo(tt.discount)
			}
			e := newTestEngine(repo, fixedNow)

			res, err := e.Validate(context.Background(), tt.code)
			require.NoError(t, err)

			assert.Equal(t, tt.wantValid, res.Valid)
			assert.Equal(t, tt.wantReason, res.Reason)
			if tt.wantValid {
				require.NotNil(t, res.Discount)
			}
		})
	}
}

func TestEngine_Apply(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	save20 := func() *Discount {
		return &Discount{
			ID: uuid.New(), Code: "SAVE20", Type: TypePercentage,
			Value: dec("20"), Active: true,
		}
	}

	t.Run("percentage applied to subtotal", func(t *testing.T) {
		repo := newMockRepo(save20())
		e := newTestEngine(repo, fixedNow)

		app, err := e.Apply(context.Background(), ApplyRequest{
			Code: "SAVE20", Subtotal: dec("100"), UserID: "u1",
		})
		require.NoError(t, err)
		assert.True(t, dec("20").Equal(app.DiscountAmount))
		assert.True(t, dec("80").Equal(app.FinalAmount))
		assert.False(t, app.FreeShipping)
		assert.Equal(t, []string{"u1"}, repo.consumed)
	})

	t.Run("percentage capped by max discount amount", func(t *testing.T) {
		d := save20()
		d.Code = "SAVE20MAX10"
		d.MaxDiscountAmount = dec("10")
		repo := newMockRepo(d)
		e := newTestEngine(repo, fixedNow)

		app, err := e.Apply(context.Background(), ApplyRequest{
			Code: "SAVE20MAX10", Subtotal: dec("100"), UserID: "u1",
		})
		require.NoError(t, err)
		assert.True(t, dec("10").Equal(app.DiscountAmount))
		assert.True(t, dec("90").Equal(app.FinalAmount))
	})

	t.Run("fixed amount capped at subtotal", func(t *testing.T) {
		repo := newMockRepo(&Discount{
			ID: uuid.New(), Code: "SAVE50", Type: TypeFixedAmount,
			Value: dec("50"), Active: true,
		})
		e := newTestEngine(repo, fixedNow)

		app, err := e.Apply(context.Background(), ApplyRequest{
			Code: "SAVE50", Subtotal: dec("30"), UserID: "u1",
		})
		require.NoError(t, err)
		assert.True(t, dec("30").Equal(app.DiscountAmount))
		assert.True(t, app.FinalAmount.IsZero())
	})

	t.Run("free shipping reports shipping discount", func(t *testing.T) {
		repo := newMockRepo(&Discount{
			ID: uuid.New(), Code: "SHIPFREE", Type: TypeFreeShipping,
			Value: dec("0"), Active: true,
		})
		e := newTestEngine(repo, fixedNow)

		app, err := e.Apply(context.Background(), ApplyRequest{
			Code: "SHIPFREE", Subtotal: dec("100"), UserID: "u1",
			ShippingCost: dec("7.50"),
		})
		require.NoError(t, err)
		assert.True(t, app.DiscountAmount.IsZero())
		assert.True(t, dec("100").Equal(app.FinalAmount))
		assert.True(t, app.FreeShipping)
		assert.True(t, dec("7.50").Equal(app.ShippingDiscount))
	})

	t.Run("invalid code surfaces reason as rule error", func(t *testing.T) {
		e := newTestEngine(newMockRepo(), fixedNow)

		_, err := e.Apply(context.Background(), ApplyRequest{
			Code: "BOGUS", Subtotal: dec("100"), UserID: "u1",
		})
		var ruleErr *RuleError
		require.ErrorAs(t, err, &ruleErr)
		assert.Equal(t, ReasonNotFound, ruleErr.Reason)
	})

	t.Run("subtotal below minimum purchase", func(t *testing.T) {
		d := save20()
		d.MinPurchaseAmount = dec("50")
		repo := newMockRepo(d)
		e := newTestEngine(repo, fixedNow)

		_, err := e.Apply(context.Background(), ApplyRequest{
			Code: "SAVE20", Subtotal: dec("49.99"), UserID: "u1",
		})
		var ruleErr *RuleError
		require.ErrorAs(t, err, &ruleErr)
		assert.Contains(t, ruleErr.Reason, "minimum purchase")
		assert.Empty(t, repo.consumed)
	})

	t.Run("per-user usage cap reached", func(t *testing.T) {
		d := save20()
		d.MaxUsagePerUser = 2
		repo := newMockRepo(d)
		repo.userUsage["u1"] = 2
		e := newTestEngine(repo, fixedNow)

		_, err := e.Apply(context.Background(), ApplyRequest{
			Code: "SAVE20", Subtotal: dec("100"), UserID: "u1",
		})
		var ruleErr *RuleError
		require.ErrorAs(t, err, &ruleErr)
		assert.Contains(t, ruleErr.Reason, "usage limit reached for this user")
		assert.Empty(t, repo.consumed)
	})

	t.Run("per-user usage under cap succeeds", func(t *testing.T) {
		d := save20()
		d.MaxUsagePerUser = 2
		repo := newMockRepo(d)
		repo.userUsage["u1"] = 1
		e := newTestEngine(repo, fixedNow)

		_, err := e.Apply(context.Background(), ApplyRequest{
			Code: "SAVE20", Subtotal: dec("100"), UserID: "u1",
		})
		require.NoError(t, err)
	})

	t.Run("lost increment race maps to usage limit", func(t *testing.T) {
		repo := newMockRepo(save20())
		repo.consumeErr = ErrUsageExhausted
		e := newTestEngine(repo, fixedNow)

		_, err := e.Apply(context.Background(), ApplyRequest{
			Code: "SAVE20", Subtotal: dec("100"), UserID: "u1",
		})
		var ruleErr *RuleError
		require.ErrorAs(t, err, &ruleErr)
		assert.Equal(t, ReasonUsageLimit, ruleErr.Reason)
	})

	t.Run("infrastructure failure is not a rule error", func(t *testing.T) {
		repo := newMockRepo(save20())
		repo.consumeErr = errors.New("connection reset")
		e := newTestEngine(repo, fixedNow)

		_, err := e.Apply(context.Background(), ApplyRequest{
			Code: "SAVE20", Subtotal: dec("100"), UserID: "u1",
		})
		require.Error(t, err)
		var ruleErr *RuleError
		assert.False(t, errors.As(err, &ruleErr))
	})
}

func TestEngine_CalculateSavings(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-24 * time.Hour)

	repo := newMockRepo(
		&Discount{
			ID: uuid.New(), Code: "SAVE20", Type: TypePercentage,
			Value: dec("20"), Active: true,
		},
		// Expired and exhausted: preview still works because savings
		// calculation skips eligibility entirely.
		&Discount{
			ID: uuid.New(), Code: "OLD10", Type: TypeFixedAmount,
			Value: dec("10"), Active: false, ExpiresAt: &past,
			MaxUsageCount: 1, UsageCount: 1,
		},
	)
	e := newTestEngine(repo, fixedNow)

	got, err := e.CalculateSavings(context.Background(), "save20", dec("200"))
	require.NoError(t, err)
	assert.True(t, dec("40").Equal(got))

	got, err = e.CalculateSavings(context.Background(), "OLD10", dec("200"))
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(got))

	got, err = e.CalculateSavings(context.Background(), "NOPE", dec("200"))
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	assert.Empty(t, repo.consumed, "preview must not consume uses")
}

func TestEngine_Stats(t *testing.T) {
	capped := &Discount{
		ID: uuid.New(), Code: "CAPPED", Type: TypePercentage,
		Value: dec("10"), Active: true, MaxUsageCount: 200, UsageCount: 50,
	}
	uncapped := &Discount{
		ID: uuid.New(), Code: "OPEN", Type: TypePercentage,
		Value: dec("10"), Active: true, UsageCount: 75,
	}
	e := NewEngine(newMockRepo(capped, uncapped))

	stats, err := e.Stats(context.Background(), capped.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, stats.TotalUsage)
	require.NotNil(t, stats.RemainingUsage)
	assert.Equal(t, 150, *stats.RemainingUsage)
	assert.InDelta(t, 25.0, stats.UsagePercentage, 1e-9)

	stats, err = e.Stats(context.Background(), uncapped.ID)
	require.NoError(t, err)
	assert.Equal(t, 75, stats.TotalUsage)
	assert.Nil(t, stats.RemainingUsage)
	assert.Zero(t, stats.UsagePercentage)

	_, err = e.Stats(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_Create(t *testing.T) {
	tests := []struct {
		name    string
		params  CreateParams
		wantErr string
	}{
		{
			name:   "valid percentage",
			params: CreateParams{Code: "spring25", Type: TypePercentage, Value: dec("25")},
		},
		{
			name:    "percentage over 100 rejected",
			params:  CreateParams{Code: "TOOBIG", Type: TypePercentage, Value: dec("150")},
			wantErr: "between 0 and 100",
		},
		{
			name:    "negative value rejected",
			params:  CreateParams{Code: "NEG", Type: TypeFixedAmount, Value: dec("-5")},
			wantErr: "must not be negative",
		},
		{
			name: "negative minimum purchase rejected",
			params: CreateParams{
				Code: "NEGMIN", Type: TypeFixedAmount, Value: dec("5"),
				MinPurchaseAmount: dec("-1"),
			},
			wantErr: "must not be negative",
		},
		{
			name: "negative max discount rejected",
			params: CreateParams{
				Code: "NEGMAX", Type: TypePercentage, Value: dec("5"),
				MaxDiscountAmount: dec("-1"),
			},
			wantErr: "must not be negative",
		},
		{
			name:    "unsupported type rejected",
			params:  CreateParams{Code: "WHAT", Type: Type("bogo"), Value: dec("5")},
			wantErr: "Unsupported discount type",
		},
		{
			name:    "blank code rejected",
			params:  CreateParams{Code: "  ", Type: TypePercentage, Value: dec("5")},
			wantErr: "code is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			e := NewEngine(repo)

			d, err := e.Create(context.Background(), tt.params)
			if tt.wantErr != "" {
				var ruleErr *RuleError
				require.ErrorAs(t, err, &ruleErr)
				assert.Contains(t, ruleErr.Reason, tt.wantErr)
				assert.Nil(t, repo.created)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, Canonicalize(tt.params.Code), d.Code)
			assert.True(t, d.Active)
			require.NotNil(t, repo.created)
		})
	}
}

func TestEngine_CreateDuplicateCode(t *testing.T) {
	repo := newMockRepo(&Discount{
		ID: uuid.New(), Code: "TAKEN", Type: TypePercentage,
		Value: dec("10"), Active: true,
	})
	e := NewEngine(repo)

	_, err := e.Create(context.Background(), CreateParams{
		Code: "taken", Type: TypePercentage, Value: dec("20"),
	})
	require.ErrorIs(t, err, ErrCodeExists)
}

func TestEngine_DeactivateAndDelete(t *testing.T) {
	d := &Discount{
		ID: uuid.New(), Code: "BYE", Type: TypePercentage,
		Value: dec("10"), Active: true,
	}
	repo := newMockRepo(d)
	e := NewEngine(repo)

	require.NoError(t, e.Deactivate(context.Background(), d.ID))
	assert.False(t, d.Active)

	require.NoError(t, e.Delete(context.Background(), d.ID))
	assert.Equal(t, []uuid.UUID{d.ID}, repo.deleted)

	require.ErrorIs(t, e.Deactivate(context.Background(), uuid.New()), ErrNotFound)
}
