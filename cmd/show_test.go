package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/config"
	"github.com/xkilldash9x/storewalk/internal/journey"
	"github.com/xkilldash9x/storewalk/internal/pages/pagestest"
	"github.com/xkilldash9x/storewalk/internal/store"
)

func storedRun() *journey.Result {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &journey.Result{
		RunID:       "2b0f8c4e-0000-4000-8000-000000000003",
		Status:      journey.StatusPassed,
		StartedAt:   start,
		FinishedAt:  start.Add(40 * time.Second),
		Email:       "testuser_0123456789abcdef@test.com",
		Cart:        &journey.CartSummary{Tier: "header_cart", Items: 1, Product: "Hummingbird notebook", Subtotal: 12.9},
		Checkpoints: []journey.Checkpoint{{Name: journey.CheckpointCartItem, Passed: true, Detail: "1 items in cart"}},
		Annotations: []journey.Annotation{{Step: journey.StepProceedToCart, Kind: journey.KindElementNotFound, Message: "modal_checkout tier failed"}},
	}
}

func TestShowCmd(t *testing.T) {
	want := storedRun()
	deps, _, provider := shopDependencies(pagestest.Defaults())
	require.NoError(t, provider.store.Record(context.Background(), want))

	out, _, err := executeCommand(t, deps, "--config", createTempConfig(t, fastConfig), "show", want.RunID)
	require.NoError(t, err)

	var got journey.Result
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	if diff := cmp.Diff(want, &got); diff != "" {
		t.Errorf("printed run mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, provider.cleaned)
}

func TestShowCmd_RequiresRunID(t *testing.T) {
	deps, _, _ := shopDependencies(pagestest.Defaults())
	_, _, err := executeCommand(t, deps, "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s), received 0")
}

func TestShowRun_Errors(t *testing.T) {
	cfg := config.NewDefaultConfig()

	t.Run("unknown run", func(t *testing.T) {
		provider := &fakeProvider{store: newFakeStore()}
		err := showRun(context.Background(), &bytes.Buffer{}, cfg, "missing", provider, zap.NewNop())
		assert.ErrorIs(t, err, store.ErrRunNotFound)
		assert.Equal(t, 1, provider.cleaned)
	})

	t.Run("store unavailable", func(t *testing.T) {
		provider := &fakeProvider{err: errors.New("connection refused")}
		err := showRun(context.Background(), &bytes.Buffer{}, cfg, "x", provider, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize store")
	})
}

func TestDefaultStoreProvider_RequiresURL(t *testing.T) {
	_, _, err := NewStoreProvider().Create(context.Background(), config.NewDefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STOREWALK_STORE_URL")
}
