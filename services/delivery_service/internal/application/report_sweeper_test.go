package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
)

func seedReports(store *fakeStore, inaccuracies ...int) {
	for _, n := range inaccuracies {
		id := entity.NewID()
		store.reports[id] = &entity.HazardReport{ID: id, ReportType: entity.ReportTypeCrash, Inaccuracies: n}
	}
}

func TestReportSweeper_SweepOnce(t *testing.T) {
	store := newFakeStore()
	seedReports(store, 0, 2, 3, 5)

	s := NewReportSweeper(store, DefaultReportSweeperConfig())
	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, store.reports, 2)

	n, err = s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReportSweeper_SweepOnceError(t *testing.T) {
	store := newFakeStore()
	store.failWrites = true

	s := NewReportSweeper(store, DefaultReportSweeperConfig())
	_, err := s.SweepOnce(context.Background())
	assert.ErrorIs(t, err, errStoreDown)
}

func TestReportSweeper_StartStop(t *testing.T) {
	store := newFakeStore()
	seedReports(store, 4)

	s := NewReportSweeper(store, ReportSweeperConfig{
		Interval:       time.Hour,
		Threshold:      2,
		Timeout:        time.Second,
		RunImmediately: true,
	})
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start())

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.deleted == 1
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}
