package schedule_test

import (
	"log/slog"
	"testing"

	"github.com/flowboard/flowboard/pkg/intake/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIntake(t *testing.T) {
	t.Parallel()

	intake, err := schedule.NewIntake("*/5 * * * *", "https://example.com/doc", slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", intake.CronExpr)
}

func TestNewIntake_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cron        string
		documentURL string
		wantErr     string
	}{
		{"missing cron", "", "https://example.com/doc", "cron expression is required"},
		{"missing document url", "* * * * *", "", "document url is required"},
		{"malformed cron", "not a cron", "https://example.com/doc", "invalid cron expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := schedule.NewIntake(tt.cron, tt.documentURL, slog.Default())
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
