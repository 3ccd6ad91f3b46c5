package scheduler

import (
	"testing"

	"mostrod/internal/database"

	"github.com/stretchr/testify/assert"
)

func TestExpirableStatuses_MatchesWaitingAndPendingOnly(t *testing.T) {
	assert.True(t, expirableStatuses[database.StatusPending])
	assert.True(t, expirableStatuses[database.StatusWaitingPayment])
	assert.True(t, expirableStatuses[database.StatusWaitingBuyerInvoice])

	assert.False(t, expirableStatuses[database.StatusActive])
	assert.False(t, expirableStatuses[database.StatusFiatSent])
	assert.False(t, expirableStatuses[database.StatusDispute])
	assert.False(t, expirableStatuses[database.StatusSuccess])
}
