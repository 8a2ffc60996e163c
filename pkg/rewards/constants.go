package rewards

import "time"

const (
	// MinRewardAmount and MaxRewardAmount bound a single draw (inclusive).
	MinRewardAmount Points = 100
	MaxRewardAmount Points = 1000

	// PointLotLifetime is how long a minted lot stays spendable.
	PointLotLifetime = 30 * 24 * time.Hour

	expiringWindow      = 7 * 24 * time.Hour
	maxBudgetRangeDays  = 366
	defaultPageSize     = 20
	maxPageSize         = 100
	expiryBatchSize     = 200
	defaultMetadataJSON = "{}"
	dateLayout          = "2006-01-02"

	defaultRetryAttempts  = 5
	defaultRetryBaseDelay = 10 * time.Millisecond
	retryJitterPercent    = 20

	operationEnsureBudgets       = "ensure_budgets"
	operationParticipate         = "participate"
	operationCancelParticipation = "cancel_participation"
	operationPurchase            = "purchase"
	operationCancelOrder         = "cancel_order"
	operationExpirePoints        = "expire_points"
	operationPublishEvent        = "publish_event"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	metadataKeyProductID   = "product_id"
	metadataKeyProductName = "product_name"
	metadataKeyQuantity    = "quantity"
	metadataKeyDate        = "date"
)
