// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-checkout/internal/domain/checkout"
	"gorm.io/gorm"
)

// checkoutIndexes cover the attempt queries; payment cache indexes come from struct tags
var checkoutIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_checkout_attempts_cart_stage ON checkout_attempts(cart_id, stage)",
	"CREATE INDEX IF NOT EXISTS idx_checkout_attempts_user_created ON checkout_attempts(user_login, created_at DESC)",
	"CREATE INDEX IF NOT EXISTS idx_checkout_attempts_psp_reference ON checkout_attempts(psp_reference)",
}

// Migration creates the tables this service owns.
// Carts, products and customers live in the storefront backend.
type Migration struct {
	db  *gorm.DB
	log *logrus.Logger
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, log *logrus.Logger) *Migration {
	return &Migration{db: db, log: log}
}

// Run migrates the payment cache and attempt journal, then adds their indexes.
// Index failures are logged, a missing table is not.
func (m *Migration) Run() error {
	for _, model := range []interface{}{&checkout.PaymentCache{}, &checkout.CheckoutAttempt{}} {
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
		m.log.WithField("model", fmt.Sprintf("%T", model)).Debug("Migrated")
	}

	for _, index := range checkoutIndexes {
		if err := m.db.Exec(index).Error; err != nil {
			m.log.WithError(err).WithField("statement", index).Warn("Failed to create index")
		}
	}

	m.log.Info("✅ Checkout tables migrated")
	return nil
}
