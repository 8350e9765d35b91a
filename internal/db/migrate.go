package db

import (
	"stockbot/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.TradeRecord{},
		&models.OwnershipRecord{},
		&models.PortfolioCashRecord{},
		&models.ExecutionRunRecord{},
		&models.ExternalSaleRecord{},
	)
}
