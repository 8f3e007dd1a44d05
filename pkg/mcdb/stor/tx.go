package stor

import (
	"gorm.io/gorm"

	"github.com/materials-commons/dsstage/pkg/mcdb/config"
)

func WithTxRetry(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error

	for i := 0; i < config.GetTxRetry(); i++ {
		err = db.Transaction(fn)
		if err == nil {
			break
		}
	}

	return err
}
