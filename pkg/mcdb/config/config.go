package config

import (
	"os"
	"strconv"
	"sync"
)

const (
	txRetryEnvVar = "DSSTAGE_TX_RETRY"
	minTxRetry    = 3
)

var (
	txRetry     int
	txRetryOnce sync.Once
)

// GetTxRetry returns how many times a failed transaction is attempted. It
// comes from DSSTAGE_TX_RETRY and is never less than 3.
func GetTxRetry() int {
	txRetryOnce.Do(func() {
		txRetryCount64, err := strconv.ParseInt(os.Getenv(txRetryEnvVar), 10, 32)
		if err != nil || txRetryCount64 < minTxRetry {
			txRetryCount64 = minTxRetry
		}

		txRetry = int(txRetryCount64)
	})

	return txRetry
}
