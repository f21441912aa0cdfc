package vault

import (
	"context"
	"net/http"
	"time"

	"github.com/aihub-platform/backend/pkg/models"
)

// Prober performs a provider-specific minimal liveness probe (auth-check
// endpoint, models list, or a one-token completion) and returns nil on
// success. A provider with no Prober registered is reported as untested.
type Prober func(ctx context.Context, httpClient *http.Client, plaintextKey string) error

// Probers maps a provider to its liveness check. Nothing in this repository
// registers a Prober (cmd/server leaves the map empty), so Test reports
// every key as untested.
var Probers = map[models.Provider]Prober{}

// TestResult is returned to the caller of Test; latency is reported but not
// persisted (spec §4.1).
type TestResult struct {
	Status  models.TestStatus
	Error   string
	Latency time.Duration
}

// Test runs the provider's liveness probe against the decrypted key and
// persists test_status/test_error (but not latency) on the row.
func (s *Store) Test(ctx context.Context, id string, httpClient *http.Client, timeout time.Duration) (*TestResult, error) {
	pk, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	plaintext, err := s.cipher.DecryptIfNeeded(pk.EncryptedKey)
	if err != nil {
		return nil, err
	}

	probe, ok := Probers[pk.Provider]
	if !ok {
		_ = s.persistTestResult(ctx, id, models.TestStatusUntested, "")
		return &TestResult{Status: models.TestStatusUntested}, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	probeErr := probe(probeCtx, httpClient, plaintext)
	latency := time.Since(start)

	if probeErr != nil {
		_ = s.persistTestResult(ctx, id, models.TestStatusInvalid, probeErr.Error())
		return &TestResult{Status: models.TestStatusInvalid, Error: probeErr.Error(), Latency: latency}, nil
	}

	_ = s.persistTestResult(ctx, id, models.TestStatusValid, "")
	return &TestResult{Status: models.TestStatusValid, Latency: latency}, nil
}

func (s *Store) persistTestResult(ctx context.Context, id string, status models.TestStatus, testErr string) error {
	var errPtr *string
	if testErr != "" {
		errPtr = &testErr
	}
	_, err := s.pool.Exec(ctx, `UPDATE provider_keys SET test_status = $2, test_error = $3, last_tested_at = $4 WHERE id = $1`,
		id, status, errPtr, time.Now().UTC())
	return err
}
