// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDBQuery(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("INSERT", "incidents"))

	RecordDBQuery("INSERT", "incidents", 5*time.Millisecond, nil)
	RecordDBQuery("INSERT", "incidents", 5*time.Millisecond, errors.New("constraint"))

	after := testutil.ToFloat64(DBQueryErrors.WithLabelValues("INSERT", "incidents"))
	if after-before != 1 {
		t.Errorf("expected 1 error recorded, got %v", after-before)
	}
}

func TestRecordEvaluation(t *testing.T) {
	tripped := DetectionEvaluations.WithLabelValues("mention", "true")
	quiet := DetectionEvaluations.WithLabelValues("mention", "false")
	bt, bq := testutil.ToFloat64(tripped), testutil.ToFloat64(quiet)

	RecordEvaluation("mention", true)
	RecordEvaluation("mention", false)
	RecordEvaluation("mention", false)

	if got := testutil.ToFloat64(tripped) - bt; got != 1 {
		t.Errorf("expected 1 tripped, got %v", got)
	}
	if got := testutil.ToFloat64(quiet) - bq; got != 2 {
		t.Errorf("expected 2 quiet, got %v", got)
	}
}

func TestRecordCircuitBreakerTransition(t *testing.T) {
	RecordCircuitBreakerTransition("platform", "closed", "open", 2)

	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("platform")); got != 2 {
		t.Errorf("expected state 2, got %v", got)
	}
	if got := testutil.ToFloat64(CircuitBreakerTransitions.WithLabelValues("platform", "closed", "open")); got < 1 {
		t.Errorf("expected transition recorded, got %v", got)
	}
}

func TestRecordStepFailure(t *testing.T) {
	c := MitigationStepFailures.WithLabelValues("archive")
	before := testutil.ToFloat64(c)
	RecordStepFailure("archive")
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
}
