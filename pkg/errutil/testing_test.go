// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/loadstone/loadstone/pkg/errutil"
)

func TestAssertErrorCode(t *testing.T) {
	err := oops.Code("STATE_INVALID").Errorf("wrong state")
	errutil.AssertErrorCode(t, err, "STATE_INVALID")
}

func TestAssertErrorContext(t *testing.T) {
	err := oops.With("plugin", "vendor.sample").Errorf("boom")
	errutil.AssertErrorContext(t, err, "plugin", "vendor.sample")
}
