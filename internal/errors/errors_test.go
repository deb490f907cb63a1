package appErrors

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", fmt.Errorf("select contacts: %w", context.DeadlineExceeded), true},
		{"bad conn", driver.ErrBadConn, true},
		{"connection failure", &pq.Error{Code: "08006"}, true},
		{"serialization failure", fmt.Errorf("finish contact: %w", &pq.Error{Code: "40001"}), true},
		{"query canceled", &pq.Error{Code: "57014"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"not found", NewNotFound("campaign", 3), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTypedErrorsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("send message: %w", NewStaleAssignment(7, 1, 2))
	if !IsStaleAssignment(err) {
		t.Fatalf("expected stale assignment error, got %v", err)
	}
	if err.Error() != "send message: Your assignment has changed" {
		t.Errorf("unexpected message %q", err.Error())
	}

	if !IsConfiguration(fmt.Errorf("walk: %w", NewConfigurationError("no root step"))) {
		t.Errorf("expected configuration error to be detected")
	}
	if !IsNotFound(NewCampaignNotFound(4)) {
		t.Errorf("expected campaign not found to be a not found error")
	}
	if got := NewCampaignNotFound(4).Error(); got != "campaign with ID 4 not found" {
		t.Errorf("unexpected message %q", got)
	}
}
