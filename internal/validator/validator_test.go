package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email     string  `json:"email" validate:"required,email"`
	Type      string  `json:"type" validate:"omitempty,is-conversation-type"`
	Role      string  `json:"role" validate:"omitempty,is-user-role"`
	Frequency string  `json:"frequency" validate:"omitempty,is-frequency"`
	Start     *string `json:"start,omitempty" validate:"omitempty,is-clock"`
	Channel   string  `form:"channel" validate:"omitempty,is-channel-type"`
}

func TestValidator_Valid(t *testing.T) {
	v := New()
	start := "07:30"

	err := v.Validate(&sample{
		Email:     "a@b.co",
		Type:      "group",
		Role:      "host",
		Frequency: "daily",
		Start:     &start,
		Channel:   "slack",
	})
	assert.NoError(t, err)
}

func TestValidator_ReportsJSONNames(t *testing.T) {
	v := New()
	bad := "25:00"

	err := v.Validate(&sample{
		Type:      "broadcast",
		Role:      "root",
		Frequency: "yearly",
		Start:     &bad,
		Channel:   "fax",
	})
	require.Error(t, err)

	vErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "This field is required", vErr.Errors["email"])
	for _, field := range []string{"type", "role", "frequency", "start", "channel"} {
		assert.Contains(t, vErr.Errors, field)
	}
	assert.Contains(t, vErr.Error(), "field 'email'")
}
