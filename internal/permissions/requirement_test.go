package permissions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequireAll(t *testing.T) {
	req := RequireAll("user.view", "user.edit")

	require.True(t, req.SatisfiedBy([]string{"user.view", "user.edit", "chat.invoke"}))
	require.False(t, req.SatisfiedBy([]string{"user.view"}))
	require.False(t, req.SatisfiedBy(nil))
}

func TestRequireAny(t *testing.T) {
	req := RequireAny("user.manage", "session.revoke")

	require.True(t, req.SatisfiedBy([]string{"session.revoke"}))
	require.True(t, req.SatisfiedBy([]string{"user.manage", "session.revoke"}))
	require.False(t, req.SatisfiedBy([]string{"user.view"}))
}

func TestEmptyRequirementAlwaysSatisfied(t *testing.T) {
	require.True(t, RequireAll().IsEmpty())
	require.True(t, RequireAll().SatisfiedBy(nil))
	require.True(t, RequireAny("  ").SatisfiedBy(nil))
}

func TestRequirementDeduplicatesCodes(t *testing.T) {
	req := RequireAll("user.view", " user.view ", "")
	require.Equal(t, []string{"user.view"}, req.Codes())
}

func TestRequirementValidate(t *testing.T) {
	require.NoError(t, RequireAll("user.view", "chat.invoke").Validate())
	require.ErrorIs(t, RequireAll("user.view", "no.such.code").Validate(), ErrUnknownPermission)

	require.NoError(t, Register(&Permission{
		Code:    "test.requirement.off",
		Module:  "test",
		Enabled: false,
	}))
	require.ErrorIs(t, RequireAny("test.requirement.off").Validate(), ErrPermissionDisabled)
}
