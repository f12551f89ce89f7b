package permissions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	err := Register(&Permission{
		Code:        "test.registry.view",
		Module:      "test",
		Description: "Test code",
		Enabled:     true,
	})
	require.NoError(t, err)

	def, ok := Get("test.registry.view")
	require.True(t, ok)
	require.Equal(t, "test", def.Module)
	require.True(t, def.Enabled)

	err = Register(&Permission{Code: "test.registry.view"})
	require.ErrorIs(t, err, errDuplicateCode)
}

func TestRegisterRejectsEmptyCode(t *testing.T) {
	require.ErrorIs(t, Register(&Permission{Code: "   "}), errEmptyCode)
	require.ErrorIs(t, Register(nil), errNilPermission)
}

func TestValidateUnknownAndDisabled(t *testing.T) {
	require.ErrorIs(t, Validate("no.such.code"), ErrUnknownPermission)

	require.NoError(t, Register(&Permission{
		Code:    "test.registry.toggled",
		Module:  "test",
		Enabled: true,
	}))
	require.NoError(t, Validate("test.registry.toggled"))

	require.NoError(t, SetEnabled("test.registry.toggled", false))
	require.ErrorIs(t, Validate("test.registry.toggled"), ErrPermissionDisabled)

	require.NoError(t, SetEnabled("test.registry.toggled", true))
	require.NoError(t, Validate("test.registry.toggled"))
}

func TestBuiltinCodesRegistered(t *testing.T) {
	for _, code := range []string{"user.view", "chat.invoke", "session.revoke"} {
		require.NoError(t, Validate(code))
	}
	require.Contains(t, Codes(), "map.route")
}
