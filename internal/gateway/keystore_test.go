package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashTokenIsStableHex(t *testing.T) {
	h1 := HashToken("secret-token")
	h2 := HashToken("secret-token")
	require.Equal(t, h1, h2)
	require.Len(t, h1, 64)
	require.NotEqual(t, h1, HashToken("secret-token2"))
	// Raw tokens must never equal their stored form.
	require.NotEqual(t, "secret-token", h1)
}

func TestAccessKeySecurityContextTenantColumn(t *testing.T) {
	byCompany := AccessKey{TenantID: "t1", TenantColumn: "company_id", UserID: "u1"}
	sc := byCompany.SecurityContext()
	require.Equal(t, "t1", sc.TenantID)
	require.Equal(t, "t1", sc.CompanyID)
	require.Empty(t, sc.OrgID)

	byOrg := AccessKey{TenantID: "t2", TenantColumn: "organization_id"}
	sc = byOrg.SecurityContext()
	require.Equal(t, "t2", sc.OrgID)
	require.Empty(t, sc.CompanyID)
}

func TestAccessKeyToolEnabled(t *testing.T) {
	key := AccessKey{EnabledTools: []string{"get_project", "list_actions"}}
	require.True(t, key.ToolEnabled("get_project"))
	require.False(t, key.ToolEnabled("send_message"))
	require.False(t, AccessKey{}.ToolEnabled("get_project"), "empty list means no tools")
}

func TestRegistryResolveDistinguishesUnknownAndDisabled(t *testing.T) {
	r := NewRegistry()
	r.Register(ToolDefinition{Name: "get_project"})

	key := AccessKey{EnabledTools: []string{"get_project"}}

	_, err := r.Resolve(key, "get_project")
	require.NoError(t, err)

	_, err = r.Resolve(key, "no_such_tool")
	require.ErrorIs(t, err, ErrUnknownTool)

	_, err = r.Resolve(AccessKey{}, "get_project")
	require.ErrorIs(t, err, ErrToolDisabled)
}
