package agent

import (
	"testing"

	"github.com/opencode-ai/agentcore/internal/agentsession"
	"github.com/opencode-ai/agentcore/internal/permission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolEnabledExactMatchWinsOverWildcard(t *testing.T) {
	p := &Profile{Tools: map[string]bool{"read_file": true, "*": false}}
	assert.True(t, p.ToolEnabled("read_file"))
	assert.False(t, p.ToolEnabled("write_file"))
}

func TestToolEnabledDefaultsToEnabledWhenUnmatched(t *testing.T) {
	p := &Profile{Tools: map[string]bool{}}
	assert.True(t, p.ToolEnabled("anything"))
}

func TestCheckBashPermissionMatchesPatternBeforeFallback(t *testing.T) {
	p := &Profile{BashPatterns: map[string]permission.Action{
		"git status": permission.ActionAuto,
		"*":          permission.ActionDeny,
	}}
	assert.Equal(t, permission.ActionAuto, p.CheckBashPermission("git status"))
	assert.Equal(t, permission.ActionDeny, p.CheckBashPermission("rm -rf /"))
}

func TestCheckBashPermissionDefaultsToAskWithNoPatterns(t *testing.T) {
	p := &Profile{}
	assert.Equal(t, permission.ActionAsk, p.CheckBashPermission("ls"))
}

func TestMatchWildcardPrefixSuffixAndDoublestar(t *testing.T) {
	assert.True(t, matchWildcard("*", "anything"))
	assert.True(t, matchWildcard("git diff*", "git diff --stat"))
	assert.False(t, matchWildcard("git diff*", "git status"))
	assert.True(t, matchWildcard("*.go", "main.go"))
	assert.True(t, matchWildcard("**/*.go", "internal/tool/tool.go"))
	assert.True(t, matchWildcard("exact", "exact"))
	assert.False(t, matchWildcard("exact", "not-exact"))
}

func TestBuiltInProfilesHasBuildPlanAndExplore(t *testing.T) {
	profiles := BuiltInProfiles()
	require.Contains(t, profiles, "build")
	require.Contains(t, profiles, "plan")
	require.Contains(t, profiles, "explore")

	assert.Equal(t, permission.ModeStandard, profiles["build"].Mode)
	assert.Equal(t, permission.ModePlan, profiles["plan"].Mode)
	assert.Equal(t, permission.ModePlan, profiles["explore"].Mode)

	assert.True(t, profiles["explore"].ToolEnabled("read_file"))
	assert.False(t, profiles["explore"].ToolEnabled("write_file"))
}

func TestBuilderBuildProducesRunnableAgentAndRootSession(t *testing.T) {
	b := &Builder{
		WorkDir:  t.TempDir(),
		Sessions: agentsession.New(),
		Provider: nil,
		Gate:     permission.NewGate(nil),
	}
	a, session, err := b.Build(BuiltInProfiles()["explore"])
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Empty(t, session.ParentID)
	assert.Equal(t, agentsession.ModeParent, session.Mode)
}
