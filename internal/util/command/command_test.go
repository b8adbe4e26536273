package command_test

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashguard/go-fhe-client/internal/util/command"
)

func TestNewSubcommandGroup(t *testing.T) {
	child := &cobra.Command{Use: "child", Run: func(*cobra.Command, []string) {}}
	group := command.NewSubcommandGroup("group", child)

	require.Len(t, group.Commands(), 1)
	assert.Equal(t, "group", group.Use)
	assert.True(t, group.HasSubCommands())

	// 不带子命令调用时打印帮助而不是报错
	group.SetArgs([]string{})
	require.NoError(t, group.Execute())
}
