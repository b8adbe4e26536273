package command

import (
	"github.com/spf13/cobra"
)

// NewSubcommandGroup 创建只作为子命令容器的命令组
func NewSubcommandGroup(name string, subcommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use: name,
		Run: func(cmd *cobra.Command, args []string) {
			if err := cmd.Help(); err != nil {
				cmd.PrintErrln(err)
			}
		},
	}

	cmd.AddCommand(subcommands...)

	return cmd
}
