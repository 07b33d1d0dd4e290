package cli

import (
	"github.com/chanyoung/copymachine/pkg/fop"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
	"github.com/spf13/cobra"
)

var cmAbortCmd = &cobra.Command{
	Use:   "abort [machine type]",
	Short: "stop the run and release its resources",
	Long:  "stop the run and release its resources; a failed instance is reset",
	Args:  machineTypeArg,
	Run:   cmAbortRun,
}

var cmAbortTarget cmTarget

func cmAbortRun(cmd *cobra.Command, args []string) {
	res := &nilrpc.CmTriggerReply{}
	cmAbortTarget.submit(args[0], fop.Abort, nil, res)
	printTriggerReply(res)
}

func init() {
	cmAbortTarget.addFlags(cmAbortCmd)
}
