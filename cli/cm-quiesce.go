package cli

import (
	"github.com/chanyoung/copymachine/pkg/fop"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
	"github.com/spf13/cobra"
)

var cmQuiesceCmd = &cobra.Command{
	Use:   "quiesce [machine type]",
	Short: "pause the run at the next safe point",
	Long:  "pause the run at the next safe point",
	Args:  machineTypeArg,
	Run:   cmQuiesceRun,
}

var cmQuiesceTarget cmTarget

func cmQuiesceRun(cmd *cobra.Command, args []string) {
	res := &nilrpc.CmTriggerReply{}
	cmQuiesceTarget.submit(args[0], fop.Quiesce, nil, res)
	printTriggerReply(res)
}

func init() {
	cmQuiesceTarget.addFlags(cmQuiesceCmd)
}
