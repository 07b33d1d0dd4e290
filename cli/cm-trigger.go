package cli

import (
	"log"
	"strconv"
	"strings"

	"github.com/chanyoung/copymachine/pkg/fop"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
	"github.com/spf13/cobra"
)

var cmTriggerCmd = &cobra.Command{
	Use:   "trigger [machine type]",
	Short: "start a copy machine run",
	Long:  "start a copy machine run; retrying the same parameters is harmless",
	Args:  machineTypeArg,
	Run:   cmTriggerRun,
}

var (
	cmTriggerTarget      cmTarget
	cmTriggerFaultSet    string
	cmTriggerPoolVersion uint64
	cmTriggerNode        string
)

func parseFaultSet(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}

	var set []uint64
	for _, f := range strings.Split(s, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, err
		}
		set = append(set, id)
	}
	return set, nil
}

func cmTriggerRun(cmd *cobra.Command, args []string) {
	faults, err := parseFaultSet(cmTriggerFaultSet)
	if err != nil {
		log.Fatal(err)
	}

	req := &nilrpc.CmTriggerRequest{
		Type:        args[0],
		FaultSet:    faults,
		PoolVersion: cmTriggerPoolVersion,
		Node:        cmTriggerNode,
	}
	res := &nilrpc.CmTriggerReply{}

	cmTriggerTarget.submit(args[0], fop.Trigger, req, res)
	printTriggerReply(res)
}

func init() {
	cmTriggerTarget.addFlags(cmTriggerCmd)

	cmTriggerCmd.Flags().StringVarP(&cmTriggerFaultSet, "fault-set", "f", "", "comma separated failed device ids")
	cmTriggerCmd.Flags().Uint64VarP(&cmTriggerPoolVersion, "pool-version", "v", 0, "pool version the run moves data to")
	cmTriggerCmd.Flags().StringVarP(&cmTriggerNode, "node", "n", "", "requesting node, the host name when empty")
}
