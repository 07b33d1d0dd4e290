package cli

import (
	"fmt"
	"log"

	"github.com/chanyoung/copymachine/pkg/fop"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cmStatusCmd = &cobra.Command{
	Use:   "status [machine type]",
	Short: "print the run state and progress",
	Long:  "print the run state and progress",
	Args:  machineTypeArg,
	Run:   cmStatusRun,
}

var cmStatusTarget cmTarget

func cmStatusRun(cmd *cobra.Command, args []string) {
	res := &nilrpc.CmStatusReply{}
	cmStatusTarget.submit(args[0], fop.Status, nil, res)
	if res.Rc != nilrpc.RcOK {
		log.Fatalf("%s: %s", res.Rc, res.Diag)
	}

	fmt.Printf("state:     %s\n", res.State)
	if res.RunID != "" {
		fmt.Printf("run:       %s\n", res.RunID)
	}
	fmt.Printf("objects:   %s\n", humanize.Comma(int64(res.Progress.Objects)))
	fmt.Printf("bytes:     %s\n", humanize.Bytes(res.Progress.Bytes))
	fmt.Printf("remaining: %s\n", humanize.Comma(int64(res.Progress.Remaining)))
	if res.LastError != "" {
		fmt.Printf("error:     %s\n", res.LastError)
	}
}

func init() {
	cmStatusTarget.addFlags(cmStatusCmd)
}
