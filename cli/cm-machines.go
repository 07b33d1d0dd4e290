package cli

import (
	"fmt"
	"log"

	"github.com/chanyoung/copymachine/pkg/nilrpc"
	"github.com/spf13/cobra"
)

var cmMachinesCmd = &cobra.Command{
	Use:   "machines",
	Short: "listing machine types",
	Long:  "listing the copy machine types registered on the cm",
	Run:   cmMachinesRun,
}

var cmMachinesTarget cmTarget

func cmMachinesRun(cmd *cobra.Command, args []string) {
	cli := cmMachinesTarget.dial()
	defer cli.Close()

	req := &nilrpc.CmListMachineRequest{}
	res := &nilrpc.CmListMachineResponse{}
	if err := cli.Call(nilrpc.CmListMachine.String(), req, res); err != nil {
		log.Fatal(err)
	}

	for _, t := range res.Types {
		fmt.Println(t)
	}
}

func init() {
	cmMachinesTarget.addFlags(cmMachinesCmd)
}
