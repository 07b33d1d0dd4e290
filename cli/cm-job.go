package cli

import (
	"fmt"
	"log"

	"github.com/chanyoung/copymachine/pkg/nilrpc"
	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cmJobCmd = &cobra.Command{
	Use:   "job",
	Short: "listing runs",
	Long:  "listing the recorded runs, the newest first",
	Run:   cmJobRun,
}

var (
	cmJobTarget cmTarget
	cmJobType   string
)

func cmJobRun(cmd *cobra.Command, args []string) {
	cli := cmJobTarget.dial()
	defer cli.Close()

	req := &nilrpc.CmListJobRequest{Type: cmJobType}
	res := &nilrpc.CmListJobResponse{}
	if err := cli.Call(nilrpc.CmListJob.String(), req, res); err != nil {
		log.Fatal(err)
	}

	for _, j := range res.List {
		fmt.Printf("%s %-9s %-9s faults=%v version=%d scheduled %s",
			j.RunID, j.Type, j.State, j.FaultSet, j.PoolVersion, humanize.Time(j.ScheduledAt))
		if j.Error != "" {
			fmt.Printf(" error=%q", j.Error)
		}
		fmt.Println()
	}
}

func init() {
	cmJobTarget.addFlags(cmJobCmd)
	cmJobCmd.Flags().StringVarP(&cmJobType, "type", "t", "", "list only the runs of this machine type")
}
