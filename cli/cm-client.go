package cli

import (
	"fmt"
	"log"
	"net"
	"net/rpc"
	"os"
	"time"

	"github.com/chanyoung/copymachine/pkg/fop"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
	"github.com/chanyoung/copymachine/pkg/util/config"
	"github.com/spf13/cobra"
)

// cmTarget is where the control commands ask.
type cmTarget struct {
	bind string
	port string
	tls  bool
	cert string
}

func (t *cmTarget) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&t.bind, "bind", "b", config.Get("cm.addr"), "will ask the cm of this address")
	cmd.Flags().StringVarP(&t.port, "port", "p", config.Get("cm.port"), "will ask the cm of this port")
	cmd.Flags().BoolVarP(&t.tls, "tls", "", config.Get("security.use_tls") == "true", "dial with tls")
	cmd.Flags().StringVarP(&t.cert, "cert", "c", config.Get("security.certs_dir")+"/"+config.Get("security.rootca_pem"), "rootCA.pem verifying the cm")
}

func (t *cmTarget) dial() *rpc.Client {
	opts := nilrpc.DialOptions{Timeout: 2 * time.Second, TLS: t.tls}
	if t.tls {
		opts.RootCA = t.cert
	}

	conn, err := nilrpc.Dial(net.JoinHostPort(t.bind, t.port), nilrpc.RPCNil, opts)
	if err != nil {
		log.Fatal(err)
	}
	return rpc.NewClient(conn)
}

// submit sends the fop of the kind to the machine type and decodes the
// reply into the body.
func (t *cmTarget) submit(machineType string, k fop.Kind, req, reply interface{}) {
	sender, err := os.Hostname()
	if err != nil {
		sender = "cli"
	}

	f, err := nilrpc.NewCmFop(machineType, k, uint64(time.Now().UnixNano()), sender, req)
	if err != nil {
		log.Fatal(err)
	}

	cli := t.dial()
	defer cli.Close()

	rep := &fop.Fop{}
	if err := cli.Call(nilrpc.CmSubmit.String(), f, rep); err != nil {
		log.Fatal(err)
	}
	if err := nilrpc.DecodeCmReply(machineType, k, rep, reply); err != nil {
		log.Fatal(err)
	}
}

func machineTypeArg(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("requires a copy machine type")
	}
	if len(args) > 1 {
		return fmt.Errorf("requires only one copy machine type")
	}
	return nil
}

func printTriggerReply(r *nilrpc.CmTriggerReply) {
	if r.Rc != nilrpc.RcOK {
		log.Fatalf("%s: %s", r.Rc, r.Diag)
	}
	fmt.Printf("run %s is %s\n", r.RunID, r.State)
}
