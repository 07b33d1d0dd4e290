package cli

import (
	"log"
	"os"

	"github.com/chanyoung/copymachine/app/cm"
	"github.com/chanyoung/copymachine/pkg/util/config"
	"github.com/spf13/cobra"
)

var cmCfg config.Cm

var cmCmd = &cobra.Command{
	Use:   "cm",
	Short: "copy machine control commands",
	Long:  "run the copy machine daemon, or control it with the sub commands",
	Run:   cmRun,
}

func cmRun(cmd *cobra.Command, args []string) {
	if cmCfg.WorkDir != "" {
		if err := os.Chdir(cmCfg.WorkDir); err != nil {
			log.Fatal(err)
		}
	}

	if err := cm.Bootstrap(cmCfg); err != nil {
		log.Fatal(err)
	}
}

func init() {
	cmCmd.AddCommand(cmTriggerCmd)
	cmCmd.AddCommand(cmQuiesceCmd)
	cmCmd.AddCommand(cmAbortCmd)
	cmCmd.AddCommand(cmStatusCmd)
	cmCmd.AddCommand(cmJobCmd)
	cmCmd.AddCommand(cmMachinesCmd)

	cmCmd.Flags().StringVarP(&cmCfg.ID, "id", "", config.Get("cm.id"), "uuid of the daemon, generated when empty")
	cmCmd.Flags().StringVarP(&cmCfg.ServerAddr, "bind", "b", config.Get("cm.addr"), "address to which the cm will bind")
	cmCmd.Flags().StringVarP(&cmCfg.ServerPort, "port", "p", config.Get("cm.port"), "port on which the cm will listen")

	cmCmd.Flags().StringVarP(&cmCfg.WorkDir, "work-dir", "", config.Get("cm.work_dir"), "working directory")

	cmCmd.Flags().StringVarP(&cmCfg.Machines, "machines", "m", config.Get("cm.machines"), "comma separated copy machine types to instantiate")
	cmCmd.Flags().StringVarP(&cmCfg.FomWorkers, "fom-workers", "", config.Get("cm.fom_workers"), "number of fom workers")

	cmCmd.Flags().StringVarP(&cmCfg.EngineTick, "engine-tick", "", config.Get("cm.engine_tick"), "period of the copy engine")
	cmCmd.Flags().StringVarP(&cmCfg.EngineObjects, "engine-objects", "", config.Get("cm.engine_objects"), "number of objects each run copies")
	cmCmd.Flags().StringVarP(&cmCfg.EngineObjectSize, "engine-object-size", "", config.Get("cm.engine_object_size"), "size of each copied object, e.g. 1MiB")

	cmCmd.Flags().StringVarP(&cmCfg.History, "history", "", config.Get("cm.history"), "type of the run history store: inmem or mysql")
	cmCmd.Flags().StringVarP(&cmCfg.MySQL.User, "mysql-user", "", config.Get("cm.mysql_user"), "user id to mysql server")
	cmCmd.Flags().StringVarP(&cmCfg.MySQL.Password, "mysql-password", "", config.Get("cm.mysql_password"), "password of mysql user")
	cmCmd.Flags().StringVarP(&cmCfg.MySQL.Host, "mysql-host", "", config.Get("cm.mysql_host"), "host address of mysql server")
	cmCmd.Flags().StringVarP(&cmCfg.MySQL.Port, "mysql-port", "", config.Get("cm.mysql_port"), "port number of mysql server")
	cmCmd.Flags().StringVarP(&cmCfg.MySQL.Database, "mysql-database", "", config.Get("cm.mysql_database"), "mysql schema name")

	cmCmd.Flags().StringVarP(&cmCfg.Security.UseTLS, "secure-use-tls", "", config.Get("security.use_tls"), "serve with tls: true or false")
	cmCmd.Flags().StringVarP(&cmCfg.Security.CertsDir, "secure-certs-dir", "", config.Get("security.certs_dir"), "directory path of secure configuration files")
	cmCmd.Flags().StringVarP(&cmCfg.Security.RootCAPem, "secure-rootca-pem", "", config.Get("security.rootca_pem"), "file name of rootCA.pem")
	cmCmd.Flags().StringVarP(&cmCfg.Security.ServerKey, "secure-server-key", "", config.Get("security.server_key"), "file name of server key")
	cmCmd.Flags().StringVarP(&cmCfg.Security.ServerCrt, "secure-server-crt", "", config.Get("security.server_crt"), "file name of server crt")

	cmCmd.Flags().StringVarP(&cmCfg.LogLocation, "log", "l", config.Get("cm.log_location"), "log location of the cm will print out")
}
