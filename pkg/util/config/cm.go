package config

// Cm holds info required to set a copy machine daemon.
type Cm struct {
	// ID is the uuid of the copy machine daemon.
	ID string

	// ServerAddr is the address of the daemon.
	ServerAddr string
	// ServerPort is the port of the daemon, serving both the nil rpc
	// and the admin http api.
	ServerPort string

	// WorkDir is a working directory of the daemon.
	WorkDir string

	// Machines is a comma separated list of copy machine types
	// which will be instantiated at the bootstrap, e.g. "repair,rebalance".
	Machines string

	// FomWorkers is the number of goroutines executing foms.
	FomWorkers string

	// EngineTick is the period of the simulated copy engine.
	EngineTick string
	// EngineObjects is the number of objects each simulated run copies.
	EngineObjects string
	// EngineObjectSize is the size in bytes of each simulated object.
	EngineObjectSize string

	// History is the type of the run history store: "inmem" or "mysql".
	History string
	// MySQL config, used when History is "mysql".
	MySQL MySQL

	// Security config.
	Security Security

	// LogLocation is the file path of daemon logging.
	// Default output path is stderr.
	LogLocation string
}

// MySQL holds the connection information of the mysql server.
type MySQL struct {
	User     string
	Password string
	Database string
	Host     string
	Port     string
}
