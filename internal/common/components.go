package common

const (
	ComponentScanner       = "scanner"
	ComponentStore         = "store"
	ComponentRPC           = "rpc"
	ComponentReorgDetector = "reorg-detector"
	ComponentAPI           = "api"
)
