package state

var (
	swapRecordPrefix        = []byte("swap/record/")
	bankBalancePrefix       = []byte("bank/balance/")
	tokenMetaPrefix         = []byte("token/meta/")
	tokenBalancePrefix      = []byte("token/balance/")
	controllerPendingPrefix = []byte("controller/pending/")
	controllerConfigKey     = []byte("controller/config")
	controllerFeeKey        = []byte("controller/fee-config")
	controllerSeqKey        = []byte("controller/sequence")
	nodeHeightKey           = []byte("node/height")
)
